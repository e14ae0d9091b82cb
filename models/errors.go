package models

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is reported when no data rows could be read.
var ErrEmptyInput = errors.New("input contains no data rows")

// InputError is fatal: the input could not be read or was empty.
type InputError struct {
	Source string
	Err    error
}

func (e *InputError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("input error: %v", e.Err)
	}
	return fmt.Sprintf("input error: %s: %v", e.Source, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// RowRejection records a raw row that could not be parsed.
type RowRejection struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (r RowRejection) String() string {
	return fmt.Sprintf("%s:%d: %s", r.Source, r.Line, r.Reason)
}

// DropReason names the validation rule that excluded a record.
type DropReason string

const (
	DropNonPositivePrice DropReason = "non_positive_price"
	DropNegativeDTE      DropReason = "negative_dte"
	DropMissingQuote     DropReason = "missing_quote"
	DropNegativePrice    DropReason = "negative_price"
	DropCrossedQuote     DropReason = "crossed_quote"
	DropInvalidIV        DropReason = "invalid_iv"
	DropInvalidGreeks    DropReason = "invalid_greeks"
	DropOutOfRange       DropReason = "out_of_range"
	DropMissingGreeks    DropReason = "missing_greeks"
)

// DropReasons lists every rule in evaluation order.
var DropReasons = []DropReason{
	DropNonPositivePrice,
	DropNegativeDTE,
	DropMissingQuote,
	DropNegativePrice,
	DropCrossedQuote,
	DropInvalidIV,
	DropInvalidGreeks,
	DropOutOfRange,
	DropMissingGreeks,
}

// ValidationFailure records a parsed record that broke an invariant.
type ValidationFailure struct {
	Source string     `json:"source"`
	Line   int        `json:"line"`
	Reason DropReason `json:"reason"`
	Detail string     `json:"detail"`
}

func (f ValidationFailure) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", f.Source, f.Line, f.Reason, f.Detail)
}
