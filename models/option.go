package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is the contract right, CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// ParseOptionType accepts C, CALL, P and PUT in any case.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return Call, nil
	case "P", "PUT":
		return Put, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// Greeks holds the optional sensitivities reported for a contract.
type Greeks struct {
	Delta decimal.NullDecimal `json:"delta"`
	Gamma decimal.NullDecimal `json:"gamma"`
	Vega  decimal.NullDecimal `json:"vega"`
	Theta decimal.NullDecimal `json:"theta"`
	Rho   decimal.NullDecimal `json:"rho"`
}

// OptionRecord is one contract quoted on one snapshot date.
type OptionRecord struct {
	QuoteDate         time.Time           `json:"quote_date"`
	UnderlyingPrice   decimal.Decimal     `json:"underlying_price"`
	StrikePrice       decimal.Decimal     `json:"strike_price"`
	OptionType        OptionType          `json:"option_type"`
	ExpiryDate        time.Time           `json:"expiry_date"`
	DaysToExpiry      int                 `json:"days_to_expiry"`
	Bid               decimal.NullDecimal `json:"bid"`
	Ask               decimal.NullDecimal `json:"ask"`
	LastPrice         decimal.NullDecimal `json:"last_price"`
	ImpliedVolatility decimal.NullDecimal `json:"implied_volatility"`
	Greeks            Greeks              `json:"greeks"`
	Volume            *int64              `json:"volume,omitempty"`

	Source string `json:"source,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// StrikeDistancePct is the signed distance of the strike from the
// underlying, in percent of the underlying.
func (r OptionRecord) StrikeDistancePct() float64 {
	if r.UnderlyingPrice.IsZero() {
		return 0
	}
	return r.StrikePrice.Sub(r.UnderlyingPrice).Div(r.UnderlyingPrice).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// MetricValue returns the value of m for the record and whether it is
// present. Values that do not fit a finite float64 count as absent.
func (r OptionRecord) MetricValue(m Metric) (float64, bool) {
	var v decimal.NullDecimal
	switch m {
	case MetricImpliedVolatility:
		v = r.ImpliedVolatility
	case MetricDelta:
		v = r.Greeks.Delta
	case MetricGamma:
		v = r.Greeks.Gamma
	case MetricVega:
		v = r.Greeks.Vega
	case MetricTheta:
		v = r.Greeks.Theta
	case MetricRho:
		v = r.Greeks.Rho
	default:
		return 0, false
	}
	if !v.Valid {
		return 0, false
	}
	f := v.Decimal.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ContractKey identifies the same contract across snapshot dates.
func (r OptionRecord) ContractKey() string {
	return fmt.Sprintf("%s|%s|%s", r.OptionType, r.StrikePrice.String(), r.ExpiryDate.Format(DateLayout))
}

// DateLayout is the calendar date format used in keys and output.
const DateLayout = "2006-01-02"

// CalendarDate truncates t to midnight UTC.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from quote to expiry.
// The result is negative when expiry precedes quote.
func DaysBetween(quote, expiry time.Time) int {
	return int(CalendarDate(expiry).Sub(CalendarDate(quote)).Hours() / 24)
}

// Metric names a numeric field that is summarised per group.
type Metric string

const (
	MetricImpliedVolatility Metric = "implied_volatility"
	MetricDelta             Metric = "delta"
	MetricGamma             Metric = "gamma"
	MetricVega              Metric = "vega"
	MetricTheta             Metric = "theta"
	MetricRho               Metric = "rho"
)

// SummaryMetrics lists the metrics in output order.
var SummaryMetrics = []Metric{
	MetricImpliedVolatility,
	MetricDelta,
	MetricGamma,
	MetricVega,
	MetricTheta,
	MetricRho,
}
