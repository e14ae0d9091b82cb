package processor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

var one = decimal.NewFromInt(1)

// maxMagnitude bounds every numeric field so sums and squares in the
// aggregates stay finite.
var maxMagnitude = decimal.New(1, 12)

// Cleaner drops records that break the record invariants.
type Cleaner struct {
	requireGreeks bool
	log           *logger.Log
}

// CleanResult holds the accepted records and the drop counts per rule.
type CleanResult struct {
	Accepted []models.OptionRecord
	Dropped  map[models.DropReason]int
	Failures []models.ValidationFailure
}

func NewCleaner(cfg config.AnalysisConfig) *Cleaner {
	log := logger.GetLogger()
	log.WithComponent("cleaner").WithFields(logger.Fields{"require_greeks": cfg.RequireGreeks}).Debug("cleaner initialized")
	return &Cleaner{requireGreeks: cfg.RequireGreeks, log: log}
}

// Clean returns the records that pass every rule, in input order. The input
// slice is not modified.
func (c *Cleaner) Clean(records []models.OptionRecord) CleanResult {
	start := time.Now()
	res := CleanResult{
		Accepted: make([]models.OptionRecord, 0, len(records)),
		Dropped:  make(map[models.DropReason]int, len(models.DropReasons)),
	}
	for _, reason := range models.DropReasons {
		res.Dropped[reason] = 0
	}

	log := c.log.WithComponent("cleaner")
	for _, rec := range records {
		if failure := c.Validate(rec); failure != nil {
			res.Dropped[failure.Reason]++
			res.Failures = append(res.Failures, *failure)
			log.WithFields(logger.Fields{"source": failure.Source, "line": failure.Line, "reason": failure.Reason}).Debug(failure.Detail)
			continue
		}
		res.Accepted = append(res.Accepted, rec)
	}

	logger.LogPerformanceEntry(log, "cleaner", "clean", time.Since(start), logger.Fields{
		"records":  len(records),
		"accepted": len(res.Accepted),
		"dropped":  len(res.Failures),
	})
	return res
}

// Validate returns the first failing rule for rec, or nil.
func (c *Cleaner) Validate(rec models.OptionRecord) *models.ValidationFailure {
	fail := func(reason models.DropReason, format string, args ...interface{}) *models.ValidationFailure {
		return &models.ValidationFailure{
			Source: rec.Source,
			Line:   rec.Line,
			Reason: reason,
			Detail: fmt.Sprintf(format, args...),
		}
	}

	if !rec.StrikePrice.IsPositive() {
		return fail(models.DropNonPositivePrice, "strike %s is not positive", rec.StrikePrice)
	}
	if !rec.UnderlyingPrice.IsPositive() {
		return fail(models.DropNonPositivePrice, "underlying %s is not positive", rec.UnderlyingPrice)
	}
	if rec.DaysToExpiry < 0 {
		return fail(models.DropNegativeDTE, "expiry %s precedes snapshot %s", rec.ExpiryDate.Format(models.DateLayout), rec.QuoteDate.Format(models.DateLayout))
	}
	if !rec.Bid.Valid && !rec.Ask.Valid {
		return fail(models.DropMissingQuote, "neither bid nor ask present")
	}
	for _, p := range []struct {
		name  string
		value decimal.NullDecimal
	}{{"bid", rec.Bid}, {"ask", rec.Ask}, {"last", rec.LastPrice}} {
		if p.value.Valid && p.value.Decimal.IsNegative() {
			return fail(models.DropNegativePrice, "%s %s is negative", p.name, p.value.Decimal)
		}
	}
	if rec.Bid.Valid && rec.Ask.Valid && rec.Bid.Decimal.GreaterThan(rec.Ask.Decimal) {
		return fail(models.DropCrossedQuote, "bid %s above ask %s", rec.Bid.Decimal, rec.Ask.Decimal)
	}
	if rec.ImpliedVolatility.Valid && rec.ImpliedVolatility.Decimal.IsNegative() {
		return fail(models.DropInvalidIV, "implied volatility %s is negative", rec.ImpliedVolatility.Decimal)
	}
	g := rec.Greeks
	if g.Delta.Valid && g.Delta.Decimal.Abs().GreaterThan(one) {
		return fail(models.DropInvalidGreeks, "delta %s outside [-1, 1]", g.Delta.Decimal)
	}
	if g.Gamma.Valid && g.Gamma.Decimal.IsNegative() {
		return fail(models.DropInvalidGreeks, "gamma %s is negative", g.Gamma.Decimal)
	}
	if g.Vega.Valid && g.Vega.Decimal.IsNegative() {
		return fail(models.DropInvalidGreeks, "vega %s is negative", g.Vega.Decimal)
	}
	for _, f := range []struct {
		name  string
		value decimal.NullDecimal
	}{
		{"strike", decimal.NewNullDecimal(rec.StrikePrice)},
		{"underlying", decimal.NewNullDecimal(rec.UnderlyingPrice)},
		{"bid", rec.Bid},
		{"ask", rec.Ask},
		{"last", rec.LastPrice},
		{"implied volatility", rec.ImpliedVolatility},
		{"delta", g.Delta},
		{"gamma", g.Gamma},
		{"vega", g.Vega},
		{"theta", g.Theta},
		{"rho", g.Rho},
	} {
		if f.value.Valid && f.value.Decimal.Abs().GreaterThan(maxMagnitude) {
			return fail(models.DropOutOfRange, "%s %s exceeds %s in magnitude", f.name, f.value.Decimal, maxMagnitude)
		}
	}
	if c.requireGreeks && (!rec.ImpliedVolatility.Valid || !g.Delta.Valid) {
		return fail(models.DropMissingGreeks, "implied volatility or delta missing")
	}
	return nil
}
