package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionType(t *testing.T) {
	cases := map[string]OptionType{"C": Call, "call": Call, " Put ": Put, "p": Put}
	for in, want := range cases {
		got, err := ParseOptionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOptionType("straddle")
	assert.Error(t, err)
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	quote := time.Date(2023, 3, 1, 16, 0, 0, 0, time.UTC)
	expiry := time.Date(2023, 3, 11, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, 10, DaysBetween(quote, expiry))
	assert.Equal(t, -10, DaysBetween(expiry, quote))
}

func TestDTEBucketContains(t *testing.T) {
	bounded := DTEBucket{Min: 8, Max: 30}
	assert.False(t, bounded.Contains(7))
	assert.True(t, bounded.Contains(8))
	assert.True(t, bounded.Contains(30))
	assert.False(t, bounded.Contains(31))

	open := DTEBucket{Min: 91, Max: -1}
	assert.True(t, open.Contains(400))
	assert.Equal(t, ">90", BucketLabel(91, -1))
	assert.Equal(t, "0-7", BucketLabel(0, 7))
}

func TestMetricValueSkipsAbsent(t *testing.T) {
	rec := OptionRecord{
		ImpliedVolatility: decimal.NewNullDecimal(decimal.RequireFromString("0.18")),
		Greeks:            Greeks{Delta: decimal.NewNullDecimal(decimal.RequireFromString("-0.25"))},
	}

	iv, ok := rec.MetricValue(MetricImpliedVolatility)
	require.True(t, ok)
	assert.InDelta(t, 0.18, iv, 1e-12)

	delta, ok := rec.MetricValue(MetricDelta)
	require.True(t, ok)
	assert.InDelta(t, -0.25, delta, 1e-12)

	_, ok = rec.MetricValue(MetricGamma)
	assert.False(t, ok)
}

func TestMetricValueSkipsNonFinite(t *testing.T) {
	rec := OptionRecord{Greeks: Greeks{Theta: decimal.NewNullDecimal(decimal.RequireFromString("-1e400"))}}
	_, ok := rec.MetricValue(MetricTheta)
	assert.False(t, ok)
}

func TestStrikeDistancePct(t *testing.T) {
	rec := OptionRecord{
		UnderlyingPrice: decimal.NewFromInt(400),
		StrikePrice:     decimal.NewFromInt(420),
	}
	assert.InDelta(t, 5.0, rec.StrikeDistancePct(), 1e-9)
}

func TestInputErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("load: %w", &InputError{Source: "chain.csv", Err: ErrEmptyInput})

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "chain.csv", inputErr.Source)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestEnrichedRecordJSONFlattensRecord(t *testing.T) {
	rec := EnrichedRecord{
		OptionRecord: OptionRecord{OptionType: Call, DaysToExpiry: 10},
		Moneyness:    ATM,
		Bucket:       DTEBucket{Index: 1, Label: "8-30", Min: 8, Max: 30},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "CALL", out["option_type"])
	assert.Equal(t, "ATM", out["moneyness"])
}
