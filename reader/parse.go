package reader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"optionsflow/models"
)

var emptyMarkers = map[string]bool{
	"":     true,
	"-":    true,
	"nan":  true,
	"null": true,
	"none": true,
	"n/a":  true,
}

func isEmpty(s string) bool {
	return emptyMarkers[strings.ToLower(strings.TrimSpace(s))]
}

func field(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func parseOptionalDecimal(name, s string) (decimal.NullDecimal, error) {
	if isEmpty(s) {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("non-numeric %s: %q", name, s)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseRequiredDecimal(name, s string) (decimal.Decimal, error) {
	if isEmpty(s) {
		return decimal.Decimal{}, fmt.Errorf("missing %s", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("non-numeric %s: %q", name, s)
	}
	return d, nil
}

func parseVolume(s string) (*int64, error) {
	if isEmpty(s) {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("non-numeric volume: %q", s)
	}
	v := d.IntPart()
	return &v, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

// parseDate tries the configured layout first and returns a calendar date.
func parseDate(name, s, layout string) (time.Time, error) {
	if isEmpty(s) {
		return time.Time{}, fmt.Errorf("missing %s", name)
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return models.CalendarDate(t), nil
		}
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return models.CalendarDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable %s: %q", name, s)
}

// Bounds for numeric date fields. maxUnixSeconds is 9999-12-31T23:59:59Z.
const (
	maxDaysToExpiry = 36500
	maxUnixSeconds  = 253402300799
)

func parseUnixDate(name, s string) (time.Time, error) {
	if isEmpty(s) {
		return time.Time{}, fmt.Errorf("missing %s", name)
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("unparseable %s: %q", name, s)
	}
	if secs < 0 || secs > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("%s out of range: %q", name, s)
	}
	return models.CalendarDate(time.Unix(int64(secs), 0).UTC()), nil
}

func parseDays(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-numeric days to expiry: %q", s)
	}
	if math.Abs(f) > maxDaysToExpiry {
		return 0, fmt.Errorf("days to expiry out of range: %q", s)
	}
	return int(math.Round(f)), nil
}
