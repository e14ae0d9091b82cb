package models

import "fmt"

// Moneyness classifies a strike against the underlying.
type Moneyness string

const (
	ITM Moneyness = "ITM"
	ATM Moneyness = "ATM"
	OTM Moneyness = "OTM"
)

// MoneynessOrder is the fixed output order of categories.
var MoneynessOrder = []Moneyness{ITM, ATM, OTM}

// DTEBucket is a closed range of days to expiry. Max < 0 means unbounded.
type DTEBucket struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Contains reports whether dte falls into the bucket.
func (b DTEBucket) Contains(dte int) bool {
	if dte < b.Min {
		return false
	}
	return b.Max < 0 || dte <= b.Max
}

// BucketLabel renders the label for [lo, hi], or >lo-1 when hi < 0.
func BucketLabel(lo, hi int) string {
	if hi < 0 {
		return fmt.Sprintf(">%d", lo-1)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

// EnrichedRecord is an accepted record with its derived tags.
type EnrichedRecord struct {
	OptionRecord
	Moneyness Moneyness `json:"moneyness"`
	Bucket    DTEBucket `json:"dte_bucket"`
}
