package processor

import (
	"fmt"

	"optionsflow/models"
)

// NewBuckets partitions days to expiry at the given ascending edges:
// [0, e1], [e1+1, e2], ..., [en+1, inf).
func NewBuckets(edges []int) ([]models.DTEBucket, error) {
	if len(edges) == 0 {
		return nil, fmt.Errorf("at least one bucket edge is required")
	}
	buckets := make([]models.DTEBucket, 0, len(edges)+1)
	lo := 0
	for i, e := range edges {
		if e < 0 {
			return nil, fmt.Errorf("bucket edge %d is negative", e)
		}
		if i > 0 && e <= edges[i-1] {
			return nil, fmt.Errorf("bucket edges must be strictly ascending: %v", edges)
		}
		buckets = append(buckets, models.DTEBucket{Index: i, Label: models.BucketLabel(lo, e), Min: lo, Max: e})
		lo = e + 1
	}
	buckets = append(buckets, models.DTEBucket{Index: len(edges), Label: models.BucketLabel(lo, -1), Min: lo, Max: -1})
	return buckets, nil
}

// BucketFor returns the bucket containing dte.
func BucketFor(buckets []models.DTEBucket, dte int) (models.DTEBucket, bool) {
	for _, b := range buckets {
		if b.Contains(dte) {
			return b, true
		}
	}
	return models.DTEBucket{}, false
}
