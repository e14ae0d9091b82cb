package processor

import (
	"time"

	"optionsflow/logger"
	"optionsflow/models"
)

// SubgroupAll is the subgroup label of a marginal row, pooling every
// subgroup of its group.
const SubgroupAll = "all"

// Aggregator computes grouped descriptive statistics.
type Aggregator struct {
	buckets   []models.DTEBucket
	quantiles []float64
	metrics   []models.Metric
	log       *logger.Log
}

func NewAggregator(buckets []models.DTEBucket, quantiles []float64) *Aggregator {
	log := logger.GetLogger()
	log.WithComponent("aggregator").WithFields(logger.Fields{
		"buckets":   len(buckets),
		"quantiles": quantiles,
	}).Debug("aggregator initialized")
	return &Aggregator{
		buckets:   buckets,
		quantiles: append([]float64(nil), quantiles...),
		metrics:   models.SummaryMetrics,
		log:       log,
	}
}

type cellKey struct {
	moneyness models.Moneyness
	bucket    int
}

// Summarize groups records by moneyness then bucket and by bucket then
// moneyness. Every combination is present in the fixed category and bucket
// order; each group is followed by a marginal "all" row.
func (a *Aggregator) Summarize(records []models.EnrichedRecord) models.Summary {
	start := time.Now()

	cells := make(map[cellKey][]models.EnrichedRecord)
	for _, rec := range records {
		k := cellKey{rec.Moneyness, rec.Bucket.Index}
		cells[k] = append(cells[k], rec)
	}

	summary := models.Summary{
		Metrics:   a.metrics,
		Buckets:   a.buckets,
		Quantiles: a.quantiles,
	}

	for _, m := range models.MoneynessOrder {
		var pooled []models.EnrichedRecord
		for _, b := range a.buckets {
			cell := cells[cellKey{m, b.Index}]
			pooled = append(pooled, cell...)
			summary.ByMoneyness = append(summary.ByMoneyness, a.group(string(m), b.Label, cell))
		}
		summary.ByMoneyness = append(summary.ByMoneyness, a.group(string(m), SubgroupAll, pooled))
	}

	for _, b := range a.buckets {
		var pooled []models.EnrichedRecord
		for _, m := range models.MoneynessOrder {
			cell := cells[cellKey{m, b.Index}]
			pooled = append(pooled, cell...)
			summary.ByBucket = append(summary.ByBucket, a.group(b.Label, string(m), cell))
		}
		summary.ByBucket = append(summary.ByBucket, a.group(b.Label, SubgroupAll, pooled))
	}

	log := a.log.WithComponent("aggregator")
	logger.LogPerformanceEntry(log, "aggregator", "summarize", time.Since(start), logger.Fields{
		"records": len(records),
		"groups":  len(summary.ByMoneyness) + len(summary.ByBucket),
	})
	return summary
}

func (a *Aggregator) group(group, subgroup string, records []models.EnrichedRecord) models.GroupSummary {
	gs := models.GroupSummary{
		Group:    group,
		Subgroup: subgroup,
		Records:  len(records),
		Metrics:  make(map[models.Metric]models.Stats, len(a.metrics)),
	}
	for _, metric := range a.metrics {
		values := make([]float64, 0, len(records))
		for _, rec := range records {
			if v, ok := rec.MetricValue(metric); ok {
				values = append(values, v)
			}
		}
		gs.Metrics[metric] = Describe(values, a.quantiles)
	}
	return gs
}
