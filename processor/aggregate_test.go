package processor

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/config"
	"optionsflow/models"
)

func enrich(t *testing.T, records ...models.OptionRecord) ([]models.EnrichedRecord, []models.DTEBucket) {
	t.Helper()
	d, err := NewDeriver(analysisConfig(), config.ProcessorConfig{MaxWorkers: 1})
	require.NoError(t, err)
	out, err := d.Derive(context.Background(), records)
	require.NoError(t, err)
	return out, d.Buckets()
}

func TestDescribe(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	s := Describe(values, []float64{0.25, 0.5, 0.75})

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.StdDev, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	require.Len(t, s.Quantiles, 3)
	assert.InDelta(t, 1.75, s.Quantiles[0].Value, 1e-12)
	assert.InDelta(t, 2.5, s.Quantiles[1].Value, 1e-12)
	assert.InDelta(t, 3.25, s.Quantiles[2].Value, 1e-12)
	assert.Equal(t, []float64{4, 1, 3, 2}, values)
}

func TestDescribeEmptyAndSingle(t *testing.T) {
	empty := Describe(nil, []float64{0.5})
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, 0.0, empty.Mean)
	require.Len(t, empty.Quantiles, 1)
	assert.Equal(t, 0.5, empty.Quantiles[0].P)

	single := Describe([]float64{0.3}, []float64{0.5})
	assert.Equal(t, 1, single.Count)
	assert.Equal(t, 0.0, single.StdDev)
	assert.Equal(t, 0.3, single.Quantiles[0].Value)
}

func TestSummarizeTwoRecordsInOneCell(t *testing.T) {
	a := option(models.Call, "400", "400", 10)
	b := option(models.Call, "400", "401", 12)
	b.ImpliedVolatility = nd("0.3")
	records, buckets := enrich(t, a, b)

	summary := NewAggregator(buckets, []float64{0.5}).Summarize(records)

	g, ok := summary.Moneyness(models.ATM, "8-30")
	require.True(t, ok)
	assert.Equal(t, 2, g.Records)
	iv := g.Metrics[models.MetricImpliedVolatility]
	assert.Equal(t, 2, iv.Count)
	assert.InDelta(t, 0.25, iv.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.005), iv.StdDev, 1e-12)

	rev, ok := summary.Bucket("8-30", models.ATM)
	require.True(t, ok)
	assert.Equal(t, g.Metrics, rev.Metrics)
}

func TestSummarizeListsEveryCombination(t *testing.T) {
	records, buckets := enrich(t, option(models.Put, "400", "380", 45))
	summary := NewAggregator(buckets, []float64{0.5}).Summarize(records)

	// 3 categories x (4 buckets + marginal row)
	assert.Len(t, summary.ByMoneyness, 15)
	assert.Len(t, summary.ByBucket, 16)

	empty, ok := summary.Moneyness(models.ITM, "0-7")
	require.True(t, ok)
	assert.Equal(t, 0, empty.Records)
	assert.Equal(t, 0, empty.Metrics[models.MetricDelta].Count)

	all, ok := summary.Moneyness(models.OTM, SubgroupAll)
	require.True(t, ok)
	assert.Equal(t, 1, all.Records)

	assert.Equal(t, "ITM", summary.ByMoneyness[0].Group)
	assert.Equal(t, "0-7", summary.ByMoneyness[0].Subgroup)
	assert.Equal(t, "0-7", summary.ByBucket[0].Group)
	assert.Equal(t, "ITM", summary.ByBucket[0].Subgroup)
}

func TestSummarizeSkipsAbsentMetricValues(t *testing.T) {
	a := option(models.Call, "400", "400", 10)
	b := option(models.Call, "400", "400", 10)
	b.Greeks.Rho = decimal.NullDecimal{}
	records, buckets := enrich(t, a, b)

	g, _ := NewAggregator(buckets, nil).Summarize(records).Moneyness(models.ATM, "8-30")
	assert.Equal(t, 2, g.Records)
	assert.Equal(t, 2, g.Metrics[models.MetricDelta].Count)
	assert.Equal(t, 1, g.Metrics[models.MetricRho].Count)
}

func TestSummarizeIsDeterministic(t *testing.T) {
	records, buckets := enrich(t,
		option(models.Call, "400", "380", 5),
		option(models.Put, "400", "420", 60),
		option(models.Call, "400", "450", 200),
	)
	agg := NewAggregator(buckets, []float64{0.25, 0.75})
	assert.Equal(t, agg.Summarize(records), agg.Summarize(records))
}
