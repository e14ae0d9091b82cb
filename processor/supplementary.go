package processor

import (
	"math"
	"sort"
	"time"

	"optionsflow/logger"
	"optionsflow/models"
)

// Field names used by MissingValues and CorrelationMatrix in addition to
// the summary metrics.
const (
	FieldBid               = "bid"
	FieldAsk               = "ask"
	FieldLastPrice         = "last_price"
	FieldDaysToExpiry      = "days_to_expiry"
	FieldStrikeDistancePct = "strike_distance_pct"
)

// MissingValues counts absent optional fields per field name.
func MissingValues(records []models.EnrichedRecord) map[string]int {
	counts := map[string]int{
		FieldBid:       0,
		FieldAsk:       0,
		FieldLastPrice: 0,
	}
	for _, m := range models.SummaryMetrics {
		counts[string(m)] = 0
	}
	for _, rec := range records {
		if !rec.Bid.Valid {
			counts[FieldBid]++
		}
		if !rec.Ask.Valid {
			counts[FieldAsk]++
		}
		if !rec.LastPrice.Valid {
			counts[FieldLastPrice]++
		}
		for _, m := range models.SummaryMetrics {
			if _, ok := rec.MetricValue(m); !ok {
				counts[string(m)]++
			}
		}
	}
	return counts
}

// DetectOutliers counts, per metric, values outside
// [Q1 - k*IQR, Q3 + k*IQR].
func DetectOutliers(records []models.EnrichedRecord, multiplier float64) map[models.Metric]int {
	out := make(map[models.Metric]int, len(models.SummaryMetrics))
	for _, m := range models.SummaryMetrics {
		values := metricValues(records, m)
		out[m] = 0
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		q1, q3 := quantile(values, 0.25), quantile(values, 0.75)
		iqr := q3 - q1
		lo, hi := q1-multiplier*iqr, q3+multiplier*iqr
		for _, v := range values {
			if v < lo || v > hi {
				out[m]++
			}
		}
	}
	return out
}

func metricValues(records []models.EnrichedRecord, m models.Metric) []float64 {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.MetricValue(m); ok {
			values = append(values, v)
		}
	}
	return values
}

// CorrelationFields lists the matrix axes in order.
func CorrelationFields() []string {
	fields := make([]string, 0, len(models.SummaryMetrics)+2)
	for _, m := range models.SummaryMetrics {
		fields = append(fields, string(m))
	}
	return append(fields, FieldDaysToExpiry, FieldStrikeDistancePct)
}

func fieldValue(rec models.EnrichedRecord, field string) (float64, bool) {
	switch field {
	case FieldDaysToExpiry:
		return float64(rec.DaysToExpiry), true
	case FieldStrikeDistancePct:
		return rec.StrikeDistancePct(), true
	default:
		return rec.MetricValue(models.Metric(field))
	}
}

// CorrelationMatrix computes Pearson correlations over pairwise-complete
// observations. Undefined correlations are reported as 0; the diagonal of a
// field with any variance is 1.
func CorrelationMatrix(records []models.EnrichedRecord) models.CorrelationMatrix {
	fields := CorrelationFields()
	n := len(fields)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var xs, ys []float64
			for _, rec := range records {
				x, okX := fieldValue(rec, fields[i])
				y, okY := fieldValue(rec, fields[j])
				if okX && okY {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			c := pearson(xs, ys)
			values[i][j] = c
			values[j][i] = c
		}
	}
	return models.CorrelationMatrix{Fields: fields, Values: values}
}

type weekKey struct {
	year, week int
	typ        models.OptionType
}

// WeeklyAggregation averages implied volatility and delta per ISO week of
// the quote date and option type.
func WeeklyAggregation(records []models.EnrichedRecord) []models.WeeklyStat {
	type acc struct {
		count     int
		iv, delta []float64
	}
	groups := make(map[weekKey]*acc)
	for _, rec := range records {
		y, w := rec.QuoteDate.ISOWeek()
		k := weekKey{y, w, rec.OptionType}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.count++
		if v, ok := rec.MetricValue(models.MetricImpliedVolatility); ok {
			a.iv = append(a.iv, v)
		}
		if v, ok := rec.MetricValue(models.MetricDelta); ok {
			a.delta = append(a.delta, v)
		}
	}

	out := make([]models.WeeklyStat, 0, len(groups))
	for k, a := range groups {
		out = append(out, models.WeeklyStat{
			Year:       k.year,
			Week:       k.week,
			OptionType: k.typ,
			Count:      a.count,
			MeanIV:     mean(a.iv),
			MeanDelta:  mean(a.delta),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Week != out[j].Week {
			return out[i].Week < out[j].Week
		}
		return out[i].OptionType < out[j].OptionType
	})
	return out
}

// ExpiryAggregation averages call and put implied volatility per expiry.
func ExpiryAggregation(records []models.EnrichedRecord) []models.ExpiryStat {
	type acc struct {
		calls, puts []float64
		nCall, nPut int
	}
	groups := make(map[time.Time]*acc)
	for _, rec := range records {
		k := models.CalendarDate(rec.ExpiryDate)
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		v, hasIV := rec.MetricValue(models.MetricImpliedVolatility)
		switch rec.OptionType {
		case models.Call:
			a.nCall++
			if hasIV {
				a.calls = append(a.calls, v)
			}
		case models.Put:
			a.nPut++
			if hasIV {
				a.puts = append(a.puts, v)
			}
		}
	}

	out := make([]models.ExpiryStat, 0, len(groups))
	for k, a := range groups {
		out = append(out, models.ExpiryStat{
			ExpiryDate: k,
			CallCount:  a.nCall,
			PutCount:   a.nPut,
			MeanCallIV: mean(a.calls),
			MeanPutIV:  mean(a.puts),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out
}

// DecayObservations tracks each contract across snapshot dates and returns
// the change in last price against the previous snapshot. Observations with
// an undefined rate are skipped.
func DecayObservations(records []models.EnrichedRecord) []models.DecayObservation {
	byContract := make(map[string][]models.EnrichedRecord)
	for _, rec := range records {
		if !rec.LastPrice.Valid {
			continue
		}
		k := rec.ContractKey()
		byContract[k] = append(byContract[k], rec)
	}

	keys := make([]string, 0, len(byContract))
	for k := range byContract {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []models.DecayObservation
	for _, k := range keys {
		series := byContract[k]
		sort.SliceStable(series, func(i, j int) bool { return series[i].QuoteDate.Before(series[j].QuoteDate) })
		for i := 1; i < len(series); i++ {
			prev := series[i-1].LastPrice.Decimal.InexactFloat64()
			cur := series[i].LastPrice.Decimal.InexactFloat64()
			if !models.CalendarDate(series[i].QuoteDate).After(models.CalendarDate(series[i-1].QuoteDate)) {
				continue
			}
			change := cur - prev
			rate := change / prev
			if math.IsInf(rate, 0) || math.IsNaN(rate) {
				continue
			}
			out = append(out, models.DecayObservation{
				Contract:     k,
				OptionType:   series[i].OptionType,
				QuoteDate:    series[i].QuoteDate,
				DaysToExpiry: series[i].DaysToExpiry,
				PrevLast:     prev,
				Change:       change,
				DecayRate:    rate,
			})
		}
	}
	return out
}

// DecayFeatures summarises decay observations as the mean rate per DTE
// bucket and option type. It is empty for single-snapshot input.
func DecayFeatures(records []models.EnrichedRecord, buckets []models.DTEBucket) []models.DecayStat {
	type key struct {
		bucket int
		typ    models.OptionType
	}
	rates := make(map[key][]float64)
	for _, obs := range DecayObservations(records) {
		b, ok := BucketFor(buckets, obs.DaysToExpiry)
		if !ok {
			continue
		}
		k := key{b.Index, obs.OptionType}
		rates[k] = append(rates[k], obs.DecayRate)
	}

	var out []models.DecayStat
	for _, b := range buckets {
		for _, typ := range []models.OptionType{models.Call, models.Put} {
			rs, ok := rates[key{b.Index, typ}]
			if !ok {
				continue
			}
			out = append(out, models.DecayStat{
				Bucket:        b.Label,
				OptionType:    typ,
				Observations:  len(rs),
				MeanDecayRate: mean(rs),
			})
		}
	}
	return out
}

// Supplement runs every secondary analysis.
func Supplement(records []models.EnrichedRecord, buckets []models.DTEBucket, outlierMultiplier float64) models.Supplementary {
	start := time.Now()
	s := models.Supplementary{
		MissingValues: MissingValues(records),
		Outliers:      DetectOutliers(records, outlierMultiplier),
		Correlation:   CorrelationMatrix(records),
		Weekly:        WeeklyAggregation(records),
		Expiry:        ExpiryAggregation(records),
		Decay:         DecayFeatures(records, buckets),
	}
	log := logger.GetLogger().WithComponent("supplementary")
	logger.LogPerformanceEntry(log, "supplementary", "supplement", time.Since(start), logger.Fields{
		"records":      len(records),
		"weeks":        len(s.Weekly),
		"expiries":     len(s.Expiry),
		"decay_groups": len(s.Decay),
	})
	return s
}
