package models

import "time"

// Quantile is one configured order statistic of a group.
type Quantile struct {
	P     float64 `json:"p"`
	Value float64 `json:"value"`
}

// Stats are the descriptive statistics of one metric in one group.
// An empty group has Count 0 and zero values.
type Stats struct {
	Count     int        `json:"count"`
	Mean      float64    `json:"mean"`
	StdDev    float64    `json:"std"`
	Min       float64    `json:"min"`
	Quantiles []Quantile `json:"quantiles"`
	Max       float64    `json:"max"`
}

// GroupSummary holds the statistics of every metric for one group pair.
type GroupSummary struct {
	Group    string           `json:"group"`
	Subgroup string           `json:"subgroup"`
	Records  int              `json:"records"`
	Metrics  map[Metric]Stats `json:"metrics"`
}

// Summary is the grouped output table. Both groupings list every
// category and bucket combination in fixed order.
type Summary struct {
	Metrics     []Metric       `json:"metrics"`
	Buckets     []DTEBucket    `json:"buckets"`
	Quantiles   []float64      `json:"quantiles"`
	ByMoneyness []GroupSummary `json:"by_moneyness"`
	ByBucket    []GroupSummary `json:"by_dte_bucket"`
}

// Moneyness returns the group for category m and the given bucket label.
func (s Summary) Moneyness(m Moneyness, bucket string) (GroupSummary, bool) {
	return findGroup(s.ByMoneyness, string(m), bucket)
}

// Bucket returns the group for the bucket label and category m.
func (s Summary) Bucket(bucket string, m Moneyness) (GroupSummary, bool) {
	return findGroup(s.ByBucket, bucket, string(m))
}

func findGroup(groups []GroupSummary, group, subgroup string) (GroupSummary, bool) {
	for _, g := range groups {
		if g.Group == group && g.Subgroup == subgroup {
			return g, true
		}
	}
	return GroupSummary{}, false
}

// CorrelationMatrix is a symmetric Pearson matrix over Fields.
type CorrelationMatrix struct {
	Fields []string    `json:"fields"`
	Values [][]float64 `json:"values"`
}

// At returns the correlation of fields a and b.
func (c CorrelationMatrix) At(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, f := range c.Fields {
		if f == a {
			i = k
		}
		if f == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return c.Values[i][j], true
}

// WeeklyStat aggregates one ISO week of one option type.
type WeeklyStat struct {
	Year       int        `json:"year"`
	Week       int        `json:"week"`
	OptionType OptionType `json:"option_type"`
	Count      int        `json:"count"`
	MeanIV     float64    `json:"mean_iv"`
	MeanDelta  float64    `json:"mean_delta"`
}

// ExpiryStat aggregates implied volatility per expiration date.
type ExpiryStat struct {
	ExpiryDate time.Time `json:"expiry_date"`
	CallCount  int       `json:"call_count"`
	PutCount   int       `json:"put_count"`
	MeanCallIV float64   `json:"mean_call_iv"`
	MeanPutIV  float64   `json:"mean_put_iv"`
}

// DecayObservation is the change in last price of one contract between
// two consecutive snapshots.
type DecayObservation struct {
	Contract     string     `json:"contract"`
	OptionType   OptionType `json:"option_type"`
	QuoteDate    time.Time  `json:"quote_date"`
	DaysToExpiry int        `json:"days_to_expiry"`
	PrevLast     float64    `json:"prev_last"`
	Change       float64    `json:"change"`
	DecayRate    float64    `json:"decay_rate"`
}

// DecayStat is the mean decay rate of one bucket and option type.
type DecayStat struct {
	Bucket        string     `json:"bucket"`
	OptionType    OptionType `json:"option_type"`
	Observations  int        `json:"observations"`
	MeanDecayRate float64    `json:"mean_decay_rate"`
}

// Supplementary collects the secondary analyses run on accepted records.
type Supplementary struct {
	MissingValues map[string]int    `json:"missing_values"`
	Outliers      map[Metric]int    `json:"outliers"`
	Correlation   CorrelationMatrix `json:"correlation"`
	Weekly        []WeeklyStat      `json:"weekly"`
	Expiry        []ExpiryStat      `json:"expiry"`
	Decay         []DecayStat       `json:"decay"`
}

// AnalysisParams echoes the configuration a report was produced with.
type AnalysisParams struct {
	ATMTolerancePct float64   `json:"atm_tolerance_pct"`
	DTEBucketEdges  []int     `json:"dte_bucket_edges"`
	Quantiles       []float64 `json:"quantiles"`
}

// Report is the outcome of one pipeline run.
type Report struct {
	RunID         string         `json:"run_id"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Sources       []string       `json:"sources"`
	SnapshotDates []string       `json:"snapshot_dates"`
	Params        AnalysisParams `json:"params"`

	RowsRead        int                `json:"rows_read"`
	RowsRejected    int                `json:"rows_rejected"`
	Rejections      []RowRejection     `json:"rejections"`
	RecordsLoaded   int                `json:"records_loaded"`
	RecordsDropped  map[DropReason]int `json:"records_dropped"`
	RecordsAccepted int                `json:"records_accepted"`

	Summary       Summary       `json:"summary"`
	Supplementary Supplementary `json:"supplementary"`
}

// TotalDropped sums RecordsDropped.
func (r *Report) TotalDropped() int {
	n := 0
	for _, c := range r.RecordsDropped {
		n += c
	}
	return n
}
