package writer

import (
	"math"
	"strconv"

	"optionsflow/models"
)

// Groupings of the summary table.
const (
	GroupingMoneyness = "by_moneyness"
	GroupingDTE       = "by_dte"
)

// statRow is one statistic of one metric of one group.
type statRow struct {
	Group     string
	Subgroup  string
	Metric    models.Metric
	Statistic string
	Value     float64
}

// quantileLabel renders 0.25 as p25.
func quantileLabel(p float64) string {
	return "p" + strconv.FormatFloat(math.Round(p*1e6)/1e4, 'f', -1, 64)
}

// statistics lists a Stats value as named statistics in output order.
func statistics(s models.Stats) ([]string, []float64) {
	names := []string{"count", "mean", "std", "min"}
	values := []float64{float64(s.Count), s.Mean, s.StdDev, s.Min}
	for _, q := range s.Quantiles {
		names = append(names, quantileLabel(q.P))
		values = append(values, q.Value)
	}
	return append(names, "max"), append(values, s.Max)
}

func statRows(groups []models.GroupSummary, metrics []models.Metric) []statRow {
	var rows []statRow
	for _, g := range groups {
		for _, m := range metrics {
			names, values := statistics(g.Metrics[m])
			for i := range names {
				rows = append(rows, statRow{
					Group:     g.Group,
					Subgroup:  g.Subgroup,
					Metric:    m,
					Statistic: names[i],
					Value:     values[i],
				})
			}
		}
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
