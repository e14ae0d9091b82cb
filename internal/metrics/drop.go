package metrics

import (
	"optionsflow/logger"
	"optionsflow/models"
)

// Metric names for records leaving the pipeline early.
const (
	MetricRowsRejected   = "rows_rejected"
	MetricRecordsDropped = "records_dropped"
)

// EmitDropCounts emits one records_dropped counter per drop reason, zero
// counts included so every series exists for the run.
func EmitDropCounts(log *logger.Log, dropped map[models.DropReason]int) {
	for _, reason := range models.DropReasons {
		EmitMetric(log, "cleaner", MetricRecordsDropped, dropped[reason], "counter", logger.Fields{
			"reason": string(reason),
			"unit":   "count",
		})
	}
}

// EmitRejections emits the number of rows the loader could not parse.
func EmitRejections(log *logger.Log, source string, count int) {
	fields := logger.Fields{"unit": "count"}
	if source != "" {
		fields["source"] = source
	}
	EmitMetric(log, "loader", MetricRowsRejected, count, "counter", fields)
}
