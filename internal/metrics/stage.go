package metrics

import (
	"time"

	"optionsflow/logger"
)

// StageStats describes one pipeline stage of a run.
type StageStats struct {
	Stage      string
	Duration   time.Duration
	RecordsIn  int
	RecordsOut int
}

// ReportStage emits the stage duration and throughput.
func ReportStage(log *logger.Log, stats StageStats) {
	l := log.WithComponent("pipeline")

	dropRate := float64(0)
	if stats.RecordsIn > 0 {
		dropRate = float64(stats.RecordsIn-stats.RecordsOut) / float64(stats.RecordsIn)
	}
	fields := logger.Fields{"stage": stats.Stage}

	EmitMetric(log, "pipeline", "stage_duration_ms", float64(stats.Duration.Microseconds())/1000, "gauge", logger.Fields{"stage": stats.Stage, "unit": "milliseconds"})
	EmitMetric(log, "pipeline", "stage_records_out", stats.RecordsOut, "gauge", fields)

	l.WithFields(logger.Fields{
		"stage":       stats.Stage,
		"duration_ms": stats.Duration.Milliseconds(),
		"records_in":  stats.RecordsIn,
		"records_out": stats.RecordsOut,
		"drop_rate":   dropRate,
	}).Info("stage completed")
}

// WriterStats holds the output counters of a run.
type WriterStats struct {
	FilesWritten int64
	BytesWritten int64
	Uploaded     int64
	ErrorsCount  int64
}

// ReportWriter emits writer metrics for component.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	l := log.WithComponent(component)

	avgBytesPerFile := float64(0)
	if stats.FilesWritten > 0 {
		avgBytesPerFile = float64(stats.BytesWritten) / float64(stats.FilesWritten)
	}

	EmitMetric(log, component, "files_written", stats.FilesWritten, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "bytes_written", stats.BytesWritten, "counter", logger.Fields{"unit": "bytes"})
	EmitMetric(log, component, "files_uploaded", stats.Uploaded, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "errors_count", stats.ErrorsCount, "counter", logger.Fields{"unit": "count"})

	entry := l.WithFields(logger.Fields{
		"files_written":      stats.FilesWritten,
		"bytes_written":      stats.BytesWritten,
		"files_uploaded":     stats.Uploaded,
		"errors_count":       stats.ErrorsCount,
		"avg_bytes_per_file": avgBytesPerFile,
	})
	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}
	entry.Info(component + " metrics")
}
