package metrics

import (
	"context"
	"runtime"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"optionsflow/logger"
	"optionsflow/models"
)

// ReportRun logs the run counters together with host statistics and sends
// them to CloudWatch as one batch.
func ReportRun(ctx context.Context, log *logger.Log, report *models.Report) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memUsedMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}

	warns, errs := int64(0), int64(0)
	for _, c := range logger.Counts() {
		warns += c.Warns
		errs += c.Errors
	}

	fields := logger.Fields{
		"run_id":           report.RunID,
		"rows_read":        report.RowsRead,
		"rows_rejected":    report.RowsRejected,
		"records_loaded":   report.RecordsLoaded,
		"records_dropped":  report.TotalDropped(),
		"records_accepted": report.RecordsAccepted,
		"warnings":         warns,
		"errors":           errs,
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_used_mb":   int64(memUsedMB),
	}
	log.WithComponent("report").WithFields(fields).Info("run report")

	EmitMetric(log, "loader", "rows_read", report.RowsRead, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, "cleaner", "records_accepted", report.RecordsAccepted, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, "runtime", "memory_used_mb", memUsedMB, "gauge", logger.Fields{"unit": "megabytes"})

	component := func(name string) []cwtypes.Dimension {
		return []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(name)}}
	}
	PublishBatch(ctx, []cwtypes.MetricDatum{
		{MetricName: aws.String("RunRowsRejected"), Dimensions: component("loader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(report.RowsRejected))},
		{MetricName: aws.String("RunRecordsDropped"), Dimensions: component("cleaner"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(report.TotalDropped()))},
		{MetricName: aws.String("RunWarnings"), Dimensions: component("runtime"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(warns))},
		{MetricName: aws.String("RunErrors"), Dimensions: component("runtime"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(errs))},
		{MetricName: aws.String("RunCPUPercent"), Dimensions: component("runtime"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
	})
}
