package writer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// CSV artifact names.
const (
	SummaryByMoneynessCSV = "summary_by_moneyness.csv"
	SummaryByDTECSV       = "summary_by_dte.csv"
	RejectionsCSV         = "rejections.csv"
)

var (
	summaryHeader   = []string{"group", "subgroup", "metric", "statistic", "value"}
	rejectionHeader = []string{"source", "line", "reason"}
)

// CSVWriter writes the summary in long form plus the rejection log.
type CSVWriter struct {
	dir string
	log *logger.Log
}

func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir, log: logger.GetLogger()}
}

func (w *CSVWriter) Write(ctx context.Context, report *models.Report) ([]Artifact, error) {
	log := w.log.WithComponent("csv_writer").WithRun(report.RunID)

	files := []struct {
		name    string
		header  []string
		records [][]string
	}{
		{SummaryByMoneynessCSV, summaryHeader, summaryRecords(report.Summary.ByMoneyness, report.Summary.Metrics)},
		{SummaryByDTECSV, summaryHeader, summaryRecords(report.Summary.ByBucket, report.Summary.Metrics)},
		{RejectionsCSV, rejectionHeader, rejectionRecords(report.Rejections)},
	}

	artifacts := make([]Artifact, 0, len(files))
	for _, f := range files {
		data, err := encodeCSV(f.header, f.records)
		if err != nil {
			return artifacts, fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
		a, err := writeFile(w.dir, f.name, appconfig.FormatCSV, data, len(f.records))
		if err != nil {
			return artifacts, err
		}
		log.WithFields(logger.Fields{"file": a.Path, "records": a.Records}).Debug("csv written")
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func summaryRecords(groups []models.GroupSummary, metrics []models.Metric) [][]string {
	rows := statRows(groups, metrics)
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{r.Group, r.Subgroup, string(r.Metric), r.Statistic, formatFloat(r.Value)}
	}
	return out
}

func rejectionRecords(rejections []models.RowRejection) [][]string {
	out := make([][]string, len(rejections))
	for i, r := range rejections {
		out[i] = []string{r.Source, strconv.Itoa(r.Line), r.Reason}
	}
	return out
}

func encodeCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
