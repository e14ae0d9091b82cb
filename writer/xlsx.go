package writer

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// XLSX artifact and sheet names.
const (
	SummaryXLSX     = "summary.xlsx"
	SheetMoneyness  = "by_moneyness"
	SheetDTE        = "by_dte"
	SheetRejections = "rejections"
	SheetRun        = "run"
)

// XLSXWriter writes the summary as a workbook with one sheet per grouping.
type XLSXWriter struct {
	dir string
	log *logger.Log
}

func NewXLSXWriter(dir string) *XLSXWriter {
	return &XLSXWriter{dir: dir, log: logger.GetLogger()}
}

// wideHeader is the header of a summary sheet for the given quantiles.
func wideHeader(quantiles []float64) []interface{} {
	header := []interface{}{"group", "subgroup", "metric", "records", "count", "mean", "std", "min"}
	for _, p := range quantiles {
		header = append(header, quantileLabel(p))
	}
	return append(header, "max")
}

func wideRows(groups []models.GroupSummary, metrics []models.Metric) [][]interface{} {
	var rows [][]interface{}
	for _, g := range groups {
		for _, m := range metrics {
			s := g.Metrics[m]
			row := []interface{}{g.Group, g.Subgroup, string(m), g.Records, s.Count, s.Mean, s.StdDev, s.Min}
			for _, q := range s.Quantiles {
				row = append(row, q.Value)
			}
			rows = append(rows, append(row, s.Max))
		}
	}
	return rows
}

func runRows(report *models.Report) [][]interface{} {
	rows := [][]interface{}{
		{"run_id", report.RunID},
		{"generated_at", report.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")},
		{"atm_tolerance_pct", report.Params.ATMTolerancePct},
		{"dte_bucket_edges", fmt.Sprint(report.Params.DTEBucketEdges)},
		{"rows_read", report.RowsRead},
		{"rows_rejected", report.RowsRejected},
		{"records_loaded", report.RecordsLoaded},
		{"records_accepted", report.RecordsAccepted},
	}
	for _, reason := range models.DropReasons {
		rows = append(rows, []interface{}{"dropped_" + string(reason), report.RecordsDropped[reason]})
	}
	for _, src := range report.Sources {
		rows = append(rows, []interface{}{"source", src})
	}
	return rows
}

func setRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	all := append([][]interface{}{header}, rows...)
	for i := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &all[i]); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func (w *XLSXWriter) Write(ctx context.Context, report *models.Report) ([]Artifact, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetMoneyness); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetDTE, SheetRejections, SheetRun} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	metrics := report.Summary.Metrics
	header := wideHeader(report.Summary.Quantiles)
	moneyness := wideRows(report.Summary.ByMoneyness, metrics)
	dte := wideRows(report.Summary.ByBucket, metrics)

	rejections := make([][]interface{}, len(report.Rejections))
	for i, r := range report.Rejections {
		rejections[i] = []interface{}{r.Source, r.Line, r.Reason}
	}

	sheets := []struct {
		name   string
		header []interface{}
		rows   [][]interface{}
	}{
		{SheetMoneyness, header, moneyness},
		{SheetDTE, header, dte},
		{SheetRejections, []interface{}{"source", "line", "reason"}, rejections},
		{SheetRun, []interface{}{"key", "value"}, runRows(report)},
	}
	for _, s := range sheets {
		if err := setRows(f, s.name, s.header, s.rows); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	a, err := writeFile(w.dir, SummaryXLSX, appconfig.FormatXLSX, buf.Bytes(), len(moneyness)+len(dte))
	if err != nil {
		return nil, err
	}
	w.log.WithComponent("xlsx_writer").WithFields(logger.Fields{"file": a.Path, "size": a.Size}).Debug("workbook written")
	return []Artifact{a}, nil
}
