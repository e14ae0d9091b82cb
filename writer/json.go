package writer

import (
	"context"
	"encoding/json"
	"fmt"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// ReportJSON is the name of the JSON report artifact.
const ReportJSON = "report.json"

// JSONWriter writes the whole report as indented JSON.
type JSONWriter struct {
	dir string
	log *logger.Log
}

func NewJSONWriter(dir string) *JSONWriter {
	return &JSONWriter{dir: dir, log: logger.GetLogger()}
}

func (w *JSONWriter) Write(ctx context.Context, report *models.Report) ([]Artifact, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	a, err := writeFile(w.dir, ReportJSON, appconfig.FormatJSON, append(data, '\n'), 1)
	if err != nil {
		return nil, err
	}
	w.log.WithComponent("json_writer").WithFields(logger.Fields{"file": a.Path, "size": a.Size}).Debug("report written")
	return []Artifact{a}, nil
}

// ReadReport decodes a report written by JSONWriter.
func ReadReport(data []byte) (*models.Report, error) {
	var r models.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
