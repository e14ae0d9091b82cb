package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/metadata"
	"optionsflow/logger"
	"optionsflow/models"
)

// Artifact is one file produced for a report.
type Artifact struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Format  string `json:"format"`
	Size    int64  `json:"size_bytes"`
	Records int    `json:"record_count"`
	URI     string `json:"uri,omitempty"`
}

// Writer renders a report into one or more artifacts.
type Writer interface {
	Write(ctx context.Context, report *models.Report) ([]Artifact, error)
}

// New returns one writer per configured format, in configuration order.
func New(cfg *appconfig.Config) ([]Writer, error) {
	dir := cfg.Writer.OutputDir
	var writers []Writer
	for _, f := range cfg.Writer.Formats {
		switch f {
		case appconfig.FormatCSV:
			writers = append(writers, NewCSVWriter(dir))
		case appconfig.FormatJSON:
			writers = append(writers, NewJSONWriter(dir))
		case appconfig.FormatParquet:
			writers = append(writers, NewParquetWriter(dir, cfg.Writer.Parquet.Compression))
		case appconfig.FormatXLSX:
			writers = append(writers, NewXLSXWriter(dir))
		default:
			return nil, fmt.Errorf("unsupported output format '%s'", f)
		}
	}
	return writers, nil
}

// WriteAll runs every writer and records the artifacts in manifest.json.
// The manifest itself is returned as the last artifact.
func WriteAll(ctx context.Context, writers []Writer, dir string, report *models.Report) ([]Artifact, error) {
	start := time.Now()
	log := logger.GetLogger().WithComponent("writer").WithRun(report.RunID)

	var artifacts []Artifact
	for _, w := range writers {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		out, err := w.Write(ctx, report)
		if err != nil {
			log.WithError(err).Error("writer failed")
			return artifacts, err
		}
		artifacts = append(artifacts, out...)
	}

	gen := metadata.NewGenerator(dir, "optionsflow", report.RunID, report.GeneratedAt)
	for _, a := range artifacts {
		gen.AddFile(metadata.DataFile{
			Path:        a.Path,
			Format:      a.Format,
			FileSize:    a.Size,
			RecordCount: int64(a.Records),
			Partition:   partition(report),
		})
	}
	path, size, err := gen.Write()
	if err != nil {
		return artifacts, fmt.Errorf("failed to write manifest: %w", err)
	}
	artifacts = append(artifacts, Artifact{
		Name:    metadata.ManifestFileName,
		Path:    path,
		Format:  "manifest",
		Size:    size,
		Records: len(artifacts),
	})

	logger.LogPerformanceEntry(log, "writer", "write_all", time.Since(start), logger.Fields{"artifacts": len(artifacts)})
	return artifacts, nil
}

func partition(report *models.Report) map[string]any {
	return map[string]any{
		"snapshot": snapshotPartition(report, models.DateLayout),
		"run":      report.RunID,
	}
}

// snapshotPartition is the latest snapshot date of the report, or the
// generation date when the report has none.
func snapshotPartition(report *models.Report, layout string) string {
	if n := len(report.SnapshotDates); n > 0 {
		if t, err := time.Parse(models.DateLayout, report.SnapshotDates[n-1]); err == nil {
			return t.Format(layout)
		}
		return report.SnapshotDates[n-1]
	}
	return report.GeneratedAt.UTC().Format(layout)
}

// writeFile stores data as dir/name and describes it.
func writeFile(dir, name, format string, data []byte, records int) (Artifact, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return Artifact{
		Name:    name,
		Path:    path,
		Format:  format,
		Size:    int64(len(data)),
		Records: records,
	}, nil
}
