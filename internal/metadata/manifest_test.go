package metadata

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorWritesManifest(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "optionsflow", "run-1", time.Unix(0, 0))
	gen.AddFile(DataFile{
		Path:        filepath.Join(dir, "summary_by_moneyness.csv"),
		Format:      "csv",
		FileSize:    100,
		RecordCount: 10,
		Partition:   map[string]any{"snapshot": "2023-03-01"},
	})
	gen.AddFile(DataFile{Path: filepath.Join(dir, "report.json"), Format: "json", FileSize: 50, RecordCount: 1})

	path, size, err := gen.Write()
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if size == 0 {
		t.Fatalf("expected non-empty manifest")
	}

	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.RunID != "run-1" || m.ManifestUUID == "" {
		t.Fatalf("unexpected envelope: %+v", m)
	}
	if len(m.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(m.Files))
	}
	if m.Files[0].Path != "report.json" || m.Files[1].Path != "summary_by_moneyness.csv" {
		t.Fatalf("files not relative and sorted: %+v", m.Files)
	}
	if m.Files[1].Partition["snapshot"] != "2023-03-01" {
		t.Fatalf("partition lost: %+v", m.Files[1].Partition)
	}
}

func TestAddFileKeepsOutsidePaths(t *testing.T) {
	gen := NewGenerator(t.TempDir(), "optionsflow", "run-2", time.Now())
	gen.AddFile(DataFile{Path: "s3://bucket/key.csv"})
	if got := gen.Manifest().Files[0].Path; got != "s3://bucket/key.csv" {
		t.Fatalf("path rewritten: %s", got)
	}
}

func TestReadManifestMissing(t *testing.T) {
	if _, err := ReadManifest(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error")
	}
}
