package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ManifestFileName is the name of the manifest written next to the artifacts.
const ManifestFileName = "manifest.json"

// DataFile describes a single artifact written by a run.
type DataFile struct {
	Path        string         `json:"path"`
	Format      string         `json:"format"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition,omitempty"`
}

// Manifest lists every artifact of one run.
type Manifest struct {
	FormatVersion int        `json:"format-version"`
	ManifestUUID  string     `json:"manifest-uuid"`
	RunID         string     `json:"run-id"`
	Name          string     `json:"name"`
	Location      string     `json:"location"`
	TimestampMs   int64      `json:"timestamp-ms"`
	Files         []DataFile `json:"files"`
}

// Generator accumulates artifact entries for a run and writes the manifest.
type Generator struct {
	basePath string
	name     string
	runID    string
	created  time.Time
	files    []DataFile
}

// NewGenerator returns a manifest generator rooted at basePath.
func NewGenerator(basePath, name, runID string, created time.Time) *Generator {
	return &Generator{
		basePath: basePath,
		name:     name,
		runID:    runID,
		created:  created,
	}
}

// AddFile records an artifact. Paths are kept relative to the base path when
// they live under it.
func (g *Generator) AddFile(df DataFile) {
	if rel, err := filepath.Rel(g.basePath, df.Path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		df.Path = filepath.ToSlash(rel)
	}
	g.files = append(g.files, df)
}

// Manifest returns the manifest built so far, files sorted by path.
func (g *Generator) Manifest() Manifest {
	files := append([]DataFile(nil), g.files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return Manifest{
		FormatVersion: 1,
		ManifestUUID:  uuid.NewString(),
		RunID:         g.runID,
		Name:          g.name,
		Location:      g.basePath,
		TimestampMs:   g.created.UnixMilli(),
		Files:         files,
	}
}

// Write stores the manifest under the base path and returns its path and size.
func (g *Generator) Write() (string, int64, error) {
	if err := os.MkdirAll(g.basePath, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	b, err := json.MarshalIndent(g.Manifest(), "", "  ")
	if err != nil {
		return "", 0, err
	}
	path := filepath.Join(g.basePath, ManifestFileName)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", 0, err
	}
	return path, int64(len(b)), nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}
