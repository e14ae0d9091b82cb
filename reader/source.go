package reader

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"optionsflow/config"
)

// Source is one named input snapshot.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// RemoteSource downloads its content through a Fetcher.
type RemoteSource struct {
	URL     string
	Label   string
	Fetcher Fetcher
}

func (s RemoteSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return redactURL(s.URL)
}

func (s RemoteSource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := s.Fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// BytesSource serves in-memory content; the name decides the format.
type BytesSource struct {
	Label string
	Data  []byte
}

func (s BytesSource) Name() string { return s.Label }

func (s BytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// IsRemote reports whether arg names an http, https or s3 resource.
func IsRemote(arg string) bool {
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return true
	default:
		return false
	}
}

// ParseSource turns a command line argument into a Source.
func ParseSource(arg string, fetcher Fetcher) Source {
	if IsRemote(arg) {
		return RemoteSource{URL: arg, Fetcher: fetcher}
	}
	return FileSource{Path: arg}
}

// SourcesFromConfig converts manifest entries into sources.
func SourcesFromConfig(entries []config.SourceEntry, fetcher Fetcher) []Source {
	sources := make([]Source, 0, len(entries))
	for _, e := range entries {
		if e.URL != "" {
			sources = append(sources, RemoteSource{URL: e.URL, Label: e.Name, Fetcher: fetcher})
			continue
		}
		sources = append(sources, FileSource{Path: e.Path})
	}
	return sources
}

const (
	formatDelimited = "delimited"
	formatXLSX      = "xlsx"
)

// formatOf picks the table format from the file extension of name.
func formatOf(name string) string {
	p := name
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".xlsx") {
		return formatXLSX
	}
	return formatDelimited
}
