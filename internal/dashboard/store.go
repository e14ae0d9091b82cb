package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"optionsflow/internal/metrics"
	"optionsflow/models"
)

// history keeps the most recent limit items. It is safe for concurrent use.
type history[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newHistory[T any](limit int) *history[T] {
	if limit <= 0 {
		limit = 200
	}
	return &history[T]{limit: limit}
}

func (h *history[T]) add(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, item)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append([]T(nil), h.items[over:]...)
	}
}

func (h *history[T]) snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// metricHistory records every metric emitted through internal/metrics.
type metricHistory struct {
	*history[metrics.Metric]
}

func newMetricHistory(limit int) *metricHistory {
	return &metricHistory{history: newHistory[metrics.Metric](limit)}
}

func (m *metricHistory) handle(metric metrics.Metric) { m.add(metric) }

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logHistory is a logrus hook capturing recent entries. logrus cannot
// remove hooks, so close only stops recording.
type logHistory struct {
	*history[logRecord]
	enabled atomic.Bool
}

func newLogHistory(limit int) *logHistory {
	h := &logHistory{history: newHistory[logRecord](limit)}
	h.enabled.Store(true)
	return h
}

func (h *logHistory) Levels() []logrus.Level { return logrus.AllLevels }

func (h *logHistory) Fire(entry *logrus.Entry) error {
	if !h.enabled.Load() {
		return nil
	}
	rec := logRecord{Timestamp: entry.Time, Level: entry.Level.String(), Message: entry.Message}
	if c, ok := entry.Data["component"].(string); ok {
		rec.Component = c
	}
	for k, v := range entry.Data {
		if k == "component" {
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			rec.Fields[k] = val.Error()
		case fmt.Stringer:
			rec.Fields[k] = val.String()
		default:
			rec.Fields[k] = val
		}
	}
	h.add(rec)
	return nil
}

func (h *logHistory) close() { h.enabled.Store(false) }

// reportStore holds the report currently served.
type reportStore struct {
	current atomic.Pointer[models.Report]
}

func (s *reportStore) set(r *models.Report) { s.current.Store(r) }

func (s *reportStore) get() *models.Report { return s.current.Load() }
