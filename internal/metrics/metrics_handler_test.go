package metrics

import (
	"math"
	"testing"
	"time"

	"optionsflow/logger"
)

func resetMetricHandlers() {
	registry = newHandlerRegistry()
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers()

	id := RegisterMetricHandler(func(Metric) {})
	if id == 0 {
		t.Fatalf("expected non-zero handler id")
	}

	second := RegisterMetricHandler(func(Metric) {})
	if second == 0 || second == id {
		t.Fatalf("expected unique handler id")
	}
}

func TestRegisterMetricHandlerNil(t *testing.T) {
	resetMetricHandlers()

	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestEmitMetricDispatchesToHandlers(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	fields := logger.Fields{"source": "chain.csv", "unit": "count"}
	log := logger.New()

	EmitMetric(log, "loader", "rows_read", 3, "gauge", fields)

	select {
	case event := <-events:
		if event.Component != "loader" {
			t.Fatalf("unexpected component: %s", event.Component)
		}
		if event.Name != "rows_read" {
			t.Fatalf("unexpected metric name: %s", event.Name)
		}
		if event.Type != "gauge" {
			t.Fatalf("unexpected metric type: %s", event.Type)
		}
		if _, ok := fields["metric"]; ok {
			t.Fatalf("original fields mutated: %v", fields)
		}
		if _, ok := event.Fields["metric"]; ok {
			t.Fatalf("event fields should not contain metric key: %v", event.Fields)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked")
	}
}

func TestEmitMetricDefaultType(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	EmitMetric(nil, "cleaner", "records_accepted", 7, "", logger.Fields{"unit": "count"})

	select {
	case event := <-events:
		if event.Type != "counter" {
			t.Fatalf("expected default metric type to be counter, got %s", event.Type)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked for default type")
	}
}

func TestEmitMetricWithoutName(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	EmitMetric(nil, "component", "", 1, "counter", nil)

	select {
	case <-events:
		t.Fatal("handler should not receive metrics without a name")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterMetricHandler(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	EmitMetric(nil, "loader", "rows_read", 1, "counter", nil)
	UnregisterMetricHandler(id)
	EmitMetric(nil, "loader", "rows_read", 1, "counter", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	resetMetricHandlers()

	var order []int
	for i := 1; i <= 5; i++ {
		i := i
		RegisterMetricHandler(func(Metric) { order = append(order, i) })
	}
	EmitMetric(nil, "aggregator", "groups", 30, "gauge", nil)

	for i, got := range order {
		if got != i+1 {
			t.Fatalf("handlers ran out of order: %v", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(order))
	}
}

func TestMetricFloat64(t *testing.T) {
	cases := []struct {
		value interface{}
		want  float64
		ok    bool
	}{
		{12, 12, true},
		{int64(7), 7, true},
		{float32(1.5), 1.5, true},
		{0.25, 0.25, true},
		{math.Inf(-1), 0, false},
		{math.NaN(), 0, false},
		{"12", 0, false},
	}
	for _, tc := range cases {
		got, ok := Metric{Value: tc.value}.Float64()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Float64(%v) = %v, %v", tc.value, got, ok)
		}
	}
}
