package logger

import (
	"sync"
	"sync/atomic"
)

type componentCounter struct {
	warns  int64
	errors int64
}

// ComponentCounts is the number of warnings and errors logged by a component.
type ComponentCounts struct {
	Warns  int64
	Errors int64
}

var counters sync.Map // map[string]*componentCounter

func counterFor(component string) *componentCounter {
	v, _ := counters.LoadOrStore(component, &componentCounter{})
	return v.(*componentCounter)
}

func recordWarn(component string) {
	atomic.AddInt64(&counterFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&counterFor(component).errors, 1)
}

// Counts returns a snapshot of warnings and errors per component.
func Counts() map[string]ComponentCounts {
	out := make(map[string]ComponentCounts)
	counters.Range(func(k, v any) bool {
		c := v.(*componentCounter)
		out[k.(string)] = ComponentCounts{
			Warns:  atomic.LoadInt64(&c.warns),
			Errors: atomic.LoadInt64(&c.errors),
		}
		return true
	})
	return out
}

// ResetCounts clears all component counters.
func ResetCounts() {
	counters.Range(func(k, _ any) bool {
		counters.Delete(k)
		return true
	})
}
