package errors

import (
	"context"
	"sort"
	"sync"
	"time"
)

// BuildFailure records the most recent failed build of a component.
type BuildFailure struct {
	Component   string    `json:"component"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorCollector keeps the latest build failure per component so that
// operators can inspect what is currently broken.
type ErrorCollector struct {
	failures map[string]BuildFailure
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make(map[string]BuildFailure),
	}
}

// Record stores err as the latest failure for component. Builds abandoned
// because the caller's context ended say nothing about the component and are
// ignored.
func (ec *ErrorCollector) Record(component string, err error) {
	if err == nil || Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return
	}

	failure := BuildFailure{
		Component: component,
		Code:      CodeBuildFailed,
		Message:   Detail(err),
		Timestamp: time.Now(),
	}
	var be *BridgeError
	if As(err, &be) {
		failure.Code = be.Code
		failure.Recoverable = be.Recoverable
	}

	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures[component] = failure
}

// Resolve forgets any failure recorded for component.
func (ec *ErrorCollector) Resolve(component string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	delete(ec.failures, component)
}

// GetFailures returns all recorded failures ordered by component name.
func (ec *ErrorCollector) GetFailures() []BuildFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]BuildFailure, 0, len(ec.failures))
	for _, f := range ec.failures {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Component < result[j].Component
	})
	return result
}

// HasErrors reports whether any component currently fails to build.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}

// Clear forgets every recorded failure.
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = make(map[string]BuildFailure)
}
