package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeError_Error(t *testing.T) {
	t.Run("build error carries raw output", func(t *testing.T) {
		err := NewBuildError("widgets.counter", "/src/index.tsx", "  X [ERROR] Expected \";\"\n", nil)

		msg := err.Error()
		assert.Contains(t, msg, "[ERR_BUILD_FAILED]")
		assert.Contains(t, msg, "component:widgets.counter")
		assert.Contains(t, msg, "/src/index.tsx")
		assert.Contains(t, msg, `X [ERROR] Expected ";"`)
	})

	t.Run("timeout mentions the limit", func(t *testing.T) {
		err := NewTimeoutError("counter", "/src/index.tsx", 60*time.Second)

		assert.Contains(t, err.Error(), "timed out after 1m0s")
		assert.True(t, IsTimeout(err))
	})

	t.Run("cause is appended when there is no output", func(t *testing.T) {
		cause := errors.New("exec: not started")
		err := NewBuildError("counter", "", "", cause)

		assert.Contains(t, err.Error(), "exec: not started")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestClassification(t *testing.T) {
	invalid := NewInvalidNameError("../etc", "contains path traversal")
	notFound := NewBundlerNotFoundError("esbuild not found", map[string]bool{"npx_available": false})
	build := NewBuildError("counter", "", "boom", nil)

	wrapped := fmt.Errorf("handling request: %w", invalid)

	assert.True(t, IsInvalidName(invalid))
	assert.True(t, IsInvalidName(wrapped))
	assert.False(t, IsInvalidName(build))

	assert.True(t, IsBundlerNotFound(notFound))
	assert.Equal(t, false, notFound.Context["npx_available"])

	assert.False(t, IsTimeout(build))
	assert.False(t, IsBundlerNotFound(build))
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid name", NewInvalidNameError("a b", "bad"), http.StatusUnprocessableEntity},
		{"build failure", NewBuildError("x", "", "boom", nil), http.StatusInternalServerError},
		{"timeout", NewTimeoutError("x", "", time.Second), http.StatusInternalServerError},
		{"bundler missing", NewBundlerNotFoundError("missing", nil), http.StatusInternalServerError},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, HTTPStatus(tc.err))
		})
	}
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "esbuild failed: syntax error", Detail(NewBuildError("x", "/a.tsx", "syntax error\n", nil)))
	assert.Equal(t, "plain", Detail(errors.New("plain")))
}

func TestBridgeError_Is(t *testing.T) {
	a := NewBuildError("a", "", "one", nil)
	b := NewBuildError("b", "", "two", nil)
	c := NewTimeoutError("a", "", time.Second)

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConfig, CodeConfigInvalid, "ignored"))

	base := NewBuildError("counter", "/x/index.tsx", "boom", nil)
	wrapped := Wrap(base, ErrorTypeIO, CodeOutputUnreadable, "while serving")

	require.NotNil(t, wrapped)
	assert.Equal(t, "counter", wrapped.Component)
	assert.Equal(t, "/x/index.tsx", wrapped.FilePath)
	assert.True(t, wrapped.Recoverable)
	assert.Equal(t, base, wrapped.Unwrap())

	plain := Wrap(errors.New("disk full"), ErrorTypeIO, CodeOutputUnreadable, "write failed")
	assert.False(t, plain.Recoverable)
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())

	collector.Record("b", NewBuildError("b", "", "boom", nil))
	collector.Record("a", NewTimeoutError("a", "", time.Second))
	collector.Record("ignored", nil)

	failures := collector.GetFailures()
	require.Len(t, failures, 2)
	assert.Equal(t, "a", failures[0].Component)
	assert.Equal(t, CodeBuildTimeout, failures[0].Code)
	assert.Equal(t, "b", failures[1].Component)
	assert.Equal(t, CodeBuildFailed, failures[1].Code)
	assert.True(t, failures[1].Recoverable)

	collector.Resolve("a")
	assert.Len(t, collector.GetFailures(), 1)

	collector.Clear()
	assert.False(t, collector.HasErrors())
}

func TestErrorCollector_Concurrent(t *testing.T) {
	collector := NewErrorCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("component_%d", i)
			collector.Record(name, NewBuildError(name, "", "boom", nil))
			_ = collector.GetFailures()
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.GetFailures(), 20)
}

func TestErrorCollector_IgnoresAbandonedBuilds(t *testing.T) {
	collector := NewErrorCollector()

	collector.Record("counter", context.Canceled)
	collector.Record("card", Wrap(context.DeadlineExceeded, ErrorTypeBuild, CodeBuildCancelled, "esbuild cancelled"))
	assert.False(t, collector.HasErrors())

	collector.Record("card", NewBundlerNotFoundError("esbuild not found", nil))
	failures := collector.GetFailures()
	require.Len(t, failures, 1)
	assert.Equal(t, CodeBundlerNotFound, failures[0].Code)
	assert.False(t, failures[0].Recoverable)
}
