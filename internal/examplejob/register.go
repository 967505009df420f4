// ============================================================================
// Custodian Example Fixtures - spec loader registration
// ============================================================================
//
// Package: internal/examplejob
// File: register.go
// Purpose: registers these fixtures with internal/specloader's class
// registry under "examplejob.*" names, so a declarative spec document
// can drive cmd/custodian's demo mode without any Go code.
//
// ExampleJob and ExampleHandler share mutable state (a *Counter) by
// construction; a spec document names that shared state by a string
// key instead, resolved through sharedCounters so every job/handler
// referencing the same counter name observes the same value.
//
// ============================================================================

package examplejob

import (
	"fmt"
	"sync"

	"github.com/ChuLiYu/custodian/internal/contract"
	"github.com/ChuLiYu/custodian/internal/specloader"
)

var (
	sharedCountersMu sync.Mutex
	sharedCounters   = map[string]*Counter{}
)

// counterNamed returns the process-wide Counter registered under name,
// creating it on first use.
func counterNamed(name string) *Counter {
	sharedCountersMu.Lock()
	defer sharedCountersMu.Unlock()
	c, ok := sharedCounters[name]
	if !ok {
		c = &Counter{}
		sharedCounters[name] = c
	}
	return c
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

func paramInt64(params map[string]any, key string, def int64) int64 {
	switch v := params[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return def
}

func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func init() {
	specloader.RegisterJob("examplejob.ExampleJob", func(params map[string]any) (contract.Job, error) {
		name := paramString(params, "name", "")
		if name == "" {
			return nil, fmt.Errorf("examplejob: ExampleJob requires a non-empty \"name\" param")
		}
		counter := counterNamed(paramString(params, "counter", "default"))
		increment := paramInt64(params, "increment", 1)
		return NewExampleJob(name, counter, increment), nil
	})

	specloader.RegisterJob("examplejob.FailingExitJob", func(params map[string]any) (contract.Job, error) {
		name := paramString(params, "name", "")
		if name == "" {
			return nil, fmt.Errorf("examplejob: FailingExitJob requires a non-empty \"name\" param")
		}
		code := paramInt64(params, "exit_code", 1)
		job := NewFailingExitJob(name, int(code))
		if paramBool(params, "non_fatal", false) {
			job = job.NonFatal()
		}
		return job, nil
	})

	specloader.RegisterHandler("examplejob.ExampleHandler", func(params map[string]any) (contract.Handler, error) {
		counter := counterNamed(paramString(params, "counter", "default"))
		threshold := paramInt64(params, "threshold", 0)
		boost := paramInt64(params, "boost", 1)
		h := NewExampleHandler(counter, threshold, boost)
		if max := paramInt64(params, "max_num_corrections", 0); max > 0 {
			h = h.WithMaxNumCorrections(int(max), paramBool(params, "raise_on_max", false))
		}
		return h, nil
	})

	specloader.RegisterHandler("examplejob.ExampleHandler2", func(params map[string]any) (contract.Handler, error) {
		return NewExampleHandler2(paramBool(params, "raises_runtime_error", true)), nil
	})

	specloader.RegisterValidator("examplejob.ExampleValidator", func(params map[string]any) (contract.Validator, error) {
		id := paramString(params, "id", "example-validator")
		return NewExampleValidator(id, paramBool(params, "always_bad", false)), nil
	})
}
