// ============================================================================
// Custodian Spec Loader - class registry
// ============================================================================
//
// Package: internal/specloader
// File: registry.go
// Purpose: Go has no runtime class-path resolution, so "class" names in
// a spec document are looked up in a process-wide registry of factory
// functions instead. Collaborators register themselves (typically from
// an init() in the package that defines them) the way the teacher's
// worker package registers job-source implementations structurally -
// here the registration is by name instead of by interface, since the
// spec document identifies collaborators by string.
//
// ============================================================================

package specloader

import (
	"fmt"
	"sync"

	"github.com/ChuLiYu/custodian/internal/contract"
)

// JobFactory builds a contract.Job from its construction params.
type JobFactory func(params map[string]any) (contract.Job, error)

// HandlerFactory builds a contract.Handler from its construction params.
type HandlerFactory func(params map[string]any) (contract.Handler, error)

// ValidatorFactory builds a contract.Validator from its construction params.
type ValidatorFactory func(params map[string]any) (contract.Validator, error)

var (
	registryMu sync.Mutex
	jobReg     = map[string]JobFactory{}
	handlerReg = map[string]HandlerFactory{}
	validReg   = map[string]ValidatorFactory{}
)

// RegisterJob makes class available to job specs naming it.
func RegisterJob(class string, factory JobFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	jobReg[class] = factory
}

// RegisterHandler makes class available to handler specs naming it.
func RegisterHandler(class string, factory HandlerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	handlerReg[class] = factory
}

// RegisterValidator makes class available to validator specs naming it.
func RegisterValidator(class string, factory ValidatorFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	validReg[class] = factory
}

func buildJob(class string, params map[string]any) (contract.Job, error) {
	registryMu.Lock()
	factory, ok := jobReg[class]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("specloader: unknown job class %q", class)
	}
	job, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("specloader: constructing job %q: %w", class, err)
	}
	return job, nil
}

func buildHandler(class string, params map[string]any) (contract.Handler, error) {
	registryMu.Lock()
	factory, ok := handlerReg[class]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("specloader: unknown handler class %q", class)
	}
	handler, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("specloader: constructing handler %q: %w", class, err)
	}
	return handler, nil
}

func buildValidator(class string, params map[string]any) (contract.Validator, error) {
	registryMu.Lock()
	factory, ok := validReg[class]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("specloader: unknown validator class %q", class)
	}
	validator, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("specloader: constructing validator %q: %w", class, err)
	}
	return validator, nil
}
