// ============================================================================
// Custodian Spec Loader - document parsing and construction
// ============================================================================
//
// Package: internal/specloader
// File: loader.go
// Purpose: parses a declarative spec document and constructs the
// job/handler/validator collaborators it names. An unknown class or a
// factory rejecting its params raises at load time for handlers and
// validators; a job is constructed, and fails, only when the supervisor
// pulls it from Spec.Jobs, before its Setup. See spec.md 4.6.
//
// ============================================================================

package specloader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ChuLiYu/custodian/internal/contract"
	"github.com/ChuLiYu/custodian/pkg/custodian"
	"gopkg.in/yaml.v3"
)

// Spec is the result of loading a document: a lazy job source plus the
// fully constructed handlers/validators (small, fixed-size collections
// - only the job sequence is allowed to be large or lazily produced,
// per spec.md 9), ready to hand to supervisor.New/Run.
type Spec struct {
	Jobs            contract.JobSource
	Handlers        []contract.Handler
	Validators      []contract.Validator
	CustodianParams custodian.SupervisorConfig
}

// jobSpecSource constructs each document job lazily, one per Next
// call, so Load never builds the full Job sequence up front.
type jobSpecSource struct {
	specs  []JobSpec
	common map[string]any
	auto   map[string]any
	i      int
}

func (s *jobSpecSource) Next(ctx context.Context) (contract.Job, bool, error) {
	if s.i >= len(s.specs) {
		return nil, false, nil
	}
	js := s.specs[s.i]
	s.i++
	params := mergeParams(s.auto, s.common, js.Params)
	expandEnv(params)
	job, err := buildJob(js.Job, params)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Load parses a spec document from data. Jobs are not constructed here
// - Spec.Jobs lazily builds each one as the supervisor pulls it.
// Handlers and validators are constructed eagerly: spec.md only
// requires lazy treatment of the job sequence.
func Load(data []byte) (*Spec, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("specloader: parsing document: %w", err)
	}

	jobs := &jobSpecSource{
		specs:  doc.Jobs,
		common: doc.JobsCommonParams,
		auto:   doc.JobsCommonAutoParams,
	}

	handlers := make([]contract.Handler, 0, len(doc.Handlers))
	for _, hs := range doc.Handlers {
		params := mergeParams(nil, nil, hs.Params)
		expandEnv(params)
		handler, err := buildHandler(hs.Handler, params)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, handler)
	}

	validators := make([]contract.Validator, 0, len(doc.Validators))
	for _, vs := range doc.Validators {
		params := mergeParams(nil, nil, vs.Params)
		expandEnv(params)
		validator, err := buildValidator(vs.Validator, params)
		if err != nil {
			return nil, err
		}
		validators = append(validators, validator)
	}

	return &Spec{
		Jobs:            jobs,
		Handlers:        handlers,
		Validators:      validators,
		CustodianParams: doc.CustodianParams,
	}, nil
}

// LoadFile reads and loads a spec document from path.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("specloader: reading %s: %w", path, err)
	}
	return Load(data)
}

// mergeParams layers autoParams (lowest precedence), then common
// (overrides auto), then own (overrides both) into one params map.
func mergeParams(autoParams, common, own map[string]any) map[string]any {
	out := make(map[string]any, len(autoParams)+len(common)+len(own))
	for k, v := range autoParams {
		out[k] = v
	}
	for k, v := range common {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}

// expandEnv replaces every string value beginning with "$" with the
// value of the environment variable of the same name (minus the "$"),
// in place.
func expandEnv(params map[string]any) {
	for k, v := range params {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "$") {
			continue
		}
		params[k] = os.Getenv(strings.TrimPrefix(s, "$"))
	}
}
