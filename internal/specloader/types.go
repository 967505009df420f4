// ============================================================================
// Custodian Spec Loader - document shape
// ============================================================================
//
// Package: internal/specloader
// File: types.go
// Purpose: the YAML document shape a Custodian run is declared from
// (spec.md 4.6): a list of jobs, handlers, and validators named by
// class-path plus construction params, and a custodian_params block
// mapped straight onto custodian.SupervisorConfig.
//
// ============================================================================

package specloader

import "github.com/ChuLiYu/custodian/pkg/custodian"

// JobSpec names a job factory.
type JobSpec struct {
	Job    string         `yaml:"jb"`
	Params map[string]any `yaml:"params"`
}

// HandlerSpec names a handler factory.
type HandlerSpec struct {
	Handler string         `yaml:"hdlr"`
	Params  map[string]any `yaml:"params"`
}

// ValidatorSpec names a validator factory.
type ValidatorSpec struct {
	Validator string         `yaml:"vldr"`
	Params    map[string]any `yaml:"params"`
}

// Document is the top-level shape of a custodian run spec file.
type Document struct {
	Jobs                 []JobSpec                  `yaml:"jobs"`
	JobsCommonParams     map[string]any             `yaml:"jobs_common_params"`
	JobsCommonAutoParams map[string]any             `yaml:"jobs_common_auto_params"`
	Handlers             []HandlerSpec              `yaml:"handlers"`
	Validators           []ValidatorSpec            `yaml:"validators"`
	CustodianParams      custodian.SupervisorConfig `yaml:"custodian_params"`
}
