// ============================================================================
// Custodian Mutation Engine - Modder
// ============================================================================
//
// Package: internal/mutate
// File: modder.go
// Purpose: The Modder applies an ops-map (operation keyword -> operand) to
// either an in-memory mapping or an on-disk file, in place. Construction
// fixes which action keywords are allowed and whether unknown keywords are
// a hard failure (strict) or a silent no-op.
//
// ============================================================================

package mutate

import (
	"fmt"

	"github.com/ChuLiYu/custodian/pkg/custodian"
)

// FileOp is the set of recognized file-mutation keywords.
type FileOp string

const (
	FileCreate FileOp = "_file_create"
	FileMove   FileOp = "_file_move"
	FileDelete FileOp = "_file_delete"
	FileCopy   FileOp = "_file_copy"
	FileModify FileOp = "_file_modify"
)

// Modder applies mutations in place. It never returns a copy: dict
// mutations edit the map the caller passed in, file mutations edit disk.
type Modder struct {
	allowed map[string]bool
	strict  bool
}

// NewModder builds a Modder that permits exactly the given action
// keywords (drawn from the dict and file op vocabularies above). A nil or
// empty allowed set means "permit everything this Modder knows about".
func NewModder(allowed []string, strict bool) *Modder {
	m := &Modder{allowed: make(map[string]bool, len(allowed)), strict: strict}
	for _, a := range allowed {
		m.allowed[a] = true
	}
	return m
}

func (m *Modder) permits(op string) bool {
	if len(m.allowed) == 0 {
		return true
	}
	return m.allowed[op]
}

// ApplyDict mutates dict in place according to ops, a mapping from
// operation keyword to operand.
func (m *Modder) ApplyDict(dict map[string]any, ops map[string]any) error {
	for op, operandRaw := range ops {
		fn, known := dictOpRegistry[op]
		if !known {
			if m.strict {
				return fmt.Errorf("%w: %q", ErrUnsupportedAction, op)
			}
			continue
		}
		if !m.permits(op) {
			if m.strict {
				return fmt.Errorf("%w: %q", ErrUnsupportedAction, op)
			}
			continue
		}
		operand, ok := operandRaw.(map[string]any)
		if !ok {
			return fmt.Errorf("mutate: operand for %q must be a mapping, got %T", op, operandRaw)
		}
		if err := fn(dict, operand); err != nil {
			return fmt.Errorf("mutate: %s: %w", op, err)
		}
	}
	return nil
}

// Apply dispatches a single custodian.Action to ApplyDict (looking the
// named dict up in dicts) or ApplyFile, per whether the action targets a
// dict or a file.
func (m *Modder) Apply(action custodian.Action, dicts map[string]map[string]any) error {
	switch {
	case action.IsDictAction():
		dict, ok := dicts[action.Dict]
		if !ok {
			return fmt.Errorf("mutate: unknown dict %q", action.Dict)
		}
		return m.ApplyDict(dict, action.Action)
	case action.IsFileAction():
		return m.ApplyFile(action.File, action.Action)
	default:
		return fmt.Errorf("mutate: action has neither dict nor file target")
	}
}

// ApplyAll applies a list of actions in order, stopping at the first
// error.
func (m *Modder) ApplyAll(actions []custodian.Action, dicts map[string]map[string]any) error {
	for _, a := range actions {
		if err := m.Apply(a, dicts); err != nil {
			return err
		}
	}
	return nil
}
