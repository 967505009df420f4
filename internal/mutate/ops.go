// ============================================================================
// Custodian Mutation Engine - Operation Vocabulary
// ============================================================================
//
// Package: internal/mutate
// File: ops.go
// Purpose: Implements the ansible-style dict-mutation vocabulary (_set,
// _unset, _push, _push_all, _inc, _rename, _add_to_set, _pull, _pull_all,
// _pop) used by handlers to edit in-memory mappings and, transitively, the
// structured files those mappings were parsed from.
//
// Design Philosophy:
//   The teacher's modder discovers operations by probing snake_case method
//   names on action objects at call time (reflection-based dynamic
//   dispatch). That pattern doesn't translate to Go, and the source's own
//   design-notes flag it for replacement. Instead every operation is a
//   plain function registered in a package-level map (dictOpRegistry,
//   below) shared by every Modder - an explicit operation-to-function
//   registry rather than runtime reflection.
//
// Nested keys:
//   A key containing "->" addresses a path through nested maps, e.g.
//   "a->b->c" means dict["a"]["b"]["c"]. Intermediate maps are created on
//   demand by the _set-family operations; read-only operations (_inc when
//   absent excepted) fail silently (no-op) when an intermediate segment is
//   missing, mirroring _rename's documented no-op-on-absent behavior.
//
// ============================================================================

package mutate

import (
	"fmt"
	"strings"
)

// ErrNotAnArray is returned by _add_to_set/_pull/_pull_all when the value
// already stored at the target key exists and is not a list.
var ErrNotAnArray = fmt.Errorf("mutate: not-an-array")

// ErrUnsupportedAction is returned in strict mode when an operation
// keyword is not in the Modder's allowed set.
var ErrUnsupportedAction = fmt.Errorf("mutate: unsupported action")

const keyPathSep = "->"

// dictOpFunc applies one operation's operand (a map of target key to
// value, per the spec's ops-map convention) to dict, mutating it in
// place.
type dictOpFunc func(dict map[string]any, operand map[string]any) error

// splitPath breaks an arrow-separated key into its path segments.
func splitPath(key string) []string {
	return strings.Split(key, keyPathSep)
}

// navigate walks dict along path[:len-1], creating intermediate
// map[string]any values when create is true. It returns the final map
// the leaf segment lives in, the leaf segment name, and whether the walk
// succeeded (only relevant when create is false).
func navigate(dict map[string]any, path []string, create bool) (map[string]any, string, bool) {
	cur := dict
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg]
		if !ok {
			if !create {
				return nil, "", false
			}
			m := make(map[string]any)
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			if !create {
				return nil, "", false
			}
			m = make(map[string]any)
			cur[seg] = m
		}
		cur = m
	}
	return cur, path[len(path)-1], true
}

func getNested(dict map[string]any, key string) (any, bool) {
	path := splitPath(key)
	m, leaf, ok := navigate(dict, path, false)
	if !ok {
		return nil, false
	}
	v, ok := m[leaf]
	return v, ok
}

func setNested(dict map[string]any, key string, value any) {
	path := splitPath(key)
	m, leaf, _ := navigate(dict, path, true)
	m[leaf] = value
}

func deleteNested(dict map[string]any, key string) {
	path := splitPath(key)
	m, leaf, ok := navigate(dict, path, false)
	if !ok {
		return
	}
	delete(m, leaf)
}

func opSet(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		setNested(dict, k, v)
	}
	return nil
}

func opUnset(dict map[string]any, operand map[string]any) error {
	for k := range operand {
		deleteNested(dict, k)
	}
	return nil
}

func opPush(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		existing, ok := getNested(dict, k)
		if !ok {
			setNested(dict, k, []any{v})
			continue
		}
		list, ok := existing.([]any)
		if !ok {
			return fmt.Errorf("%w: key %q", ErrNotAnArray, k)
		}
		setNested(dict, k, append(list, v))
	}
	return nil
}

func opPushAll(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		toAppend, ok := v.([]any)
		if !ok {
			return fmt.Errorf("mutate: _push_all operand for key %q must be a list", k)
		}
		existing, ok := getNested(dict, k)
		if !ok {
			setNested(dict, k, append([]any{}, toAppend...))
			continue
		}
		list, ok := existing.([]any)
		if !ok {
			return fmt.Errorf("%w: key %q", ErrNotAnArray, k)
		}
		setNested(dict, k, append(list, toAppend...))
	}
	return nil
}

func opInc(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		delta, err := toFloat(v)
		if err != nil {
			return fmt.Errorf("mutate: _inc operand for key %q: %w", k, err)
		}
		existing, ok := getNested(dict, k)
		if !ok {
			setNested(dict, k, v)
			continue
		}
		cur, err := toFloat(existing)
		if err != nil {
			return fmt.Errorf("mutate: _inc existing value for key %q: %w", k, err)
		}
		setNested(dict, k, numericResult(existing, v, cur+delta))
	}
	return nil
}

// numericResult preserves int arithmetic as int when both operands were
// integral, matching the unmarshalled-JSON/YAML shape a caller is likely
// to have supplied (int or float64), and otherwise returns float64.
func numericResult(existing, delta any, sum float64) any {
	_, existingInt := asInt(existing)
	_, deltaInt := asInt(delta)
	if existingInt && deltaInt {
		return int(sum)
	}
	return sum
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", v)
	}
}

func opRename(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		newKey, ok := v.(string)
		if !ok {
			return fmt.Errorf("mutate: _rename operand for key %q must be a string", k)
		}
		existing, ok := getNested(dict, k)
		if !ok {
			continue // no-op: source key absent
		}
		if s, ok := existing.(string); ok && s == "" {
			continue // no-op: source key empty
		}
		deleteNested(dict, k)
		setNested(dict, newKey, existing)
	}
	return nil
}

func opAddToSet(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		existing, ok := getNested(dict, k)
		if !ok {
			setNested(dict, k, []any{v})
			continue
		}
		list, ok := existing.([]any)
		if !ok {
			return fmt.Errorf("%w: key %q", ErrNotAnArray, k)
		}
		if containsValue(list, v) {
			continue
		}
		setNested(dict, k, append(list, v))
	}
	return nil
}

func opPull(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		if err := pullOne(dict, k, v); err != nil {
			return err
		}
	}
	return nil
}

func pullOne(dict map[string]any, key string, value any) error {
	existing, ok := getNested(dict, key)
	if !ok {
		return nil
	}
	list, ok := existing.([]any)
	if !ok {
		return fmt.Errorf("%w: key %q", ErrNotAnArray, key)
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if !valuesEqual(item, value) {
			out = append(out, item)
		}
	}
	setNested(dict, key, out)
	return nil
}

func opPullAll(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		toRemove, ok := v.([]any)
		if !ok {
			return fmt.Errorf("mutate: _pull_all operand for key %q must be a list", k)
		}
		for _, item := range toRemove {
			if err := pullOne(dict, k, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func opPop(dict map[string]any, operand map[string]any) error {
	for k, v := range operand {
		dir, err := toFloat(v)
		if err != nil {
			return fmt.Errorf("mutate: _pop operand for key %q: %w", k, err)
		}
		existing, ok := getNested(dict, k)
		if !ok {
			continue
		}
		list, ok := existing.([]any)
		if !ok {
			return fmt.Errorf("%w: key %q", ErrNotAnArray, k)
		}
		if len(list) == 0 {
			continue
		}
		if dir >= 0 {
			setNested(dict, k, list[:len(list)-1])
		} else {
			setNested(dict, k, list[1:])
		}
	}
	return nil
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

// valuesEqual compares two mutation operands for equality. Numeric types
// compare by value (so a JSON-decoded float64(3) equals an int(3) literal
// supplied by a handler), everything else compares by formatted string.
func valuesEqual(a, b any) bool {
	af, errA := toFloat(a)
	bf, errB := toFloat(b)
	if errA == nil && errB == nil {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// dictOpRegistry is the full set of dict-namespace operations, built once
// and shared by every Modder (the operations themselves hold no state).
var dictOpRegistry = map[string]dictOpFunc{
	"_set":        opSet,
	"_unset":      opUnset,
	"_push":       opPush,
	"_push_all":   opPushAll,
	"_inc":        opInc,
	"_rename":     opRename,
	"_add_to_set": opAddToSet,
	"_pull":       opPull,
	"_pull_all":   opPullAll,
	"_pop":        opPop,
}
