package mutate

// ============================================================================
// Mutation Engine test file
// Purpose: verify dict-op semantics, nested key addressing, and the
// round-trip/idempotence laws the ops vocabulary is expected to satisfy.
// ============================================================================

import (
	"testing"

	"github.com/ChuLiYu/custodian/pkg/custodian"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Basic dict-op tests
// ============================================================================

func TestApplyDict_Set(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"Hello": "World"}
	err := m.ApplyDict(dict, map[string]any{
		"_set": map[string]any{"Hello": "Universe", "Bye": "World"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Universe", dict["Hello"])
	assert.Equal(t, "World", dict["Bye"])
}

func TestApplyDict_SetNestedCreatesPath(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{}
	err := m.ApplyDict(dict, map[string]any{
		"_set": map[string]any{"a->b->c": 100},
	})
	require.NoError(t, err)

	a, ok := dict["a"].(map[string]any)
	require.True(t, ok)
	b, ok := a["b"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 100, b["c"])
}

func TestApplyDict_IncNested(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 100}},
	}
	err := m.ApplyDict(dict, map[string]any{
		"_inc": map[string]any{"a->b->c": 2},
	})
	require.NoError(t, err)

	v, ok := getNested(dict, "a->b->c")
	require.True(t, ok)
	assert.Equal(t, 102, v)
}

func TestApplyDict_AddToSetNotAnArray(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{
		"List":   []any{1, 2, 3},
		"number": 10,
	}
	err := m.ApplyDict(dict, map[string]any{
		"_add_to_set": map[string]any{"number": 3},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAnArray)
}

func TestApplyDict_PopNegativeRemovesFirst(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"List": []any{1, 2}}
	err := m.ApplyDict(dict, map[string]any{
		"_pop": map[string]any{"List": -1},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{2}, dict["List"])
}

func TestApplyDict_PopPositiveRemovesLast(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"List": []any{1, 2}}
	err := m.ApplyDict(dict, map[string]any{
		"_pop": map[string]any{"List": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1}, dict["List"])
}

func TestApplyDict_RenameNoopOnAbsentOrEmpty(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"empty": ""}
	err := m.ApplyDict(dict, map[string]any{
		"_rename": map[string]any{"missing": "renamed", "empty": "renamedEmpty"},
	})
	require.NoError(t, err)
	_, hasMissing := dict["renamed"]
	assert.False(t, hasMissing)
	_, hasRenamedEmpty := dict["renamedEmpty"]
	assert.False(t, hasRenamedEmpty)
	assert.Equal(t, "", dict["empty"])
}

func TestApplyDict_PullAll(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"List": []any{1, 2, 3, 2, 4}}
	err := m.ApplyDict(dict, map[string]any{
		"_pull_all": map[string]any{"List": []any{2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 4}, dict["List"])
}

func TestApplyDict_UnknownActionStrict(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{}
	err := m.ApplyDict(dict, map[string]any{
		"_frobnicate": map[string]any{"a": 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestApplyDict_UnknownActionNonStrictIsNoop(t *testing.T) {
	m := NewModder(nil, false)
	dict := map[string]any{}
	err := m.ApplyDict(dict, map[string]any{
		"_frobnicate": map[string]any{"a": 1},
	})
	require.NoError(t, err)
	assert.Empty(t, dict)
}

func TestApplyDict_DisallowedActionStrict(t *testing.T) {
	m := NewModder([]string{"_set"}, true)
	dict := map[string]any{}
	err := m.ApplyDict(dict, map[string]any{
		"_unset": map[string]any{"a": nil},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}

// ============================================================================
// Round-trip / idempotence laws
// ============================================================================

func TestRoundTrip_SetThenUnsetRestoresAbsence(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{}
	require.NoError(t, m.ApplyDict(dict, map[string]any{
		"_set": map[string]any{"k": "v"},
	}))
	require.NoError(t, m.ApplyDict(dict, map[string]any{
		"_unset": map[string]any{"k": nil},
	}))
	_, ok := dict["k"]
	assert.False(t, ok)
}

func TestRoundTrip_PushThenPopRestoresList(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"List": []any{1, 2}}
	require.NoError(t, m.ApplyDict(dict, map[string]any{
		"_push": map[string]any{"List": 3},
	}))
	require.NoError(t, m.ApplyDict(dict, map[string]any{
		"_pop": map[string]any{"List": 1},
	}))
	assert.Equal(t, []any{1, 2}, dict["List"])
}

func TestRoundTrip_AddToSetIsIdempotent(t *testing.T) {
	m := NewModder(nil, true)
	dict := map[string]any{"Tags": []any{"a", "b"}}
	for i := 0; i < 3; i++ {
		require.NoError(t, m.ApplyDict(dict, map[string]any{
			"_add_to_set": map[string]any{"Tags": "b"},
		}))
	}
	assert.Equal(t, []any{"a", "b"}, dict["Tags"])
}

func TestRoundTrip_PullAllEqualsSequentialPull(t *testing.T) {
	m := NewModder(nil, true)
	dictA := map[string]any{"List": []any{1, 2, 3, 4}}
	dictB := map[string]any{"List": []any{1, 2, 3, 4}}

	require.NoError(t, m.ApplyDict(dictA, map[string]any{
		"_pull_all": map[string]any{"List": []any{2, 4}},
	}))
	require.NoError(t, m.ApplyDict(dictB, map[string]any{
		"_pull": map[string]any{"List": 2},
	}))
	require.NoError(t, m.ApplyDict(dictB, map[string]any{
		"_pull": map[string]any{"List": 4},
	}))
	assert.Equal(t, dictA["List"], dictB["List"])
}

// ============================================================================
// File-op and Apply dispatch tests
// ============================================================================

func TestApply_DictAction(t *testing.T) {
	m := NewModder(nil, true)
	dicts := map[string]map[string]any{
		"params": {"count": 1},
	}
	action := custodian.Action{
		Dict:   "params",
		Action: map[string]any{"_inc": map[string]any{"count": 1}},
	}
	require.NoError(t, m.Apply(action, dicts))
	assert.Equal(t, 2, dicts["params"]["count"])
}

func TestApply_UnknownDict(t *testing.T) {
	m := NewModder(nil, true)
	action := custodian.Action{
		Dict:   "missing",
		Action: map[string]any{"_set": map[string]any{"a": 1}},
	}
	err := m.Apply(action, map[string]map[string]any{})
	require.Error(t, err)
}

func TestApplyFile_CreateMoveDelete(t *testing.T) {
	dir := t.TempDir()
	m := NewModder(nil, true)

	created := dir + "/out.txt"
	require.NoError(t, m.ApplyFile(created, map[string]any{
		"_file_create": map[string]any{"content": "hello"},
	}))

	moved := dir + "/moved.txt"
	require.NoError(t, m.ApplyFile(created, map[string]any{
		"_file_move": map[string]any{"dest": moved},
	}))

	require.NoError(t, m.ApplyFile(moved, map[string]any{
		"_file_delete": map[string]any{"mode": "actual"},
	}))

	// deleting again must tolerate already-absent files
	require.NoError(t, m.ApplyFile(moved, map[string]any{
		"_file_delete": map[string]any{"mode": "actual"},
	}))
}

func TestApplyAll_StopsAtFirstError(t *testing.T) {
	m := NewModder(nil, true)
	dicts := map[string]map[string]any{"d": {}}
	actions := []custodian.Action{
		{Dict: "d", Action: map[string]any{"_set": map[string]any{"a": 1}}},
		{Dict: "d", Action: map[string]any{"_frobnicate": map[string]any{"b": 2}}},
		{Dict: "d", Action: map[string]any{"_set": map[string]any{"c": 3}}},
	}
	err := m.ApplyAll(actions, dicts)
	require.Error(t, err)
	assert.Equal(t, 1, dicts["d"]["a"])
	_, hasC := dicts["d"]["c"]
	assert.False(t, hasC)
}
