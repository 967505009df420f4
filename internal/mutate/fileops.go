package mutate

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ApplyFile mutates the on-disk file at path according to ops, a mapping
// from file-op keyword to its option map.
func (m *Modder) ApplyFile(path string, ops map[string]any) error {
	for op, operandRaw := range ops {
		if !m.permits(op) {
			if m.strict {
				return fmt.Errorf("%w: %q", ErrUnsupportedAction, op)
			}
			continue
		}
		operand, _ := operandRaw.(map[string]any)
		var err error
		switch FileOp(op) {
		case FileCreate:
			err = fileCreate(path, operand)
		case FileMove:
			err = fileMove(path, operand)
		case FileDelete:
			err = fileDelete(path, operand)
		case FileCopy:
			err = fileCopy(path, operand)
		case FileModify:
			err = fileModify(path, operand)
		default:
			if m.strict {
				return fmt.Errorf("%w: %q", ErrUnsupportedAction, op)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("mutate: %s %q: %w", op, path, err)
		}
	}
	return nil
}

func fileCreate(path string, operand map[string]any) error {
	content, _ := operand["content"].(string)
	return os.WriteFile(path, []byte(content), 0o644)
}

func fileMove(path string, operand map[string]any) error {
	dest, ok := operand["dest"].(string)
	if !ok {
		return fmt.Errorf("missing dest")
	}
	return os.Rename(path, dest)
}

func fileDelete(path string, operand map[string]any) error {
	mode, _ := operand["mode"].(string)
	if mode == "simulated" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// fileCopy copies path to every destination whose option key starts with
// "dest" (e.g. "dest", "dest1", "dest2"), per the spec's
// {dest*: p*} convention.
func fileCopy(path string, operand map[string]any) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	for key, v := range operand {
		if !strings.HasPrefix(key, "dest") {
			continue
		}
		dest, ok := v.(string)
		if !ok {
			return fmt.Errorf("destination option %q must be a string", key)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func fileModify(path string, operand map[string]any) error {
	if mode, ok := operand["mode"]; ok {
		perm, err := parseMode(mode)
		if err != nil {
			return err
		}
		if err := os.Chmod(path, perm); err != nil {
			return err
		}
	}
	if _, ok := operand["owners"]; ok {
		// Ownership changes require privileges this core does not assume;
		// collaborators running as the right user get a real chown via
		// the platform-specific hook in fileops_unix.go.
		return chownFromOperand(path, operand["owners"])
	}
	return nil
}

func parseMode(v any) (os.FileMode, error) {
	switch m := v.(type) {
	case string:
		parsed, err := strconv.ParseUint(m, 8, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid mode %q: %w", m, err)
		}
		return os.FileMode(parsed), nil
	case int:
		return os.FileMode(m), nil
	default:
		return 0, fmt.Errorf("mode must be a string or int, got %T", v)
	}
}
