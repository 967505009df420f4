//go:build unix

package mutate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// chownFromOperand changes file ownership given an "owners" operand of
// the form "uid:gid" or "uid". Best-effort: lacking privileges to chown
// is reported to the caller rather than silently ignored, since an
// applied correction that silently failed to take effect is worse than
// one that errors loudly.
func chownFromOperand(path string, owners any) error {
	spec, ok := owners.(string)
	if !ok {
		return fmt.Errorf("owners option must be a string of the form uid:gid")
	}
	parts := strings.SplitN(spec, ":", 2)
	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("invalid uid %q: %w", parts[0], err)
	}
	gid := -1
	if len(parts) == 2 {
		gid, err = strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid gid %q: %w", parts[1], err)
		}
	}
	return os.Chown(path, uid, gid)
}
