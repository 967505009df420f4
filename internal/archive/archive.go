// ============================================================================
// Custodian Snapshot / Backup
// ============================================================================
//
// Package: internal/archive
// File: archive.go
// Purpose: Archives a named set of files into a numbered, gzip-compressed
// tarball under a given prefix, for the pre-correction snapshot the
// supervisor takes before every mutation and for its checkpoint mechanism.
//
// Numbering:
//   Existing archives matching "<prefix>.N.tar*" under the target
//   directory are scanned for the maximum N; the next archive is written
//   as "<prefix>.(N+1).tar.gz". Entries inside the tarball are rooted
//   under "<prefix>.(N+1)/<basename>", matching the original's arcname
//   convention so extracting a snapshot never collides with another.
//
// ============================================================================

package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// numberPattern extracts N from a "<prefix>.N.tar*" basename.
func numberPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `\.(\d+)\.tar`)
}

// nextNumber returns one greater than the highest existing
// "<prefix>.N.tar*" archive under directory, or 1 if none exist.
func nextNumber(directory, prefix string) (int, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("archive: reading %s: %w", directory, err)
	}

	re := numberPattern(prefix)
	max := 0
	for _, e := range entries {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// Backup archives every file matched by the filenames glob patterns
// (relative to directory) into a new "<directory>/<prefix>.N.tar.gz",
// where N is one greater than the highest existing numbered archive
// with the same prefix. It returns the path written.
func Backup(filenames []string, prefix, directory string) (string, error) {
	n, err := nextNumber(directory, prefix)
	if err != nil {
		return "", err
	}

	archiveName := fmt.Sprintf("%s.%d.tar.gz", prefix, n)
	archivePath := filepath.Join(directory, archiveName)
	arcRoot := fmt.Sprintf("%s.%d", prefix, n)

	matches, err := expandGlobs(directory, filenames)
	if err != nil {
		return "", err
	}

	tmpPath := archivePath + ".tmp"
	if err := writeTarGz(tmpPath, directory, arcRoot, matches); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("archive: renaming %s: %w", tmpPath, err)
	}

	return archivePath, nil
}

// expandGlobs expands every pattern against directory, deduplicating
// matches and returning them sorted for deterministic archive contents.
func expandGlobs(directory string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(directory), pattern)
		if err != nil {
			return nil, fmt.Errorf("archive: invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// A literal filename with no glob meta that doesn't exist is
			// still included verbatim so Backup surfaces a clear tar error
			// rather than silently omitting it.
			if !seen[pattern] {
				seen[pattern] = true
				out = append(out, pattern)
			}
			continue
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			// A glob-expanded match that turns out to be a directory (e.g.
			// a "*" pattern catching the scratch-dir symlink target) is
			// silently skipped rather than failing the whole backup -
			// only a literal, explicitly-named path is expected to be a
			// single file.
			if info, err := os.Stat(filepath.Join(directory, m)); err == nil && info.IsDir() {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeTarGz(path, directory, arcRoot string, relFiles []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: creating %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, rel := range relFiles {
		full := filepath.Join(directory, rel)
		if err := addFile(tw, full, arcRoot+"/"+filepath.Base(rel)); err != nil {
			tw.Close()
			gz.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		gz.Close()
		return fmt.Errorf("archive: closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive: closing gzip writer: %w", err)
	}
	return f.Sync()
}

func addFile(tw *tar.Writer, fullPath, arcname string) error {
	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("archive: stat %s: %w", fullPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("archive: %s is a directory, not supported", fullPath)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("archive: building header for %s: %w", fullPath, err)
	}
	hdr.Name = arcname

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("archive: writing header for %s: %w", fullPath, err)
	}

	src, err := os.Open(fullPath)
	if err != nil {
		return fmt.Errorf("archive: opening %s: %w", fullPath, err)
	}
	defer src.Close()

	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("archive: copying %s into archive: %w", fullPath, err)
	}
	return nil
}

// Extract unpacks the tarball at archivePath into directory, stripping
// the leading "<prefix>.N/" arcname component each entry was written
// under so files land directly in directory rather than in a
// subdirectory named after the archive.
func Extract(archivePath, directory string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("archive: opening %s: %w", archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("archive: %s is not gzip: %w", archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: reading tar entries: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := hdr.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name == "" {
			continue
		}

		dest := filepath.Join(directory, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("archive: creating %s: %w", filepath.Dir(dest), err)
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
		if err != nil {
			return fmt.Errorf("archive: creating %s: %w", dest, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("archive: writing %s: %w", dest, err)
		}
		out.Close()
	}
}

// LatestNumber returns the highest N for which "<prefix>.N.tar*" exists
// under directory, and false if none do. Used by checkpoint restore to
// find the most recent "custodian.chk.<N>.tar.gz".
func LatestNumber(directory, prefix string) (int, bool, error) {
	n, err := nextNumber(directory, prefix)
	if err != nil {
		return 0, false, err
	}
	if n == 1 {
		// nextNumber returns 1 both when nothing exists and when the
		// single highest archive is numbered 0; disambiguate by re-scanning.
		entries, err := os.ReadDir(directory)
		if err != nil {
			if os.IsNotExist(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		re := numberPattern(prefix)
		for _, e := range entries {
			if re.MatchString(e.Name()) {
				return 0, true, nil
			}
		}
		return 0, false, nil
	}
	return n - 1, true, nil
}
