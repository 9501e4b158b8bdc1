package addons

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// mergeSeparator joins existing and incoming bytes of text files.
const mergeSeparator = "\n"

// textExtensions are the extensions handled by the append-merge policy.
var textExtensions = map[string]bool{
	".txt":  true,
	".json": true,
	".xml":  true,
	".ini":  true,
	".cfg":  true,
}

// IsTextFile reports whether name falls under the append-merge policy.
func IsTextFile(name string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// Outcome describes what happened to one archive entry
type Outcome int

const (
	OutcomeFresh Outcome = iota
	OutcomeTextMerge
	OutcomeOverwrite
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeTextMerge:
		return "text-merge"
	case OutcomeOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// MergedFile is one applied archive entry
type MergedFile struct {
	Path    string // relative to the addon directory, slash separated
	Outcome Outcome
}

// MergeResult summarises a merge
type MergeResult struct {
	Files       []MergedFile
	Fresh       int
	TextMerged  int
	Overwritten int
}

// BackedUp returns how many files were snapshotted into the backup directory.
func (r *MergeResult) BackedUp() int {
	return r.TextMerged + r.Overwritten
}

func (r *MergeResult) add(rel string, o Outcome) {
	r.Files = append(r.Files, MergedFile{Path: filepath.ToSlash(rel), Outcome: o})
	switch o {
	case OutcomeFresh:
		r.Fresh++
	case OutcomeTextMerge:
		r.TextMerged++
	case OutcomeOverwrite:
		r.Overwritten++
	}
}

// Paths are the two roots an install writes to
type Paths struct {
	AddonDir  string
	BackupDir string
}

// Ensure creates both roots.
func (p Paths) Ensure() error {
	if p.AddonDir == "" || p.BackupDir == "" {
		return fmt.Errorf("%w: addon and backup directories must be set", ErrConfig)
	}
	for _, dir := range []string{p.AddonDir, p.BackupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	return nil
}

type stagedEntry struct {
	rel     string
	scratch string
}

// MergeArchive merges every file entry of zr into paths.AddonDir.
//
// Entries are first decompressed into scratchDir and validated as a batch;
// nothing in the addon directory is touched unless that succeeds. Entries
// are then applied in archive order. A failure while applying stops the
// merge and leaves already applied entries in place.
func MergeArchive(zr *zip.Reader, paths Paths, scratchDir string) (*MergeResult, error) {
	staged, err := stageEntries(zr, scratchDir)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{}
	for _, entry := range staged {
		outcome, err := applyEntry(entry, paths)
		if err != nil {
			return result, fmt.Errorf("%w: %s: %v", ErrMerge, filepath.ToSlash(entry.rel), err)
		}
		result.add(entry.rel, outcome)
	}

	return result, nil
}

// stageEntries decompresses every file entry into scratchDir.
func stageEntries(zr *zip.Reader, scratchDir string) ([]stagedEntry, error) {
	var staged []stagedEntry
	seen := make(map[string]bool)

	// Validate every name before decompressing anything.
	rels := make([]string, len(zr.File))
	for i, f := range zr.File {
		if isDirEntry(f) {
			continue
		}
		rel, err := entryPath(f.Name)
		if err != nil {
			return nil, err
		}
		rels[i] = rel
	}

	for i, f := range zr.File {
		rel := rels[i]
		if rel == "" {
			continue
		}

		scratch := filepath.Join(scratchDir, rel)
		if err := extractTo(f, scratch); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMerge, f.Name, err)
		}

		// A repeated name keeps its first position with the last contents.
		if !seen[rel] {
			seen[rel] = true
			staged = append(staged, stagedEntry{rel: rel, scratch: scratch})
		}
	}

	return staged, nil
}

func isDirEntry(f *zip.File) bool {
	return f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") || strings.HasSuffix(f.Name, "\\")
}

// entryPath validates an archive entry name and returns it as a local
// relative path.
func entryPath(name string) (string, error) {
	n := strings.ReplaceAll(name, "\\", "/")
	if n == "" || strings.HasPrefix(n, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	for _, seg := range strings.Split(n, "/") {
		if seg == ".." || strings.Contains(seg, ":") {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}

	rel := filepath.FromSlash(path.Clean(n))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	if rel == ManifestFileName {
		return "", fmt.Errorf("%w: %q is reserved", ErrUnsafePath, name)
	}

	return rel, nil
}

func extractTo(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// applyEntry places one staged file into the addon directory.
func applyEntry(entry stagedEntry, paths Paths) (Outcome, error) {
	dest := filepath.Join(paths.AddonDir, entry.rel)
	backup := filepath.Join(paths.BackupDir, entry.rel)

	info, err := os.Stat(dest)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return 0, err
		}
		return OutcomeFresh, copyFile(entry.scratch, dest)
	case err != nil:
		return 0, err
	case info.IsDir():
		return 0, fmt.Errorf("destination is a directory")
	}

	if IsTextFile(dest) && IsTextFile(entry.scratch) {
		existing, err := os.ReadFile(dest)
		if err != nil {
			return 0, err
		}
		incoming, err := os.ReadFile(entry.scratch)
		if err != nil {
			return 0, err
		}

		merged := make([]byte, 0, len(existing)+len(mergeSeparator)+len(incoming))
		merged = append(merged, existing...)
		merged = append(merged, mergeSeparator...)
		merged = append(merged, incoming...)

		if err := appendBackup(backup, merged); err != nil {
			return 0, fmt.Errorf("backup: %w", err)
		}
		if err := os.WriteFile(dest, merged, info.Mode().Perm()); err != nil {
			return 0, err
		}
		return OutcomeTextMerge, nil
	}

	if err := snapshotFile(dest, backup); err != nil {
		return 0, fmt.Errorf("backup: %w", err)
	}
	return OutcomeOverwrite, copyFile(entry.scratch, dest)
}
