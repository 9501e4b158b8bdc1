package addons

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

// Extensions flagged as executables outright.
var executableExtensions = map[string]bool{
	".exe": true,
	".bat": true,
}

// luaShellPattern matches Lua calls that spawn processes.
var luaShellPattern = regexp.MustCompile(`(?i)io\.popen|os\.execute`)

// maxScanSize is the largest script read by the scanner.
const maxScanSize = 4 << 20

// Finding is one suspicious archive entry
type Finding struct {
	Path   string
	Reason string
}

// ScanReport lists what ScanArchive flagged
type ScanReport struct {
	Scanned  int
	Findings []Finding
}

// Flagged reports whether the archive deserves a warning.
func (r *ScanReport) Flagged() bool {
	return len(r.Findings) > 0
}

// ScanArchive looks for executables and Lua scripts that shell out. It is a
// heuristic: a clean report says nothing about what the code does.
func ScanArchive(zr *zip.Reader) (*ScanReport, error) {
	report := &ScanReport{}

	for _, f := range zr.File {
		if isDirEntry(f) {
			continue
		}
		report.Scanned++

		name := strings.ReplaceAll(f.Name, "\\", "/")
		ext := strings.ToLower(path.Ext(name))

		if _, err := entryPath(f.Name); err != nil {
			report.Findings = append(report.Findings, Finding{Path: name, Reason: "unsafe path"})
			continue
		}

		if executableExtensions[ext] {
			report.Findings = append(report.Findings, Finding{Path: name, Reason: "executable file"})
			continue
		}

		if ext != ".lua" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArchiveFormat, name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxScanSize))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArchiveFormat, name, err)
		}

		if m := luaShellPattern.Find(data); m != nil {
			report.Findings = append(report.Findings, Finding{Path: name, Reason: "calls " + string(m)})
		}
	}

	return report, nil
}

// ScanFile scans a zip archive on disk.
func ScanFile(archivePath string) (*ScanReport, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil && (zr == nil || !errors.Is(err, zip.ErrInsecurePath)) {
		return nil, fmt.Errorf("%w: %v", ErrArchiveFormat, err)
	}
	defer func() { _ = zr.Close() }()

	return ScanArchive(&zr.Reader)
}
