package addons

import (
	"io"
	"os"
	"path/filepath"
)

// snapshotFile copies the current destination verbatim into the backup
// path, replacing any earlier backup.
func snapshotFile(dest, backup string) error {
	if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
		return err
	}
	return copyFile(dest, backup)
}

// appendBackup adds chunk to the backup path. An existing backup gets the
// merge separator before the new chunk.
func appendBackup(backup string, chunk []byte) error {
	if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
		return err
	}

	if _, err := os.Stat(backup); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return os.WriteFile(backup, chunk, 0644)
	}

	f, err := os.OpenFile(backup, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(mergeSeparator); err != nil {
		return err
	}
	_, err = f.Write(chunk)
	return err
}

// copyFile copies a single file, keeping the source permissions
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}
