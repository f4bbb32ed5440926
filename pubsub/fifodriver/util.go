package fifodriver

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeRename writes data to a tempfile and then renames it to the
// desired name, so readers never observe a partially written sidecar.
func writeRename(fileName string, b []byte, perm os.FileMode) error {
	dirName := filepath.Dir(fileName)
	tmpfile, err := os.CreateTemp(dirName, "sidecar")
	if err != nil {
		return fmt.Errorf("writeRename(%s): %w", fileName, err)
	}
	defer os.Remove(tmpfile.Name())
	defer tmpfile.Close()
	if _, err := tmpfile.Write(b); err != nil {
		return fmt.Errorf("writeRename(%s): %w", fileName, err)
	}
	if err := tmpfile.Chmod(perm); err != nil {
		return fmt.Errorf("writeRename(%s): %w", fileName, err)
	}
	if err := tmpfile.Close(); err != nil {
		return fmt.Errorf("writeRename(%s): %w", fileName, err)
	}
	if err := os.Rename(tmpfile.Name(), fileName); err != nil {
		return fmt.Errorf("writeRename(%s): %w", fileName, err)
	}
	return nil
}
