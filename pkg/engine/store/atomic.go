package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileAtomic writes data to path via a temp-file-plus-rename sequence.
// Every on-disk store in this package — sessions, plans, the JSONL event
// log — and the Context Store v2 layer built on top of it
// (pkg/engine/contextstore) share this one discipline so a crash mid-write
// never leaves a reader looking at a half-written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("write temp file for %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file for %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ValidateWithinBase ensures p resolves inside baseDir, the workspace-escape
// guard every file-backed store applies before touching disk.
func ValidateWithinBase(baseDir, p string) error {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return ErrWorkspaceEscape
	}
	return nil
}
