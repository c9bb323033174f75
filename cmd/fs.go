package main

import (
	"os"
	"path/filepath"
)

// ensureDir creates the parent directory of a sqlite database file.
func ensureDir(file string) error {
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
