package fileutils

import (
	"fmt"
	"os"
	"path/filepath"
)

// VerifyWritable returns nil if dirPath is a directory and is writable.
func VerifyWritable(dirPath string) error {
	fil, err := os.CreateTemp(dirPath, "")
	if err != nil {
		return err
	}
	if err := fil.Close(); err != nil {
		return err
	}
	return os.Remove(fil.Name())
}

// VerifyDatabasePath checks that a database file can be created or opened
// at path.
func VerifyDatabasePath(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	if err := VerifyWritable(filepath.Dir(path)); err != nil {
		return fmt.Errorf("cannot create database in %s: %w", filepath.Dir(path), err)
	}
	return nil
}
