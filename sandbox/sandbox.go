// Package sandbox manages the scratch working directory of a run.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DirName is the name of the sandbox directory under the run root.
const DirName = "sandbox"

// Sandbox is an entered sandbox directory. Close restores the working
// directory that was current when it was entered.
type Sandbox struct {
	Path string
	prev string
}

// Enter recreates root/sandbox as an empty directory and makes it the
// process working directory. Callers must defer Close.
func Enter(root string) (*Sandbox, error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working dir: %w", err)
	}

	path, err := Prepare(root)
	if err != nil {
		return nil, err
	}

	if err := os.Chdir(path); err != nil {
		return nil, fmt.Errorf("enter sandbox %s: %w", path, err)
	}

	return &Sandbox{Path: path, prev: prev}, nil
}

// Close switches back to the previous working directory. It is safe to
// call more than once.
func (s *Sandbox) Close() error {
	if s == nil || s.prev == "" {
		return nil
	}

	prev := s.prev
	s.prev = ""

	if err := os.Chdir(prev); err != nil {
		return fmt.Errorf("leave sandbox %s: %w", s.Path, err)
	}

	return nil
}

// Prepare removes any leftover root/sandbox and creates it empty,
// returning its path. The working directory is not changed.
func Prepare(root string) (string, error) {
	path := filepath.Join(root, DirName)

	if err := removeAll(path); err != nil {
		return "", fmt.Errorf("clean sandbox %s: %w", path, err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create sandbox %s: %w", path, err)
	}

	return path, nil
}

// removeAll deletes path. Read-only entries left by an earlier run make
// the first attempt fail with a permission error; in that case the tree
// is made writable and removal is retried once.
func removeAll(path string) error {
	err := os.RemoveAll(path)
	if err == nil || !errors.Is(err, fs.ErrPermission) {
		return err
	}

	if werr := makeWritable(path); werr != nil {
		return errors.Join(err, werr)
	}

	return os.RemoveAll(path)
}

func makeWritable(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		mode := info.Mode().Perm() | 0o200
		if d.IsDir() {
			mode |= 0o700
		}

		return os.Chmod(path, mode)
	})
}
