// Package pathutil provides utilities for safe path handling.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrNullBytes   = errors.New("path contains null bytes")
	ErrInvalidName = errors.New("file name must not contain path separators")
)

// ValidatePath cleans path and resolves symlinks when the path exists.
// Paths that do not exist yet are returned cleaned so they can be created.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "\x00") {
		return "", ErrNullBytes
	}
	realPath, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned, nil
	}
	return realPath, nil
}

// JoinWithin joins a generated file name onto dir. Names built from
// configuration (pillar names, dates) must stay inside dir.
func JoinWithin(dir, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(name, "\x00") {
		return "", ErrNullBytes
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if dir == "" {
		dir = "."
	}
	base, err := ValidatePath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, name), nil
}

// SafeName replaces characters that cannot appear in a file name.
func SafeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		if r < ' ' {
			return '_'
		}
		return r
	}, s)
}
