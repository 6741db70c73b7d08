// Package utils provides small helpers shared by the command layer.
package utils

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands tilde and environment variables in a path. On failure
// the path is returned unchanged.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err != nil {
		return os.ExpandEnv(path)
	}
	return os.ExpandEnv(s)
}

// IsTextFile reports whether the path looks like a plain-text file we are
// willing to read aloud.
func IsTextFile(path string) bool {
	switch strings.ToLower(ext(path)) {
	case ".txt", ".md", ".markdown", ".text":
		return true
	}
	return false
}

func ext(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
