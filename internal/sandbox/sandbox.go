// Package sandbox provides access to the agent's execution environment and
// detects and recovers from losing it.
package sandbox

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by ReadFile when the file does not exist.
var ErrNotFound = errors.New("file not found in sandbox")

// Sandbox is the execution environment the agent's tools run in.
type Sandbox interface {
	// NormalizePath maps a user supplied path to an absolute sandbox path.
	NormalizePath(path string) string
	// ReadFile returns the file content or ErrNotFound.
	ReadFile(ctx context.Context, path string) (string, error)
	// GlobFiles lists files under dir matching a doublestar pattern.
	GlobFiles(ctx context.Context, pattern, dir string) ([]string, error)
	// Health probes the environment and returns nil when it is usable.
	Health(ctx context.Context) error
	// Reconnect drops any existing connection and establishes a new one.
	Reconnect(ctx context.Context) error
	Close() error
}

// skipDirs are never descended into when listing files.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	".cache":       true,
}

// maxListedFiles caps recursive listings.
const maxListedFiles = 5000

// StripHome removes the sandbox home prefix from listed paths.
func StripHome(files []string, home string) []string {
	if home == "" {
		return files
	}
	if !strings.HasSuffix(home, "/") {
		home += "/"
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = strings.TrimPrefix(f, home)
	}
	return out
}
