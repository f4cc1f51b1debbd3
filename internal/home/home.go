package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the speclog home directory.
	DefaultDirName = ".speclog"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	runsDirName   = "runs"
	outputDirName = "output"
	inboxDirName  = "inbox"
)

// Dir represents the speclog home directory structure:
//
//	{home}/config.yaml
//	{home}/runs/{run_id}/chunks/      split PDFs (removed unless kept)
//	{home}/runs/{run_id}/responses/   raw model responses
//	{home}/output/                    submittal logs and JSON backups
//	{home}/inbox/                     watched for new PDFs
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.speclog).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// RunsPath returns the directory holding per-run working data.
func (d *Dir) RunsPath() string {
	return filepath.Join(d.path, runsDirName)
}

// RunDir returns the working directory for a run.
func (d *Dir) RunDir(runID string) string {
	return filepath.Join(d.RunsPath(), runID)
}

// ChunksDir returns the directory for a run's split chunk PDFs.
func (d *Dir) ChunksDir(runID string) string {
	return filepath.Join(d.RunDir(runID), "chunks")
}

// ResponsesDir returns the directory for a run's raw model responses.
func (d *Dir) ResponsesDir(runID string) string {
	return filepath.Join(d.RunDir(runID), "responses")
}

// OutputDir returns the default directory for submittal logs.
func (d *Dir) OutputDir() string {
	return filepath.Join(d.path, outputDirName)
}

// InboxDir returns the default directory watched for new PDFs.
func (d *Dir) InboxDir() string {
	return filepath.Join(d.path, inboxDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.RunsPath(), d.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureRunDirs creates the chunk and response directories for a run.
func (d *Dir) EnsureRunDirs(runID string) error {
	for _, dir := range []string{d.ChunksDir(runID), d.ResponsesDir(runID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
