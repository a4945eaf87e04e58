package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the directory created under $HOME.
	DefaultDirName = ".santagram"

	// DataDirName holds the order database volume.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir locates the santagram home directory and its contents.
type Dir struct {
	path string
}

// New creates a Dir rooted at path, defaulting to ~/.santagram when
// path is empty.
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
func (d *Dir) Path() string { return d.path }

// DataPath returns the database data directory.
func (d *Dir) DataPath() string { return filepath.Join(d.path, DataDirName) }

// ConfigPath returns the default config file location.
func (d *Dir) ConfigPath() string { return filepath.Join(d.path, ConfigFileName) }

// EnsureExists creates the directory tree when missing. Creating the
// data directory also creates the parent.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists reports whether the home directory is present.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists reports whether the config file is present.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
