// Package paths resolves the filesystem location of the switchboard's
// control-plane endpoint, following the XDG base-directory precedence the
// spec requires: $XDG_DATA_HOME if set, else $HOME/.local/share.
package paths

import (
	"os"
	"path/filepath"
)

// DefaultProduct is the subdirectory name used when the caller doesn't
// override it via config.
const DefaultProduct = "switchboard"

// SocketName is the fixed filename of the control-plane endpoint.
const SocketName = "switchboard.sock"

// DataDir returns "$XDG_DATA_HOME/<product>" or, if XDG_DATA_HOME is unset,
// "$HOME/.local/share/<product>".
func DataDir(product string) (string, error) {
	if product == "" {
		product = DefaultProduct
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(filepath.Clean(xdg), product), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", product), nil
}

// SocketPath returns the full path to the control-plane endpoint for the
// given product name.
func SocketPath(product string) (string, error) {
	dir, err := DataDir(product)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SocketName), nil
}

// EnsureDataDir creates the data directory (and any missing parents) with
// user-only permissions if it does not already exist, and confirms the
// process can actually read and write it (a pre-existing directory may be
// owned by another user, e.g. a leftover from a previous install under a
// different account).
func EnsureDataDir(dir string) error {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return &os.PathError{Op: "mkdir", Path: dir, Err: os.ErrExist}
		}
		return CheckWritable(dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return CheckWritable(dir)
}
