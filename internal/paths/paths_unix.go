//go:build linux || darwin

package paths

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckWritable probes that dir is both readable and writable.
func CheckWritable(dir string) error {
	if err := unix.Access(dir, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("data directory %s not accessible: %w", dir, err)
	}
	return nil
}
