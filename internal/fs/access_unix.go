//go:build unix

package fs

import "golang.org/x/sys/unix"

// writable reports whether entries can be created in dir without creating one.
func writable(dir string) error {
	return unix.Access(dir, unix.W_OK|unix.X_OK)
}
