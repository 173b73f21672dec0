//go:build windows

package config

import "os"

// openFile opens path. Windows has no O_NOFOLLOW.
func openFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

// checkFile is a no-op; Windows uses ACLs rather than mode bits.
func checkFile(_ *os.File) error {
	return nil
}
