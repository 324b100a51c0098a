//go:build !unix

package mmapexport

import "errors"

// ErrUnsupported is returned by WriteFile/ReadFile on platforms
// without the unix mmap syscalls this package relies on.
var ErrUnsupported = errors.New("mmapexport: not supported on this platform")

func WriteFile(path string, data []byte) error { return ErrUnsupported }

func ReadFile(path string) ([]byte, error) { return nil, ErrUnsupported }
