//go:build !unix

package fsutil

import "os"

// Without flock only the in-process guard of the caller applies.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
