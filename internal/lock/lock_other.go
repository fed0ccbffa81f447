//go:build !unix && !windows

package lock

import "os"

// Platforms without advisory locks rely on the in-process registry only.
func tryLock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
