//go:build !unix

package bytelog

import "os"

// Advisory locking is only implemented on unix; elsewhere the single-writer
// rule is enforced in-process only.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) error { return nil }
