//go:build linux

package threading

import "golang.org/x/sys/unix"

// setThreadPriority sets the nice value of the calling OS thread.
// The caller must have locked the goroutine to its thread.
func setThreadPriority(p Priority) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), p.nice())
}
