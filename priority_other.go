//go:build !linux

package threading

// setThreadPriority is a no-op on platforms without per-thread nice values.
func setThreadPriority(_ Priority) error { return nil }
