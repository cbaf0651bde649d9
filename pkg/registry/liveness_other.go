//go:build !linux

package registry

import "syscall"

// processAlive reports whether pid identifies a running process on
// non-Linux platforms, per spec §4.8: kill(pid, 0) returning nil or
// EPERM means the process exists; ESRCH means it doesn't.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
