//go:build linux

package registry

import (
	"os"
	"strconv"
)

// processAlive reports whether pid identifies a running process, per
// spec §4.8's Linux-specific rule: stat /proc/<pid>.
func processAlive(pid int) bool {
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}
