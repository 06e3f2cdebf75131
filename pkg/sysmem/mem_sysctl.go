//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

func totalSystemMemory() (uint64, bool) {
	for _, name := range []string{"hw.memsize", "hw.physmem", "hw.realmem"} {
		if mem, err := unix.SysctlUint64(name); err == nil && mem > 0 {
			return mem, true
		}
	}
	return 0, false
}

func availableSystemMemory() (uint64, bool) {
	return 0, false
}
