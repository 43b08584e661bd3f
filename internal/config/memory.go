package config

import "github.com/shirou/gopsutil/v3/mem"

// availableMemoryMB returns the memory the system can hand out without
// swapping, or fallbackMemoryMB when it cannot be read.
func availableMemoryMB() int64 {
	v, err := mem.VirtualMemory()
	if err != nil || v.Available == 0 {
		return fallbackMemoryMB
	}
	return int64(v.Available >> 20)
}
