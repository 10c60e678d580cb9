package sysinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// AvailableMemory returns the bytes the OS reports as available for new
// allocations without swapping.
func AvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read memory stats: %w", err)
	}
	return vm.Available, nil
}

// FrameBudget returns the byte budget for buffered frames given a share of
// available memory. A zero fraction or an unreadable memory state disables the
// budget (returns 0).
func FrameBudget(fraction float64) uint64 {
	if fraction <= 0 {
		return 0
	}
	avail, err := AvailableMemory()
	if err != nil || avail == 0 {
		return 0
	}
	return uint64(float64(avail) * fraction)
}
