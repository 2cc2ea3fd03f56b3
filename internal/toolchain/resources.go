package toolchain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HeapAuto asks ResolveHeap to size the JVM from installed memory.
const HeapAuto = "auto"

var heapPattern = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)

// memTotal and cpuCount are swapped in tests.
var (
	memTotal = func() (uint64, error) {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return 0, err
		}
		return vm.Total, nil
	}
	cpuCount = func() (int, error) {
		return cpu.Counts(true)
	}
)

// ResolveHeap turns a configured heap value into an -Xmx argument. "auto"
// uses three quarters of total memory in whole gigabytes (at least 1G).
func ResolveHeap(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.EqualFold(value, HeapAuto):
		total, err := memTotal()
		if err != nil {
			return "", fmt.Errorf("toolchain: read memory size: %w", err)
		}
		gb := uint64(float64(total)*defaultHeapFraction) >> 30
		if gb < 1 {
			gb = 1
		}
		return fmt.Sprintf("%dG", gb), nil
	case heapPattern.MatchString(value):
		return strings.ToUpper(value), nil
	}
	return "", fmt.Errorf("toolchain: invalid java heap %q (want e.g. 27G or auto)", value)
}

// DefaultThreads returns the logical CPU count, or 1 when it cannot be read.
func DefaultThreads() int {
	n, err := cpuCount()
	if err != nil || n < 1 {
		return 1
	}
	return n
}
