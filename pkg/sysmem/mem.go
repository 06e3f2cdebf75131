// Package sysmem reports physical memory so whole-file loads can be refused
// before they exhaust the machine.
package sysmem

// DefaultMemoryBytes (4 GiB) stands in when the platform cannot be queried.
const DefaultMemoryBytes uint64 = 4 << 30

// Result holds a memory reading.
type Result struct {
	// TotalBytes is the memory size in bytes.
	TotalBytes uint64

	// Reliable is false when TotalBytes is the DefaultMemoryBytes fallback.
	Reliable bool
}

// Total returns total physical memory, or DefaultMemoryBytes with
// Reliable=false when it cannot be determined.
func Total() Result {
	return reading(totalSystemMemory())
}

// Available returns memory currently free for new allocations. On platforms
// without a cheap query it falls back to Total.
func Available() Result {
	if n, ok := availableSystemMemory(); ok && n > 0 {
		return Result{TotalBytes: n, Reliable: true}
	}
	return Total()
}

// Fits reports whether n bytes fit in total memory. An unreliable reading
// never rejects.
func Fits(n uint64) bool {
	r := Total()
	return !r.Reliable || n <= r.TotalBytes
}

func reading(n uint64, ok bool) Result {
	if !ok || n == 0 {
		return Result{TotalBytes: DefaultMemoryBytes}
	}
	return Result{TotalBytes: n, Reliable: true}
}
