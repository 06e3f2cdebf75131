package benchutil

// Shared constants for benchmarks across packages.

// BenchmarkSeed is the default seed for reproducible benchmark data generation.
const BenchmarkSeed = 42

// Standard benchmark sizes for quick runs.
var BenchmarkSizes = []int{1000, 10000, 100000}

// ScalingSizes are larger sizes for comprehensive scaling tests.
// Used with IBU_LONG_BENCH=1 environment variable.
var ScalingSizes = []int{1_000_000, 5_000_000, 20_000_000}

// Cardinality names a barcode distribution for benchmarking.
type Cardinality struct {
	Name     string
	Barcodes int
}

// Cardinalities are the standard barcode distributions:
//   - few: a handful of cells, long runs of equal barcodes
//   - typical: a single-cell run's order of magnitude
//   - unbounded: every barcode drawn independently
var Cardinalities = []Cardinality{
	{Name: "few", Barcodes: 64},
	{Name: "typical", Barcodes: 4096},
	{Name: "unbounded", Barcodes: 0},
}
