package dataset

import (
	"math"

	"github.com/atomworks/nnprep/pkg/record"
)

// Welford accumulates mean and variance in a single pass without storing
// samples.
type Welford struct {
	count int
	mean  float64
	m2    float64
}

// Update folds one sample into the accumulator.
func (w *Welford) Update(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

// Count returns the number of samples seen.
func (w *Welford) Count() int { return w.count }

// Mean returns the running mean.
func (w *Welford) Mean() float64 { return w.mean }

// Variance returns the sample variance, or 0 with fewer than two samples.
func (w *Welford) Variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

// StdDev returns the sample standard deviation.
func (w *Welford) StdDev() float64 {
	return math.Sqrt(w.Variance())
}

// ElementCounts tallies atoms per atomic number across records.
func ElementCounts(records []record.Record) map[int]int {
	counts := make(map[int]int)
	for i := range records {
		for _, z := range records[i].AtomicNumbers() {
			counts[z]++
		}
	}
	return counts
}

// PositionSpread accumulates per-axis statistics over all atom positions of a
// record. Axis order is x, y, z.
func PositionSpread(r record.Record) [3]Welford {
	var axes [3]Welford
	for _, p := range r.Positions() {
		for a := 0; a < 3; a++ {
			axes[a].Update(p[a])
		}
	}
	return axes
}
