// Package pairs computes candidate interaction pair lists for input records.
// Pairs only form between atoms of the same subsystem; the cutoff variant
// additionally filters on Euclidean distance.
package pairs

import (
	"fmt"
	"math"

	"github.com/atomworks/nnprep/pkg/record"
)

// All enumerates every intra-subsystem atom pair. With unique set, only the
// upper triangle (i < j) is kept; otherwise both (i, j) and (j, i) appear.
func All(subsystemIndices []int, unique bool) *record.PairList {
	n := len(subsystemIndices)
	p := &record.PairList{}
	for i := 0; i < n; i++ {
		start := 0
		if unique {
			start = i + 1
		}
		for j := start; j < n; j++ {
			if i == j || subsystemIndices[i] != subsystemIndices[j] {
				continue
			}
			p.I = append(p.I, i)
			p.J = append(p.J, j)
		}
	}
	return p
}

// WithinCutoff enumerates intra-subsystem pairs whose distance does not
// exceed cutoff (same length unit as the positions).
func WithinCutoff(
	positions [][3]float64,
	subsystemIndices []int,
	cutoff float64,
	unique bool,
) (*record.PairList, error) {
	if len(positions) != len(subsystemIndices) {
		return nil, record.NewShapeMismatch("positions",
			"length %d does not match %d subsystem indices",
			len(positions), len(subsystemIndices))
	}
	if cutoff <= 0 {
		return nil, fmt.Errorf("cutoff must be positive, got %g", cutoff)
	}

	all := All(subsystemIndices, unique)
	p := &record.PairList{}
	for k := range all.I {
		i, j := all.I[k], all.J[k]
		if distance(positions[i], positions[j]) <= cutoff {
			p.I = append(p.I, i)
			p.J = append(p.J, j)
		}
	}
	return p, nil
}

func distance(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
