// Package record defines the input record consumed by neural network
// potentials: atomic identities, positions, subsystem grouping, charges, and
// the optional pair list and periodic box description.
package record

// PairList enumerates candidate atom-index pairs as two parallel index
// columns: pair k is (I[k], J[k]).
type PairList struct {
	I []int
	J []int
}

// Len returns the number of pairs.
func (p *PairList) Len() int { return len(p.I) }

func (p *PairList) clone() *PairList {
	if p == nil {
		return nil
	}
	return &PairList{I: cloneInts(p.I), J: cloneInts(p.J)}
}

// Record is one simulation frame prepared for a downstream model
// (immutable value object). Constructed once, consumed read-only; a schema
// change produces a new instance via the snapshot package, never an in-place
// edit.
type Record struct {
	atomicNumbers    []int
	positions        [][3]float64
	subsystemIndices []int
	totalCharge      []int

	pairList      *PairList
	partialCharge []float64
	boxVectors    [3][3]float64
	periodic      bool
}

// Option configures the optional fields of a Record.
type Option func(*recordConfig)

type recordConfig struct {
	pairList      *PairList
	partialCharge []float64
	boxVectors    [3][3]float64
	periodic      bool
}

// WithPairList sets the candidate interaction pairs (two parallel index columns).
func WithPairList(i, j []int) Option {
	return func(c *recordConfig) {
		c.pairList = &PairList{I: i, J: j}
	}
}

// WithPartialCharge sets the per-atom partial charges.
func WithPartialCharge(q []float64) Option {
	return func(c *recordConfig) {
		c.partialCharge = q
	}
}

// WithBoxVectors sets the 3x3 periodic box matrix. The zero matrix denotes a
// non-periodic (isolated) system.
func WithBoxVectors(box [3][3]float64) Option {
	return func(c *recordConfig) {
		c.boxVectors = box
	}
}

// Periodic marks the record as living in a repeating simulation cell.
func Periodic() Option {
	return func(c *recordConfig) {
		c.periodic = true
	}
}

// New validates and creates a Record.
// Required fields must be non-nil; their lengths must agree atom-for-atom and
// totalCharge must carry one entry per distinct subsystem. Pair indices, if
// given, must lie in [0, N) with no self pairs. A box being all-zero iff the
// record is non-periodic is a convention, not enforced.
func New(
	atomicNumbers []int,
	positions [][3]float64,
	subsystemIndices []int,
	totalCharge []int,
	opts ...Option,
) (Record, error) {
	if atomicNumbers == nil {
		return Record{}, NewMissingField("atomic_numbers")
	}
	if positions == nil {
		return Record{}, NewMissingField("positions")
	}
	if subsystemIndices == nil {
		return Record{}, NewMissingField("atomic_subsystem_indices")
	}
	if totalCharge == nil {
		return Record{}, NewMissingField("total_charge")
	}

	var cfg recordConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	n := len(atomicNumbers)
	if len(positions) != n {
		return Record{}, NewShapeMismatch("positions",
			"length %d does not match %d atoms", len(positions), n)
	}
	if len(subsystemIndices) != n {
		return Record{}, NewShapeMismatch("atomic_subsystem_indices",
			"length %d does not match %d atoms", len(subsystemIndices), n)
	}
	if systems := countSubsystems(subsystemIndices); len(totalCharge) != systems {
		return Record{}, NewShapeMismatch("total_charge",
			"length %d does not match %d subsystems", len(totalCharge), systems)
	}
	if cfg.partialCharge != nil && len(cfg.partialCharge) != n {
		return Record{}, NewShapeMismatch("partial_charge",
			"length %d does not match %d atoms", len(cfg.partialCharge), n)
	}
	if err := validatePairs(cfg.pairList, n); err != nil {
		return Record{}, err
	}

	return Record{
		atomicNumbers:    cloneInts(atomicNumbers),
		positions:        clonePositions(positions),
		subsystemIndices: cloneInts(subsystemIndices),
		totalCharge:      cloneInts(totalCharge),
		pairList:         cfg.pairList.clone(),
		partialCharge:    cloneFloats(cfg.partialCharge),
		boxVectors:       cfg.boxVectors,
		periodic:         cfg.periodic,
	}, nil
}

// Reconstruct creates a Record without validation (codec hydration).
func Reconstruct(
	atomicNumbers []int,
	positions [][3]float64,
	subsystemIndices []int,
	totalCharge []int,
	pairList *PairList,
	partialCharge []float64,
	boxVectors [3][3]float64,
	periodic bool,
) Record {
	return Record{
		atomicNumbers:    atomicNumbers,
		positions:        positions,
		subsystemIndices: subsystemIndices,
		totalCharge:      totalCharge,
		pairList:         pairList,
		partialCharge:    partialCharge,
		boxVectors:       boxVectors,
		periodic:         periodic,
	}
}

func validatePairs(p *PairList, n int) error {
	if p == nil {
		return nil
	}
	if len(p.I) != len(p.J) {
		return NewShapeMismatch("pair_list",
			"index columns differ in length: %d vs %d", len(p.I), len(p.J))
	}
	for k := range p.I {
		i, j := p.I[k], p.J[k]
		if i < 0 || i >= n || j < 0 || j >= n {
			return NewShapeMismatch("pair_list",
				"pair %d (%d, %d) out of range [0, %d)", k, i, j, n)
		}
		if i == j {
			return NewShapeMismatch("pair_list", "pair %d is a self pair (%d)", k, i)
		}
	}
	return nil
}

func countSubsystems(indices []int) int {
	seen := make(map[int]struct{}, 4)
	for _, idx := range indices {
		seen[idx] = struct{}{}
	}
	return len(seen)
}

// NumAtoms returns the number of atoms N.
func (r *Record) NumAtoms() int { return len(r.atomicNumbers) }

// NumSystems returns the number of distinct subsystems.
func (r *Record) NumSystems() int { return len(r.totalCharge) }

// AtomicNumbers returns the per-atom atomic numbers.
func (r *Record) AtomicNumbers() []int { return r.atomicNumbers }

// Positions returns the per-atom XYZ coordinates.
func (r *Record) Positions() [][3]float64 { return r.positions }

// SubsystemIndices maps each atom to its molecule within the record.
func (r *Record) SubsystemIndices() []int { return r.subsystemIndices }

// TotalCharge returns one total charge per subsystem.
func (r *Record) TotalCharge() []int { return r.totalCharge }

// PairList returns the candidate interaction pairs, or nil when undefined.
func (r *Record) PairList() *PairList { return r.pairList }

// PartialCharge returns the per-atom partial charges, or nil when absent.
func (r *Record) PartialCharge() []float64 { return r.partialCharge }

// BoxVectors returns the 3x3 periodic box matrix (zero for isolated systems).
func (r *Record) BoxVectors() [3][3]float64 { return r.boxVectors }

// Periodic reports whether the record lives in a repeating cell.
func (r *Record) Periodic() bool { return r.periodic }

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	c := make([]int, len(s))
	copy(c, s)
	return c
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	c := make([]float64, len(s))
	copy(c, s)
	return c
}

func clonePositions(s [][3]float64) [][3]float64 {
	if s == nil {
		return nil
	}
	c := make([][3]float64, len(s))
	copy(c, s)
	return c
}
