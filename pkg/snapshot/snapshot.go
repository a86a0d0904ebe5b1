// Package snapshot reads and writes serialized input records. On-disk
// payloads decode into a version-tagged Snapshot; a pure conversion maps any
// snapshot version to the current record schema with defaults resolved in one
// place.
package snapshot

import (
	"github.com/atomworks/nnprep/pkg/record"
)

// Snapshot schema versions.
const (
	VersionLegacy  = 1 // required fields only
	VersionCurrent = 2
)

// Snapshot is the decoded, version-tagged form of a record payload.
// Optional fields are nil when absent on the source; defaults are not applied
// until ToRecord.
type Snapshot struct {
	Version int

	AtomicNumbers    []int
	Positions        [][3]float64
	SubsystemIndices []int
	TotalCharge      []int

	PairList      *record.PairList
	PartialCharge []float64
	BoxVectors    *[3][3]float64
	IsPeriodic    *bool
}

// ToRecord migrates a snapshot of any version into a current-schema Record.
// Required fields are read directly and fail with a missing field error when
// absent. Absent optional fields take their documented defaults: no pair
// list, no partial charges, the zero box, non-periodic. All record invariants
// are re-applied; migrating an already-current snapshot reproduces every
// field unchanged.
func ToRecord(s Snapshot) (record.Record, error) {
	opts := make([]record.Option, 0, 4)
	if s.PairList != nil {
		opts = append(opts, record.WithPairList(s.PairList.I, s.PairList.J))
	}
	if s.PartialCharge != nil {
		opts = append(opts, record.WithPartialCharge(s.PartialCharge))
	}
	if s.BoxVectors != nil {
		opts = append(opts, record.WithBoxVectors(*s.BoxVectors))
	}
	if s.IsPeriodic != nil && *s.IsPeriodic {
		opts = append(opts, record.Periodic())
	}
	return record.New(s.AtomicNumbers, s.Positions, s.SubsystemIndices, s.TotalCharge, opts...)
}

// FromRecord captures a record as a current-version snapshot for encoding.
func FromRecord(r record.Record) Snapshot {
	box := r.BoxVectors()
	periodic := r.Periodic()
	return Snapshot{
		Version:          VersionCurrent,
		AtomicNumbers:    r.AtomicNumbers(),
		Positions:        r.Positions(),
		SubsystemIndices: r.SubsystemIndices(),
		TotalCharge:      r.TotalCharge(),
		PairList:         r.PairList(),
		PartialCharge:    r.PartialCharge(),
		BoxVectors:       &box,
		IsPeriodic:       &periodic,
	}
}
