package snapshot

import (
	"errors"
	"testing"

	"github.com/atomworks/nnprep/pkg/record"
)

func minimalSnapshot() Snapshot {
	return Snapshot{
		Version:          VersionLegacy,
		AtomicNumbers:    []int{6, 6, 8},
		Positions:        [][3]float64{{0, 0, 0}, {0.15, 0, 0}, {0.15, 0.12, 0}},
		SubsystemIndices: []int{0, 0, 0},
		TotalCharge:      []int{0},
	}
}

func TestToRecord_LegacyDefaults(t *testing.T) {
	r, err := ToRecord(minimalSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.PairList() != nil {
		t.Error("PairList() should default to nil")
	}
	if r.PartialCharge() != nil {
		t.Error("PartialCharge() should default to nil")
	}
	if r.BoxVectors() != ([3][3]float64{}) {
		t.Errorf("BoxVectors() = %v, want zero matrix", r.BoxVectors())
	}
	if r.Periodic() {
		t.Error("Periodic() should default to false")
	}
}

func TestToRecord_MissingRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"atomic_numbers", func(s *Snapshot) { s.AtomicNumbers = nil }},
		{"positions", func(s *Snapshot) { s.Positions = nil }},
		{"atomic_subsystem_indices", func(s *Snapshot) { s.SubsystemIndices = nil }},
		{"total_charge", func(s *Snapshot) { s.TotalCharge = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := minimalSnapshot()
			tc.mutate(&s)
			_, err := ToRecord(s)
			if !errors.Is(err, record.ErrMissingField) {
				t.Fatalf("got %v, want ErrMissingField", err)
			}
			var mf *record.MissingFieldError
			if !errors.As(err, &mf) || mf.Field != tc.name {
				t.Errorf("error %v does not name field %q", err, tc.name)
			}
		})
	}
}

func TestToRecord_InvalidSourceShapes(t *testing.T) {
	s := minimalSnapshot()
	s.Positions = s.Positions[:2]
	if _, err := ToRecord(s); !errors.Is(err, record.ErrShapeMismatch) {
		t.Fatalf("got %v, want ErrShapeMismatch for short positions", err)
	}

	s = minimalSnapshot()
	s.PairList = &record.PairList{I: []int{0}, J: []int{0}}
	if _, err := ToRecord(s); !errors.Is(err, record.ErrShapeMismatch) {
		t.Fatalf("got %v, want ErrShapeMismatch for self pair", err)
	}
}

// Migrating a snapshot that already carries every current field must
// reproduce the record unchanged.
func TestToRecord_Idempotent(t *testing.T) {
	box := [3][3]float64{{3, 0, 0}, {0, 3, 0}, {0, 0, 3}}
	orig, err := record.New(
		[]int{1, 1, 8, 1, 1, 8},
		[][3]float64{
			{0, 0, 0}, {0.1, 0, 0}, {0, 0.1, 0},
			{1, 1, 1}, {1.1, 1, 1}, {1, 1.1, 1},
		},
		[]int{0, 0, 0, 1, 1, 1},
		[]int{0, 0},
		record.WithPairList([]int{0, 1, 3}, []int{1, 2, 4}),
		record.WithPartialCharge([]float64{0.3, 0.3, -0.6, 0.3, 0.3, -0.6}),
		record.WithBoxVectors(box),
		record.Periodic(),
	)
	if err != nil {
		t.Fatalf("building record: %v", err)
	}

	once, err := ToRecord(FromRecord(orig))
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	twice, err := ToRecord(FromRecord(once))
	if err != nil {
		t.Fatalf("second migration: %v", err)
	}

	assertRecordsEqual(t, once, orig)
	assertRecordsEqual(t, twice, orig)
}
