package dataset

import (
	"fmt"

	"github.com/atomworks/nnprep/pkg/record"
)

// Collate merges records into one batched record: atoms are concatenated,
// subsystem labels are re-indexed densely per record and shifted by the
// running subsystem count, and pair indices shift by the running atom count.
// Partial charges and pair lists survive only when every member carries them.
// Periodic records cannot be collated; a batch holds a single box.
func Collate(records []record.Record) (record.Record, error) {
	if len(records) == 0 {
		return record.Record{}, fmt.Errorf("no records to collate")
	}

	allPartial := true
	allPairs := true
	totalAtoms := 0
	totalPairs := 0
	for i := range records {
		if records[i].Periodic() {
			return record.Record{}, record.NewShapeMismatch("box_vectors",
				"record %d is periodic; only isolated systems can be collated", i)
		}
		if records[i].PartialCharge() == nil {
			allPartial = false
		}
		if records[i].PairList() == nil {
			allPairs = false
		} else {
			totalPairs += records[i].PairList().Len()
		}
		totalAtoms += records[i].NumAtoms()
	}

	atoms := make([]int, 0, totalAtoms)
	positions := make([][3]float64, 0, totalAtoms)
	subsystems := make([]int, 0, totalAtoms)
	var charge []int
	var partial []float64
	if allPartial {
		partial = make([]float64, 0, totalAtoms)
	}
	var pairI, pairJ []int
	if allPairs {
		pairI = make([]int, 0, totalPairs)
		pairJ = make([]int, 0, totalPairs)
	}

	atomOffset := 0
	systemOffset := 0
	for i := range records {
		r := &records[i]

		atoms = append(atoms, r.AtomicNumbers()...)
		positions = append(positions, r.Positions()...)
		// Labels may be sparse ({0, 2} is a valid record); map each to a
		// dense index by first appearance before shifting.
		dense := make(map[int]int, r.NumSystems())
		for _, idx := range r.SubsystemIndices() {
			d, ok := dense[idx]
			if !ok {
				d = len(dense)
				dense[idx] = d
			}
			subsystems = append(subsystems, d+systemOffset)
		}
		charge = append(charge, r.TotalCharge()...)

		if allPartial {
			partial = append(partial, r.PartialCharge()...)
		}
		if allPairs {
			p := r.PairList()
			for k := range p.I {
				pairI = append(pairI, p.I[k]+atomOffset)
				pairJ = append(pairJ, p.J[k]+atomOffset)
			}
		}

		atomOffset += r.NumAtoms()
		systemOffset += r.NumSystems()
	}

	opts := make([]record.Option, 0, 2)
	if allPartial {
		opts = append(opts, record.WithPartialCharge(partial))
	}
	if allPairs {
		opts = append(opts, record.WithPairList(pairI, pairJ))
	}
	return record.New(atoms, positions, subsystems, charge, opts...)
}
