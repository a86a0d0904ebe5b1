package dataset

import (
	"fmt"
	"math/rand"
)

// Split holds record indices for the three partitions.
type Split struct {
	Train      []int
	Validation []int
	Test       []int
}

// Strategy partitions n record indices into train/validation/test sets.
type Strategy interface {
	Split(n int) (Split, error)
}

// RandomSplit shuffles indices with a fixed seed before partitioning,
// so a given seed always yields the same split.
type RandomSplit struct {
	Seed      int64
	Fractions [3]float64
}

// Split implements Strategy.
func (s RandomSplit) Split(n int) (Split, error) {
	if err := checkFractions(s.Fractions); err != nil {
		return Split{}, err
	}
	perm := rand.New(rand.NewSource(s.Seed)).Perm(n)
	return partition(perm, s.Fractions), nil
}

// FirstComeFirstServe partitions indices in dataset order.
type FirstComeFirstServe struct {
	Fractions [3]float64
}

// Split implements Strategy.
func (s FirstComeFirstServe) Split(n int) (Split, error) {
	if err := checkFractions(s.Fractions); err != nil {
		return Split{}, err
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return partition(indices, s.Fractions), nil
}

func partition(indices []int, fractions [3]float64) Split {
	n := len(indices)
	trainLen := int(fractions[0] * float64(n))
	valLen := int(fractions[1] * float64(n))

	return Split{
		Train:      indices[:trainLen],
		Validation: indices[trainLen : trainLen+valLen],
		Test:       indices[trainLen+valLen:],
	}
}

func checkFractions(fractions [3]float64) error {
	sum := 0.0
	for _, f := range fractions {
		if f < 0 {
			return fmt.Errorf("split fraction must be non-negative, got %g", f)
		}
		sum += f
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("split fractions must sum to 1, got %g", sum)
	}
	return nil
}
