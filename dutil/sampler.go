package dutil

import (
	"fmt"
	"math/rand"
)

// Sampler yields an ordering of dataset indexes partitioned into batches.
type Sampler interface {
	// Sample returns dataset indexes in iteration order.
	Sample() []int
	// BatchSize returns the number of indexes per batch.
	BatchSize() int
}

// BatchSampler produces fixed-size batches over n samples, optionally
// shuffled and optionally dropping a trailing partial batch.
type BatchSampler struct {
	n         int
	batchSize int
	dropLast  bool
	rng       *rand.Rand
}

// NewBatchSampler validates the sampling parameters. A nil rng keeps the
// indexes in sequential order; a seeded source makes the epoch order
// reproducible.
func NewBatchSampler(n, batchSize int, dropLast bool, rng *rand.Rand) (*BatchSampler, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dutil: dataset size must be positive, got %v", n)
	}

	if batchSize <= 0 || batchSize > n {
		return nil, fmt.Errorf("dutil: batch size must be in [1, %v], got %v", n, batchSize)
	}

	return &BatchSampler{
		n:         n,
		batchSize: batchSize,
		dropLast:  dropLast,
		rng:       rng,
	}, nil
}

// Sample returns the index order for one pass over the data.
func (s *BatchSampler) Sample() []int {
	indexes := make([]int, s.n)
	for i := 0; i < s.n; i++ {
		indexes[i] = i
	}

	if s.rng != nil {
		s.rng.Shuffle(s.n, func(i, j int) {
			indexes[i], indexes[j] = indexes[j], indexes[i]
		})
	}

	if s.dropLast {
		indexes = indexes[:s.BatchCount()*s.batchSize]
	}

	return indexes
}

// BatchSize returns the configured batch size.
func (s *BatchSampler) BatchSize() int {
	return s.batchSize
}

// BatchCount returns the number of batches in one pass.
func (s *BatchSampler) BatchCount() int {
	count := s.n / s.batchSize
	if !s.dropLast && s.n%s.batchSize != 0 {
		count++
	}

	return count
}
