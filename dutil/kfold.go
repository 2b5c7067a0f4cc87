package dutil

import (
	"fmt"
	"math/rand"
)

// Fold is one train/validation split of dataset indexes.
type Fold struct {
	Train []int
	Test  []int
}

// KFold partitions n samples into k folds for cross validation.
type KFold struct {
	n       int
	k       int
	shuffle bool
	seed    int64
}

// NewKFold validates the split parameters. With shuffle enabled the index
// permutation is drawn from a source seeded with the given seed, so splits
// are reproducible.
func NewKFold(n, k int, shuffle bool, seed int64) (*KFold, error) {
	if k < 2 {
		return nil, fmt.Errorf("dutil: need at least 2 folds, got %v", k)
	}

	if n < k {
		return nil, fmt.Errorf("dutil: cannot split %v samples into %v folds", n, k)
	}

	return &KFold{n: n, k: k, shuffle: shuffle, seed: seed}, nil
}

// Split returns the k folds. Test partitions are disjoint and cover all
// indexes; the first n mod k folds take one extra sample.
func (kf *KFold) Split() []Fold {
	indexes := make([]int, kf.n)
	for i := 0; i < kf.n; i++ {
		indexes[i] = i
	}

	if kf.shuffle {
		rng := rand.New(rand.NewSource(kf.seed))
		rng.Shuffle(kf.n, func(i, j int) {
			indexes[i], indexes[j] = indexes[j], indexes[i]
		})
	}

	folds := make([]Fold, 0, kf.k)
	start := 0
	for i := 0; i < kf.k; i++ {
		size := kf.n / kf.k
		if i < kf.n%kf.k {
			size++
		}

		test := indexes[start : start+size]
		train := make([]int, 0, kf.n-size)
		train = append(train, indexes[:start]...)
		train = append(train, indexes[start+size:]...)

		folds = append(folds, Fold{Train: train, Test: test})
		start += size
	}

	return folds
}
