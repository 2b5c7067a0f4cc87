package dutil_test

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/sugarme/roadseg/dutil"
)

type intDataset struct {
	n int
}

func (ds *intDataset) Item(idx int) (interface{}, error) {
	if idx < 0 || idx >= ds.n {
		return nil, fmt.Errorf("index %v out of range", idx)
	}

	return idx * 10, nil
}

func (ds *intDataset) Len() int {
	return ds.n
}

func (ds *intDataset) DType() reflect.Type {
	return reflect.TypeOf(int(0))
}

func TestBatchSamplerDropLast(t *testing.T) {
	s, err := dutil.NewBatchSampler(10, 3, true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := s.BatchCount(); got != 3 {
		t.Errorf("want 3 batches, got %v", got)
	}

	if got := len(s.Sample()); got != 9 {
		t.Errorf("want 9 indexes after dropping remainder, got %v", got)
	}
}

func TestBatchSamplerKeepLast(t *testing.T) {
	s, err := dutil.NewBatchSampler(10, 3, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := s.BatchCount(); got != 4 {
		t.Errorf("want 4 batches, got %v", got)
	}
}

func TestBatchSamplerRejectsBadSizes(t *testing.T) {
	if _, err := dutil.NewBatchSampler(0, 1, false, nil); err == nil {
		t.Errorf("want error for empty dataset")
	}

	if _, err := dutil.NewBatchSampler(4, 5, false, nil); err == nil {
		t.Errorf("want error for batch size above dataset size")
	}
}

func TestBatchSamplerShuffleReproducible(t *testing.T) {
	first, err := dutil.NewBatchSampler(20, 4, false, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := dutil.NewBatchSampler(20, 4, false, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := first.Sample()
	b := second.Sample()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("want identical order from identical seeds, got %v vs %v", a, b)
	}

	sorted := append([]int(nil), a...)
	sort.Ints(sorted)
	for i, idx := range sorted {
		if idx != i {
			t.Fatalf("shuffled order is not a permutation: %v", a)
		}
	}
}

func TestDataLoaderBatches(t *testing.T) {
	ds := &intDataset{n: 7}
	s, err := dutil.NewBatchSampler(ds.Len(), 3, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dl, err := dutil.NewDataLoader(ds, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := dl.Len(); got != 3 {
		t.Errorf("want 3 batches, got %v", got)
	}

	var seen []int
	for dl.HasNext() {
		batch, err := dl.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		seen = append(seen, batch.([]int)...)
	}

	want := []int{0, 10, 20, 30, 40, 50, 60}
	if !reflect.DeepEqual(want, seen) {
		t.Errorf("want %v, got %v", want, seen)
	}

	if _, err := dl.Next(); err == nil {
		t.Errorf("want error after exhausting loader")
	}

	dl.Reset()
	if !dl.HasNext() {
		t.Errorf("want a fresh pass after Reset")
	}
}

func TestKFoldSplitCoversAllIndexes(t *testing.T) {
	kf, err := dutil.NewKFold(10, 3, true, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	folds := kf.Split()
	if len(folds) != 3 {
		t.Fatalf("want 3 folds, got %v", len(folds))
	}

	var all []int
	for _, fold := range folds {
		if len(fold.Train)+len(fold.Test) != 10 {
			t.Errorf("fold partitions %v train + %v test samples, want 10 total", len(fold.Train), len(fold.Test))
		}

		all = append(all, fold.Test...)
	}

	sort.Ints(all)
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !reflect.DeepEqual(want, all) {
		t.Errorf("test partitions should cover all indexes once, got %v", all)
	}
}

func TestKFoldReproducible(t *testing.T) {
	first, err := dutil.NewKFold(20, 4, true, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := dutil.NewKFold(20, 4, true, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first.Split(), second.Split()) {
		t.Errorf("same seed should produce the same folds")
	}
}
