package dutil

import (
	"fmt"
	"reflect"
)

// DataLoader iterates a Dataset in the batch order given by a Sampler.
type DataLoader struct {
	dataset Dataset
	indexes []int
	batch   int
	cursor  int
}

// NewDataLoader pairs a dataset with a sampler.
func NewDataLoader(dataset Dataset, sampler Sampler) (*DataLoader, error) {
	if dataset == nil || sampler == nil {
		return nil, fmt.Errorf("dutil: dataset and sampler must not be nil")
	}

	return &DataLoader{
		dataset: dataset,
		indexes: sampler.Sample(),
		batch:   sampler.BatchSize(),
		cursor:  0,
	}, nil
}

// HasNext reports whether another batch remains in this pass.
func (dl *DataLoader) HasNext() bool {
	return dl.cursor < len(dl.indexes)
}

// Next returns the next batch as a typed slice of the dataset element type.
// The final batch may be shorter when the sampler keeps the remainder.
func (dl *DataLoader) Next() (interface{}, error) {
	if !dl.HasNext() {
		return nil, fmt.Errorf("dutil: data exhausted, call Reset to start a new pass")
	}

	end := dl.cursor + dl.batch
	if end > len(dl.indexes) {
		end = len(dl.indexes)
	}

	items := reflect.MakeSlice(reflect.SliceOf(dl.dataset.DType()), 0, end-dl.cursor)
	for _, idx := range dl.indexes[dl.cursor:end] {
		item, err := dl.dataset.Item(idx)
		if err != nil {
			return nil, err
		}

		items = reflect.Append(items, reflect.ValueOf(item))
	}

	dl.cursor = end

	return items.Interface(), nil
}

// Reset starts a new pass over the same index order.
func (dl *DataLoader) Reset() {
	dl.cursor = 0
}

// Len returns the number of batches in one pass.
func (dl *DataLoader) Len() int {
	count := len(dl.indexes) / dl.batch
	if len(dl.indexes)%dl.batch != 0 {
		count++
	}

	return count
}
