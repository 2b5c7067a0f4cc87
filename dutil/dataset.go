package dutil

import "reflect"

// Dataset is a map-style collection of training samples addressed by index.
type Dataset interface {
	// Item returns the sample at the given index.
	Item(idx int) (interface{}, error)
	// Len returns the number of samples.
	Len() int
	// DType returns the element type Item produces, so a loader can build
	// typed batches.
	DType() reflect.Type
}
