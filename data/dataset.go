package data

import (
	"fmt"
	"reflect"

	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/aug"
)

// Sample is one training pair of image and mask tensors.
type Sample struct {
	Image ts.Tensor
	Mask  ts.Tensor
}

// RoadDataset implements dutil.Dataset over aerial image and mask files
// named identically in two directories. With an augmenter set, samples are
// augmented on load; otherwise image and mask are returned as stored.
type RoadDataset struct {
	imageDir  string
	maskDir   string
	names     []string
	augmenter *aug.Augmenter
}

// NewRoadDataset lists a dataset from the given file names.
func NewRoadDataset(imageDir, maskDir string, names []string, augmenter *aug.Augmenter) *RoadDataset {
	return &RoadDataset{
		imageDir:  imageDir,
		maskDir:   maskDir,
		names:     names,
		augmenter: augmenter,
	}
}

// Subset returns a dataset over the given sample indexes, sharing the
// augmenter. Used to materialize cross-validation folds.
func (ds *RoadDataset) Subset(indexes []int) (*RoadDataset, error) {
	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(ds.names) {
			return nil, fmt.Errorf("data: index %v out of range [0, %v)", idx, len(ds.names))
		}

		names = append(names, ds.names[idx])
	}

	return &RoadDataset{
		imageDir:  ds.imageDir,
		maskDir:   ds.maskDir,
		names:     names,
		augmenter: ds.augmenter,
	}, nil
}

// WithoutAugmenter returns the same dataset with augmentation disabled, so
// evaluation sees images as stored.
func (ds *RoadDataset) WithoutAugmenter() *RoadDataset {
	return &RoadDataset{
		imageDir: ds.imageDir,
		maskDir:  ds.maskDir,
		names:    ds.names,
	}
}

// Len implements dutil.Dataset.
func (ds *RoadDataset) Len() int {
	return len(ds.names)
}

// Item implements dutil.Dataset.
func (ds *RoadDataset) Item(idx int) (interface{}, error) {
	name := ds.names[idx]

	img, err := LoadImage(fmt.Sprintf("%v/%v", ds.imageDir, name))
	if err != nil {
		return nil, err
	}

	mask, err := LoadMask(fmt.Sprintf("%v/%v", ds.maskDir, name))
	if err != nil {
		img.MustDrop()
		return nil, err
	}

	if ds.augmenter == nil {
		return Sample{Image: *img, Mask: *mask}, nil
	}

	augImg, augMask, err := ds.augmenter.Transform(img, mask)
	img.MustDrop()
	mask.MustDrop()
	if err != nil {
		return nil, err
	}

	return Sample{Image: *augImg, Mask: *augMask}, nil
}

// DType implements dutil.Dataset.
func (ds *RoadDataset) DType() reflect.Type {
	return reflect.TypeOf(Sample{})
}

// StackSamples collates a loader batch into image and mask batch tensors.
// It takes ownership of the samples: their tensors are dropped once copied
// into the stacks.
func StackSamples(samples []Sample) (*ts.Tensor, *ts.Tensor) {
	var images, masks []ts.Tensor
	for _, sample := range samples {
		images = append(images, sample.Image)
		masks = append(masks, sample.Mask)
	}

	imgTs := ts.MustStack(images, 0)
	maskTs := ts.MustStack(masks, 0)

	for _, sample := range samples {
		sample.Image.MustDrop()
		sample.Mask.MustDrop()
	}

	return imgTs, maskTs
}
