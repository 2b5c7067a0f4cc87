package experiment

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// PatchSize is the side length of the square grid cells the predicted mask
// is quantized into for submission.
const PatchSize int64 = 16

// PatchPredictions converts a logits tensor [1, H, W] or [H, W] into a
// patch-level binary prediction grid of shape H*s/PatchSize x W*s/PatchSize,
// where s is the output stride the logits were produced at relative to the
// original image. A patch is road when at least half of its thresholded
// pixels are road.
func PatchPredictions(logits *ts.Tensor, outputStride int64) ([][]int, error) {
	size := logits.MustSize()
	if len(size) == 3 && size[0] == 1 {
		size = size[1:]
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("experiment: expect single-channel logits, got shape %v", logits.MustSize())
	}

	if outputStride <= 0 || PatchSize%outputStride != 0 && outputStride%PatchSize != 0 {
		return nil, fmt.Errorf("experiment: output stride %v incompatible with patch size %v", outputStride, PatchSize)
	}

	fullH := size[0] * outputStride
	fullW := size[1] * outputStride
	if fullH%PatchSize != 0 || fullW%PatchSize != 0 {
		return nil, fmt.Errorf("experiment: prediction covers %vx%v pixels, not a multiple of patch size %v", fullH, fullW, PatchSize)
	}

	patchH := fullH / PatchSize
	patchW := fullW / PatchSize

	binary := logits.MustView([]int64{1, 1, size[0], size[1]}, false).
		MustGe(ts.FloatScalar(0), true).
		MustTotype(gotch.Float, true)
	pooled := binary.MustAdaptiveAvgPool2d([]int64{patchH, patchW}, true)
	vals := pooled.Float64Values()
	pooled.MustDrop()

	grid := make([][]int, patchH)
	for y := int64(0); y < patchH; y++ {
		row := make([]int, patchW)
		for x := int64(0); x < patchW; x++ {
			if vals[y*patchW+x] >= 0.5 {
				row[x] = 1
			}
		}

		grid[y] = row
	}

	return grid, nil
}

// WriteSubmission writes patch predictions for all samples as a submission
// CSV with header Id,Prediction. Row ids are `{sample_id:03d}_{x}_{y}` with
// x and y the pixel offsets of each patch's top-left corner.
func WriteSubmission(path string, predictions map[int][][]int) error {
	records := [][]string{{"Id", "Prediction"}}

	sampleIDs := make([]int, 0, len(predictions))
	for id := range predictions {
		sampleIDs = append(sampleIDs, id)
	}
	sort.Ints(sampleIDs)

	for _, sampleID := range sampleIDs {
		grid := predictions[sampleID]
		for patchY, row := range grid {
			for patchX, label := range row {
				if label != 0 && label != 1 {
					return fmt.Errorf("experiment: prediction for sample %v must be binary, got %v", sampleID, label)
				}

				id := fmt.Sprintf("%03d_%d_%d", sampleID, int64(patchX)*PatchSize, int64(patchY)*PatchSize)
				records = append(records, []string{id, fmt.Sprint(label)})
			}
		}
	}

	df := dataframe.LoadRecords(records)
	if df.Err != nil {
		return df.Err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return df.WriteCSV(f)
}
