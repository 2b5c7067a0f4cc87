package metric_test

import (
	"math"
	"testing"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/metric"
)

func fixturePair() (*ts.Tensor, *ts.Tensor) {
	pslice := []float32{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []float32{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred := ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target := ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)

	return pred, target
}

func TestDiceCoeff(t *testing.T) {
	pred, target := fixturePair()

	dice := metric.DiceCoeff(pred, target)
	if math.Abs(dice-0.8571) > 1e-3 {
		t.Errorf("want dice 0.8571, got %0.4f", dice)
	}
}

func TestIoU(t *testing.T) {
	pred, target := fixturePair()

	iou := metric.IoU(pred, target)
	if math.Abs(iou-0.75) > 1e-6 {
		t.Errorf("want IoU 0.7500, got %0.4f", iou)
	}
}

func TestJaccardIndex(t *testing.T) {
	pred, target := fixturePair()

	// class 1: 3/4, class 0: 5/6
	iou := metric.JaccardIndex(pred, target, 2)
	if math.Abs(iou-0.7917) > 1e-3 {
		t.Errorf("want mean IoU 0.7917, got %0.4f", iou)
	}
}

func TestAccuracy(t *testing.T) {
	pred, target := fixturePair()

	acc := metric.Accuracy(pred, target)
	if math.Abs(acc-8.0/9.0) > 1e-6 {
		t.Errorf("want accuracy %0.4f, got %0.4f", 8.0/9.0, acc)
	}
}

func TestSegmentationLossFinite(t *testing.T) {
	logit := ts.MustRand([]int64{2, 1, 8, 8}, gotch.Float, gotch.CPU)
	mask := ts.MustRand([]int64{2, 1, 8, 8}, gotch.Float, gotch.CPU).MustRound(true)

	loss := metric.SegmentationLoss(logit, mask)
	val := loss.Float64Values()[0]
	if math.IsNaN(val) || math.IsInf(val, 0) {
		t.Errorf("loss not finite: %v", val)
	}
	if val <= 0 {
		t.Errorf("want positive loss for random inputs, got %v", val)
	}

	logit.MustDrop()
	mask.MustDrop()
	loss.MustDrop()
}

func TestSELossPresenceTarget(t *testing.T) {
	// Strongly positive encodings with road pixels present should give a
	// small loss; the same encodings on an empty mask should not.
	seVec := ts.MustOfSlice([]float32{8, 8}).MustView([]int64{2, 1}, true)

	full := ts.MustOnes([]int64{2, 1, 4, 4}, gotch.Float, gotch.CPU)
	lossFull := metric.SELoss(seVec, full).Float64Values()[0]

	empty := ts.MustZeros([]int64{2, 1, 4, 4}, gotch.Float, gotch.CPU)
	lossEmpty := metric.SELoss(seVec, empty).Float64Values()[0]

	if lossFull >= lossEmpty {
		t.Errorf("want present-road loss %v below absent-road loss %v", lossFull, lossEmpty)
	}

	seVec.MustDrop()
	full.MustDrop()
	empty.MustDrop()
}
