package metric

import (
	"log"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// BCEWithLogitsLoss is the mean binary cross entropy between raw logits and
// a binary mask.
func BCEWithLogitsLoss(logit, mask *ts.Tensor) *ts.Tensor {
	logitR := logit.MustReshape([]int64{-1}, false)
	maskR := mask.MustReshape([]int64{-1}, false)

	// reduction: none = 0; mean = 1; sum = 2
	retVal := logitR.MustBinaryCrossEntropyWithLogits(maskR, ts.NewTensor(), ts.NewTensor(), 1, true)
	maskR.MustDrop()

	return retVal
}

// SoftDiceLoss is one minus the smoothed dice coefficient of probabilities
// against a binary mask, averaged over the batch.
func SoftDiceLoss(prob, mask *ts.Tensor) *ts.Tensor {
	dims := []int64{-2, -1}
	smooth := 1.0

	xyMul := prob.MustMul(mask, false)
	tp := xyMul.MustSum1(dims, false, gotch.Double, true)

	y1 := mask.MustAdd1(ts.FloatScalar(-1), false)
	xy1Mul := y1.MustMul(prob, true)
	fp := xy1Mul.MustSum1(dims, false, gotch.Double, true)

	x1 := prob.MustAdd1(ts.FloatScalar(-1), false)
	x1yMul := x1.MustMul(mask, true)
	fn := x1yMul.MustSum1(dims, false, gotch.Double, true)

	numerator := tp.MustMul1(ts.FloatScalar(2.0), false).MustAdd1(ts.FloatScalar(smooth), true)
	denominator := numerator.MustAdd(fp, false).MustAdd(fn, false)

	dc := numerator.MustDiv(denominator, true)

	tp.MustDrop()
	fp.MustDrop()
	fn.MustDrop()
	denominator.MustDrop()

	mean := dc.MustMean(gotch.Double, true)

	return mean.MustMul1(ts.FloatScalar(-1), true).MustAdd1(ts.FloatScalar(1), true)
}

// SegmentationLoss combines binary cross entropy and soft dice loss with a
// 0.8/0.2 weighting. Input logits are raw; the dice term is computed on
// sigmoid probabilities.
func SegmentationLoss(logit, mask *ts.Tensor) *ts.Tensor {
	bce := BCEWithLogitsLoss(logit, mask).MustMul1(ts.FloatScalar(0.8), true)
	prob := logit.MustSigmoid(false)
	dice := SoftDiceLoss(prob, mask).MustMul1(ts.FloatScalar(0.2), true)
	prob.MustDrop()

	retVal := bce.MustAdd(dice, true)
	dice.MustDrop()

	return retVal
}

// SELoss is the auxiliary semantic encoding loss. The target for each
// encoding feature is whether the mask contains any road pixel, so the
// context encoding module is pushed to predict global class presence.
func SELoss(seVec, mask *ts.Tensor) *ts.Tensor {
	size := seVec.MustSize()
	if len(size) != 2 {
		log.Fatalf("SELoss: expect encoding [B, F], got %v", size)
	}

	batch := mask.MustSize()[0]
	flat := mask.MustView([]int64{batch, -1}, false)
	counts := flat.MustSum1([]int64{1}, false, gotch.Double, true)
	presence := counts.MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Float, true)

	target := presence.MustView([]int64{batch, 1}, true).MustRepeat([]int64{1, size[1]}, true)
	loss := BCEWithLogitsLoss(seVec, target)
	target.MustDrop()

	return loss
}

// DiceCoeff thresholds probabilities at 0.5 and returns the smoothed dice
// coefficient against the binary target.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	iflat := pred.MustView([]int64{-1}, false)
	tflat := target.MustView([]int64{-1}, false)
	p := iflat.MustGt(ts.FloatScalar(0.5), true)
	t := tflat.MustGt(ts.FloatScalar(0.5), true)
	ptMul := p.MustMul(t, false)
	overlap := ptMul.MustSum(gotch.Double, true).Float64Values()[0]
	union := p.MustSum(gotch.Double, true).Float64Values()[0] + t.MustSum(gotch.Double, true).Float64Values()[0]

	return (2 * overlap) / (union + 0.001)
}

// IoU is the binary intersection over union after thresholding at 0.5.
func IoU(pred, target *ts.Tensor) float64 {
	pvals := pred.MustView([]int64{-1}, false).Float64Values()
	tvals := target.MustView([]int64{-1}, false).Float64Values()

	var overlap, union float64
	for i := range pvals {
		p := pvals[i] > 0.5
		t := tvals[i] > 0.5
		if p && t {
			overlap++
		}
		if p || t {
			union++
		}
	}

	if union == 0 {
		return 1
	}

	return overlap / union
}

// JaccardIndex is the intersection over union averaged over the given number
// of classes, treating each integer label as one class.
func JaccardIndex(pred, target *ts.Tensor, nclasses int64) float64 {
	pvals := pred.MustView([]int64{-1}, false).Float64Values()
	tvals := target.MustView([]int64{-1}, false).Float64Values()

	var total float64
	for c := int64(0); c < nclasses; c++ {
		var overlap, union float64
		for i := range pvals {
			p := int64(pvals[i]) == c
			t := int64(tvals[i]) == c
			if p && t {
				overlap++
			}
			if p || t {
				union++
			}
		}

		if union == 0 {
			total++
			continue
		}

		total += overlap / union
	}

	return total / float64(nclasses)
}

// Accuracy is the fraction of pixels classified correctly after thresholding
// both inputs at 0.5.
func Accuracy(pred, target *ts.Tensor) float64 {
	pvals := pred.MustView([]int64{-1}, false).Float64Values()
	tvals := target.MustView([]int64{-1}, false).Float64Values()

	var correct float64
	for i := range pvals {
		if (pvals[i] > 0.5) == (tvals[i] > 0.5) {
			correct++
		}
	}

	return correct / float64(len(pvals))
}
