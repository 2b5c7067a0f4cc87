package head

import (
	"log"
	"math"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ContextEncoding aggregates a spatial feature map into a fixed-length
// per-sample descriptor via a learned codeword dictionary, then uses the
// descriptor to gate the feature channels. Each spatial vector is
// soft-assigned to the codewords by a softmax over negative scaled squared
// distances; the assignment-weighted residuals are aggregated per codeword
// and summed into the descriptor.
type ContextEncoding struct {
	codewords *ts.Tensor // [K C]
	smoothing *ts.Tensor // [K]
	fcGate    *nn.Linear
	fcSE      *nn.Linear
}

// NewContextEncoding creates a ContextEncoding with codewords many dictionary
// entries over channels-dimensional features. seFeatures is the length of the
// auxiliary encoding vector fed into the SE loss.
func NewContextEncoding(p *nn.Path, channels, codewords, seFeatures int64) *ContextEncoding {
	if channels <= 0 || codewords <= 0 || seFeatures <= 0 {
		log.Fatalf("ContextEncoding: channels, codewords and seFeatures must be positive. Got %v, %v, %v\n", channels, codewords, seFeatures)
	}

	bound := 1.0 / math.Sqrt(float64(codewords)*float64(channels))

	return &ContextEncoding{
		codewords: p.NewVar("codewords", []int64{codewords, channels}, nn.NewUniformInit(-bound, bound)),
		smoothing: p.NewVar("smoothing", []int64{codewords}, nn.NewUniformInit(0, 1)),
		fcGate:    nn.NewLinear(p.Sub("gate"), channels, channels, nn.DefaultLinearConfig()),
		fcSE:      nn.NewLinear(p.Sub("se"), channels, seFeatures, nn.DefaultLinearConfig()),
	}
}

// ForwardT returns the channel-gated feature map and the per-sample encoding
// vector [B seFeatures]. The encoding feeds the auxiliary loss only and never
// the primary prediction path.
func (e *ContextEncoding) ForwardT(x *ts.Tensor, train bool) (gated, seVec *ts.Tensor) {
	size := x.MustSize()
	if len(size) != 4 {
		log.Fatalf("ContextEncoding: expected 4D input [B C H W]. Got shape %v\n", size)
	}
	b, c := size[0], size[1]
	hw := size[2] * size[3]

	cwSize := e.codewords.MustSize()
	k := cwSize[0]

	// [B C H W] -> [B HW C]
	flat := x.MustView([]int64{b, c, hw}, false)
	spatial := flat.MustPermute([]int64{0, 2, 1}, true)

	// Residuals against every codeword: [B HW K C]
	xi := spatial.MustUnsqueeze(2, false)
	dict := e.codewords.MustView([]int64{1, 1, k, c}, false)
	residuals := xi.MustSub(dict, true)
	dict.MustDrop()

	// Soft assignment weights: softmax over codewords of -s_k * |r|^2
	sq := residuals.MustMul(residuals, false)
	dist := sq.MustSum1([]int64{3}, false, gotch.Float, true)
	scale := e.smoothing.MustView([]int64{1, 1, k}, false).MustNeg(true)
	scaled := dist.MustMul(scale, true)
	scale.MustDrop()
	weights := scaled.MustSoftmax(2, gotch.Float, true)

	// Aggregate weighted residuals over all positions: [B K C]
	wExp := weights.MustUnsqueeze(3, true)
	weighted := residuals.MustMul(wExp, true)
	wExp.MustDrop()
	perCodeword := weighted.MustSum1([]int64{1}, false, gotch.Float, true)

	// Per-sample descriptor: [B C]
	rectified := perCodeword.MustRelu(true)
	descriptor := rectified.MustSum1([]int64{1}, false, gotch.Float, true)

	// Channel gate from the descriptor
	gateVec := e.fcGate.Forward(descriptor)
	gate := gateVec.MustSigmoid(true).MustView([]int64{b, c, 1, 1}, true)
	gated = x.MustMul(gate, false)
	gate.MustDrop()

	seVec = e.fcSE.Forward(descriptor)
	descriptor.MustDrop()
	spatial.MustDrop()

	return gated, seVec
}
