package head

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/base"
)

func validateHeadConfig(cIn, intermediate int64, dropout float64) {
	if cIn <= 0 || intermediate <= 0 {
		log.Fatalf("segmentation head: channel counts must be positive. Got cIn=%v intermediate=%v\n", cIn, intermediate)
	}
	if dropout < 0 || dropout >= 1 {
		log.Fatalf("segmentation head: dropout rate must be in [0,1). Got %v\n", dropout)
	}
}

// FCNHead maps a stride-8 feature map to stride-8 logits: 1x1 channel
// compression, a 3x3 combination convolution, spatial dropout and a 1x1
// convolution to single-channel logits.
type FCNHead struct {
	compress *nn.SequentialT
	combine  *nn.SequentialT
	out      *nn.Conv2D
	dropout  float64
}

// NewFCNHead creates an FCNHead.
func NewFCNHead(p *nn.Path, cIn, intermediate int64, dropout float64) *FCNHead {
	validateHeadConfig(cIn, intermediate, dropout)

	return &FCNHead{
		compress: base.Conv2dRelu(p.Sub("compress"), cIn, intermediate, 1, 0, 1),
		combine:  base.Conv2dRelu(p.Sub("combine"), intermediate, intermediate, 3, 1, 1),
		out:      base.Conv2d(p.Sub("out"), intermediate, 1, 1, 0, 1),
		dropout:  dropout,
	}
}

// ForwardT implements ts.ModuleT for FCNHead.
func (h *FCNHead) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c := h.compress.ForwardT(x, train)
	m := h.combine.ForwardT(c, train)
	c.MustDrop()
	d := m.MustFeatureDropout(h.dropout, train, true)
	logits := h.out.ForwardT(d, train)
	d.MustDrop()

	return logits
}

// FCNHeadNoContext is the FCNHead without the 3x3 combination step. It is
// used when the context-encoding branch is disabled.
type FCNHeadNoContext struct {
	compress *nn.SequentialT
	out      *nn.Conv2D
	dropout  float64
}

// NewFCNHeadNoContext creates an FCNHeadNoContext.
func NewFCNHeadNoContext(p *nn.Path, cIn, intermediate int64, dropout float64) *FCNHeadNoContext {
	validateHeadConfig(cIn, intermediate, dropout)

	return &FCNHeadNoContext{
		compress: base.Conv2dRelu(p.Sub("compress"), cIn, intermediate, 1, 0, 1),
		out:      base.Conv2d(p.Sub("out"), intermediate, 1, 1, 0, 1),
		dropout:  dropout,
	}
}

// ForwardT implements ts.ModuleT for FCNHeadNoContext.
func (h *FCNHeadNoContext) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c := h.compress.ForwardT(x, train)
	d := c.MustFeatureDropout(h.dropout, train, true)
	logits := h.out.ForwardT(d, train)
	d.MustDrop()

	return logits
}

// EncoderHead compresses the fused features, applies a context-encoding
// module and produces logits. It additionally returns the per-sample encoding
// used by the auxiliary SE loss.
type EncoderHead struct {
	compress *nn.SequentialT
	encoding *ContextEncoding
	out      *nn.Conv2D
	dropout  float64
}

// NewEncoderHead creates an EncoderHead with the given number of codewords
// and SE-loss features.
func NewEncoderHead(p *nn.Path, cIn, intermediate, codewords, seFeatures int64, dropout float64) *EncoderHead {
	validateHeadConfig(cIn, intermediate, dropout)

	return &EncoderHead{
		compress: base.Conv2dRelu(p.Sub("compress"), cIn, intermediate, 1, 0, 1),
		encoding: NewContextEncoding(p.Sub("encoding"), intermediate, codewords, seFeatures),
		out:      base.Conv2d(p.Sub("out"), intermediate, 1, 1, 0, 1),
		dropout:  dropout,
	}
}

// ForwardT returns stride-8 logits and the per-sample SE-loss encoding
// vector of shape [B seFeatures].
func (h *EncoderHead) ForwardT(x *ts.Tensor, train bool) (logits, seVec *ts.Tensor) {
	c := h.compress.ForwardT(x, train)
	gated, seVec := h.encoding.ForwardT(c, train)
	c.MustDrop()
	d := gated.MustFeatureDropout(h.dropout, train, true)
	logits = h.out.ForwardT(d, train)
	d.MustDrop()

	return logits, seVec
}
