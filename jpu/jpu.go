package jpu

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/base"
)

// DilationRates are the dilation rates of the four parallel separable
// convolution branches.
var DilationRates = [4]int64{1, 2, 4, 8}

// JPU is a Joint Pyramid Upsampling module. It fuses backbone feature maps at
// strides 8, 16 and 32 into a single stride-8 map: per-resolution convolution
// blocks, bilinear upsampling to the stride-8 size, channel concatenation and
// four parallel dilated separable convolutions whose outputs are concatenated
// again. The receptive field grows with the dilation rates while the output
// keeps the stride-8 resolution.
type JPU struct {
	input8   *nn.SequentialT
	input16  *nn.SequentialT
	input32  *nn.SequentialT
	branches [4]*nn.SequentialT
	features int64
}

// NewJPU creates a JPU transforming inputs with c8/c16/c32 channels into a
// fused map of features channels per branch (4*features total).
func NewJPU(p *nn.Path, c8, c16, c32, features int64) *JPU {
	if features <= 0 {
		log.Fatalf("JPU: feature count must be positive. Got %v\n", features)
	}

	m := &JPU{
		input8:   base.Conv2dRelu(p.Sub("input8"), c8, features, 3, 1, 1),
		input16:  base.Conv2dRelu(p.Sub("input16"), c16, features, 3, 1, 1),
		input32:  base.Conv2dRelu(p.Sub("input32"), c32, features, 3, 1, 1),
		features: features,
	}
	for i, rate := range DilationRates {
		m.branches[i] = base.SeparableConv2dRelu(p.Sub("dilation").Sub(fmt.Sprint(rate)), 3*features, features, rate)
	}

	return m
}

// OutChannels returns the channel count of the fused output map.
func (m *JPU) OutChannels() int64 {
	return int64(len(m.branches)) * m.features
}

// ForwardT fuses the three feature maps. All inputs must share the batch size
// and their spatial sizes must relate by factors of exactly 2 and 4.
func (m *JPU) ForwardT(s8, s16, s32 *ts.Tensor, train bool) *ts.Tensor {
	size8 := s8.MustSize()

	f8 := m.input8.ForwardT(s8, train)
	f16 := m.input16.ForwardT(s16, train)
	f32 := m.input32.ForwardT(s32, train)

	up16 := f16.MustUpsampleBilinear2d(size8[2:], false, nil, nil, true)
	up32 := f32.MustUpsampleBilinear2d(size8[2:], false, nil, nil, true)

	cat := ts.MustCat([]ts.Tensor{*f8, *up16, *up32}, 1)
	f8.MustDrop()
	up16.MustDrop()
	up32.MustDrop()

	outs := make([]ts.Tensor, 0, len(m.branches))
	for _, branch := range m.branches {
		o := branch.ForwardT(cat, train)
		outs = append(outs, *o)
	}
	cat.MustDrop()

	fused := ts.MustCat(outs, 1)
	for _, o := range outs {
		o.MustDrop()
	}

	return fused
}
