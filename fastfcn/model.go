package fastfcn

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/base"
	"github.com/sugarme/roadseg/encoder"
	"github.com/sugarme/roadseg/head"
	"github.com/sugarme/roadseg/jpu"
)

// PadStride is the stride every model input is reflection-padded to before
// entering the backbone.
const PadStride int64 = 32

// OutputStride is the stride of the logits relative to the unpadded input.
const OutputStride int64 = 8

// Config carries the construction parameters shared by all model variants.
type Config struct {
	BackboneBlocks [4]int64
	JPUFeatures    int64
	HeadFeatures   int64
	DropoutRate    float64
	Codewords      int64
	SELossFeatures int64
}

// DefaultConfig returns the baseline configuration: 50-layer backbone,
// 512 JPU features, 512 head features.
func DefaultConfig() Config {
	return Config{
		BackboneBlocks: [4]int64{3, 4, 6, 3},
		JPUFeatures:    512,
		HeadFeatures:   512,
		DropoutRate:    0.1,
		Codewords:      32,
		SELossFeatures: 1,
	}
}

func (c Config) validate() {
	if c.JPUFeatures <= 0 || c.HeadFeatures <= 0 {
		log.Fatalf("fastfcn: feature counts must be positive. Got jpu=%v head=%v\n", c.JPUFeatures, c.HeadFeatures)
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		log.Fatalf("fastfcn: dropout rate must be in [0,1). Got %v\n", c.DropoutRate)
	}
}

// FastFCN is the full context-encoding model: reflection padding, ResNet
// backbone, JPU fusion, encoder head, center crop back to input/8. The
// forward pass additionally returns the per-sample encoding for the SE loss.
type FastFCN struct {
	backbone *encoder.ResNetBackbone
	fuse     *jpu.JPU
	head     *head.EncoderHead
}

// NewFastFCN creates a FastFCN from the given configuration.
func NewFastFCN(p *nn.Path, cfg Config) *FastFCN {
	cfg.validate()

	backbone := encoder.NewResNetBackbone(p.Sub("backbone"), cfg.BackboneBlocks)
	c8, c16, c32 := backbone.OutChannels()
	fuse := jpu.NewJPU(p.Sub("jpu"), c8, c16, c32, cfg.JPUFeatures)

	return &FastFCN{
		backbone: backbone,
		fuse:     fuse,
		head: head.NewEncoderHead(
			p.Sub("head"), fuse.OutChannels(), cfg.HeadFeatures,
			cfg.Codewords, cfg.SELossFeatures, cfg.DropoutRate,
		),
	}
}

// ForwardT returns logits [B 1 H/8 W/8] and the SE-loss encoding vector.
func (m *FastFCN) ForwardT(x *ts.Tensor, train bool) (logits, seVec *ts.Tensor) {
	size := x.MustSize()
	padded := base.PadToStride(x, PadStride)

	s8, s16, s32 := m.backbone.ForwardFeatures(padded, train)
	padded.MustDrop()
	fused := m.fuse.ForwardT(s8, s16, s32, train)
	dropFeatures(s8, s16, s32)

	raw, seVec := m.head.ForwardT(fused, train)
	fused.MustDrop()

	logits = base.CenterCropOrPad(raw, size[2]/OutputStride, size[3]/OutputStride)
	raw.MustDrop()

	return logits, seVec
}

// FastFCNNoContext is the model with the context-encoding branch disabled.
type FastFCNNoContext struct {
	backbone *encoder.ResNetBackbone
	fuse     *jpu.JPU
	head     *head.FCNHeadNoContext
}

// NewFastFCNNoContext creates a FastFCNNoContext from the given configuration.
func NewFastFCNNoContext(p *nn.Path, cfg Config) *FastFCNNoContext {
	cfg.validate()

	backbone := encoder.NewResNetBackbone(p.Sub("backbone"), cfg.BackboneBlocks)
	c8, c16, c32 := backbone.OutChannels()
	fuse := jpu.NewJPU(p.Sub("jpu"), c8, c16, c32, cfg.JPUFeatures)

	return &FastFCNNoContext{
		backbone: backbone,
		fuse:     fuse,
		head:     head.NewFCNHeadNoContext(p.Sub("head"), fuse.OutChannels(), cfg.HeadFeatures, cfg.DropoutRate),
	}
}

// ForwardT implements ts.ModuleT for FastFCNNoContext.
func (m *FastFCNNoContext) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	size := x.MustSize()
	padded := base.PadToStride(x, PadStride)

	s8, s16, s32 := m.backbone.ForwardFeatures(padded, train)
	padded.MustDrop()
	fused := m.fuse.ForwardT(s8, s16, s32, train)
	dropFeatures(s8, s16, s32)

	raw := m.head.ForwardT(fused, train)
	fused.MustDrop()

	logits := base.CenterCropOrPad(raw, size[2]/OutputStride, size[3]/OutputStride)
	raw.MustDrop()

	return logits
}

// TestFastFCN is an experimental variant using the plain FCN head and a
// direct 8x upsampling of the stride-8 head output back to full input
// resolution. It bypasses the resolution-aware output handling of the fused
// models and is kept as a non-default path only.
type TestFastFCN struct {
	backbone *encoder.ResNetBackbone
	fuse     *jpu.JPU
	head     *head.FCNHead
}

// NewTestFastFCN creates a TestFastFCN from the given configuration.
func NewTestFastFCN(p *nn.Path, cfg Config) *TestFastFCN {
	cfg.validate()

	backbone := encoder.NewResNetBackbone(p.Sub("backbone"), cfg.BackboneBlocks)
	c8, c16, c32 := backbone.OutChannels()
	fuse := jpu.NewJPU(p.Sub("jpu"), c8, c16, c32, cfg.JPUFeatures)

	return &TestFastFCN{
		backbone: backbone,
		fuse:     fuse,
		head:     head.NewFCNHead(p.Sub("head"), fuse.OutChannels(), cfg.HeadFeatures, cfg.DropoutRate),
	}
}

// ForwardT implements ts.ModuleT for TestFastFCN. Output logits are at full
// input resolution.
func (m *TestFastFCN) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	size := x.MustSize()
	padded := base.PadToStride(x, PadStride)

	s8, s16, s32 := m.backbone.ForwardFeatures(padded, train)
	padded.MustDrop()
	fused := m.fuse.ForwardT(s8, s16, s32, train)
	dropFeatures(s8, s16, s32)

	raw := m.head.ForwardT(fused, train)
	fused.MustDrop()

	rawSize := raw.MustSize()
	up := raw.MustUpsampleNearest2d([]int64{rawSize[2] * OutputStride, rawSize[3] * OutputStride}, nil, nil, true)
	logits := base.CenterCropOrPad(up, size[2], size[3])
	up.MustDrop()

	return logits
}

func dropFeatures(features ...*ts.Tensor) {
	for _, f := range features {
		f.MustDrop()
	}
}
