package encoder

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/base"
)

// BottleneckExpansion is the channel expansion factor of the last convolution
// in a bottleneck block.
const BottleneckExpansion int64 = 4

// ResNetBackbone is a residual feature extractor producing feature maps at
// output strides 8, 16 and 32. The stem (7x7 stride-2 convolution followed by
// a 2x2 max-pool) realizes stride 4; the first residual stage keeps that
// stride and every later stage halves the resolution at its first block.
type ResNetBackbone struct {
	stem   *nn.SequentialT
	layer1 *nn.SequentialT
	layer2 *nn.SequentialT
	layer3 *nn.SequentialT
	layer4 *nn.SequentialT
}

// NewResNetBackbone creates a backbone from per-stage bottleneck block counts.
// Named presets (NewResNet50Backbone, NewResNet101Backbone) only differ in
// those counts.
func NewResNetBackbone(p *nn.Path, blocks [4]int64) *ResNetBackbone {
	for i, cnt := range blocks {
		if cnt < 1 {
			log.Fatalf("ResNetBackbone: stage %v requires at least one block. Got %v\n", i, cnt)
		}
	}

	return &ResNetBackbone{
		stem:   stem(p),
		layer1: residualLayer(p.Sub("layer1"), 64, 64, 1, blocks[0]),
		layer2: residualLayer(p.Sub("layer2"), 64*BottleneckExpansion, 128, 2, blocks[1]),
		layer3: residualLayer(p.Sub("layer3"), 128*BottleneckExpansion, 256, 2, blocks[2]),
		layer4: residualLayer(p.Sub("layer4"), 256*BottleneckExpansion, 512, 2, blocks[3]),
	}
}

// NewResNet50Backbone creates a 50-layer backbone.
func NewResNet50Backbone(p *nn.Path) *ResNetBackbone {
	return NewResNetBackbone(p, [4]int64{3, 4, 6, 3})
}

// NewResNet101Backbone creates a 101-layer backbone.
func NewResNet101Backbone(p *nn.Path) *ResNetBackbone {
	return NewResNetBackbone(p, [4]int64{3, 4, 23, 3})
}

// OutChannels returns the channel counts of the stride-8, -16 and -32 feature
// maps.
func (b *ResNetBackbone) OutChannels() (c8, c16, c32 int64) {
	return 128 * BottleneckExpansion, 256 * BottleneckExpansion, 512 * BottleneckExpansion
}

// ForwardFeatures runs the backbone and returns the stride-8, stride-16 and
// stride-32 feature maps. The stride-4 stem features are internal only.
// Input must be a [B 3 H W] tensor with H and W multiples of 32.
func (b *ResNetBackbone) ForwardFeatures(x *ts.Tensor, train bool) (s8, s16, s32 *ts.Tensor) {
	size := x.MustSize()
	if len(size) != 4 || size[1] != 3 {
		log.Fatalf("ResNetBackbone: expected input [B 3 H W]. Got shape %v\n", size)
	}
	if size[2]%32 != 0 || size[3]%32 != 0 {
		log.Fatalf("ResNetBackbone: input spatial size must be a multiple of 32. Got %v x %v\n", size[2], size[3])
	}

	x0 := b.stem.ForwardT(x, train)
	x1 := b.layer1.ForwardT(x0, train)
	x0.MustDrop()
	s8 = b.layer2.ForwardT(x1, train)
	x1.MustDrop()
	s16 = b.layer3.ForwardT(s8, train)
	s32 = b.layer4.ForwardT(s16, train)

	return s8, s16, s32
}

func stem(p *nn.Path) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(base.Conv2dNoBias(p.Sub("conv1"), 3, 64, 7, 3, 2))
	seq.Add(nn.BatchNorm2D(p.Sub("bn1"), 64, nn.DefaultBatchNormConfig()))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
	}))

	return seq
}

func residualLayer(p *nn.Path, cIn, width, stride, cnt int64) *nn.SequentialT {
	layer := nn.SeqT()
	layer.Add(NewBottleneckBlock(p.Sub("0"), cIn, width, stride))
	for blockIndex := int64(1); blockIndex < cnt; blockIndex++ {
		layer.Add(NewBottleneckBlock(p.Sub(fmt.Sprint(blockIndex)), width*BottleneckExpansion, width, 1))
	}

	return layer
}

func projection(p *nn.Path, cIn, cOut, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	if stride != 1 || cIn != cOut {
		seq.Add(base.Conv2dNoBias(p.Sub("0"), cIn, cOut, 1, 0, stride))
		seq.Add(nn.BatchNorm2D(p.Sub("1"), cOut, nn.DefaultBatchNormConfig()))
	}

	return seq
}

// BottleneckBlock is a residual unit of 1x1 reduce, 3x3 process and 1x1
// expand convolutions plus a (possibly projected) shortcut.
type BottleneckBlock struct {
	Conv1    *nn.Conv2D
	Bn1      *nn.BatchNorm
	Conv2    *nn.Conv2D
	Bn2      *nn.BatchNorm
	Conv3    *nn.Conv2D
	Bn3      *nn.BatchNorm
	Shortcut *nn.SequentialT
}

// NewBottleneckBlock creates a BottleneckBlock. A stride of 2 makes this
// block perform its stage's downsampling in the first 1x1 convolution.
func NewBottleneckBlock(p *nn.Path, cIn, width, stride int64) *BottleneckBlock {
	cOut := width * BottleneckExpansion

	return &BottleneckBlock{
		Conv1:    base.Conv2dNoBias(p.Sub("conv1"), cIn, width, 1, 0, stride),
		Bn1:      nn.BatchNorm2D(p.Sub("bn1"), width, nn.DefaultBatchNormConfig()),
		Conv2:    base.Conv2dNoBias(p.Sub("conv2"), width, width, 3, 1, 1),
		Bn2:      nn.BatchNorm2D(p.Sub("bn2"), width, nn.DefaultBatchNormConfig()),
		Conv3:    base.Conv2dNoBias(p.Sub("conv3"), width, cOut, 1, 0, 1),
		Bn3:      nn.BatchNorm2D(p.Sub("bn3"), cOut, nn.DefaultBatchNormConfig()),
		Shortcut: projection(p.Sub("downsample"), cIn, cOut, stride),
	}
}

// ForwardT implements ts.ModuleT for BottleneckBlock. There is no
// rectification between the last batch norm and the residual add.
func (bb *BottleneckBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := bb.Conv1.ForwardT(x, train)
	bn1 := bb.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	r1 := bn1.MustRelu(true)
	c2 := bb.Conv2.ForwardT(r1, train)
	r1.MustDrop()
	bn2 := bb.Bn2.ForwardT(c2, train)
	c2.MustDrop()
	r2 := bn2.MustRelu(true)
	c3 := bb.Conv3.ForwardT(r2, train)
	r2.MustDrop()
	bn3 := bb.Bn3.ForwardT(c3, train)
	c3.MustDrop()
	short := bb.Shortcut.ForwardT(x, train)
	sum := short.MustAdd(bn3, true)
	bn3.MustDrop()
	res := sum.MustRelu(true)

	return res
}
