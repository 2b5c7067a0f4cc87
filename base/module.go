package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dRelu creates a SequentialT composing of Conv2D no bias, batch norm
// and a ReLU activation. Bias is omitted as batch norm adds its own bias term.
func Conv2dRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
	seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, nn.DefaultBatchNormConfig()))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}

// SeparableConv2dRelu creates a separable (depthwise + pointwise) dilated
// convolution followed by batch norm and ReLU. Padding equals the dilation
// rate so the spatial size of a 3x3 kernel is preserved.
func SeparableConv2dRelu(p *nn.Path, cIn, cOut, dilation int64) *nn.SequentialT {
	depthwise := nn.DefaultConv2DConfig()
	depthwise.Bias = false
	depthwise.Stride = []int64{1, 1}
	depthwise.Padding = []int64{dilation, dilation}
	depthwise.Dilation = []int64{dilation, dilation}
	depthwise.Groups = cIn

	seq := nn.SeqT()
	seq.Add(nn.NewConv2D(p.Sub("depthwise"), cIn, cIn, 3, depthwise))
	seq.Add(Conv2dNoBias(p.Sub("pointwise"), cIn, cOut, 1, 0, 1))
	seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, nn.DefaultBatchNormConfig()))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}
