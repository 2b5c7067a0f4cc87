package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Backbone is the feature-extraction contract consumed by the fusion module:
// one padded image batch in, three feature maps at strides 8, 16 and 32 out.
type Backbone interface {
	ForwardFeatures(x *ts.Tensor, train bool) (s8, s16, s32 *ts.Tensor)
	OutChannels() (c8, c16, c32 int64)
}
