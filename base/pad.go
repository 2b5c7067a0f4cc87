package base

import (
	"log"

	ts "github.com/sugarme/gotch/tensor"
)

// PadToStride pads an image batch [B C H W] with reflected border content so
// that both spatial dimensions become multiples of stride. Dimensions that are
// already aligned receive no padding. When the required padding for a
// dimension is odd, the extra pixel goes after the feature map; this tie-break
// determines the pixel alignment of the later crop and must not change.
func PadToStride(x *ts.Tensor, stride int64) *ts.Tensor {
	size := x.MustSize()
	if len(size) != 4 {
		log.Fatalf("PadToStride: expected 4D tensor [B C H W]. Got shape %v\n", size)
	}
	if stride <= 0 {
		log.Fatalf("PadToStride: stride must be positive. Got %v\n", stride)
	}

	h, w := size[2], size[3]
	padH := (stride - h%stride) % stride
	padW := (stride - w%stride) % stride

	if padH == 0 && padW == 0 {
		return x.MustShallowClone()
	}

	top := padH / 2
	bottom := padH - top
	left := padW / 2
	right := padW - left

	// reflection_pad2d takes (left, right, top, bottom)
	return x.MustReflectionPad2d([]int64{left, right, top, bottom}, false)
}

// CenterCropOrPad crops or reflection-pads a batch [B C H W] to the target
// spatial size. Surplus is trimmed equally from both sides; an odd surplus
// loses the extra pixel at the trailing edge. A deficit is padded with the
// same odd tie-break as PadToStride.
func CenterCropOrPad(x *ts.Tensor, height, width int64) *ts.Tensor {
	size := x.MustSize()
	if len(size) != 4 {
		log.Fatalf("CenterCropOrPad: expected 4D tensor [B C H W]. Got shape %v\n", size)
	}
	if height <= 0 || width <= 0 {
		log.Fatalf("CenterCropOrPad: target size must be positive. Got %v x %v\n", height, width)
	}

	out := x.MustShallowClone()

	h, w := size[2], size[3]
	if h > height {
		cropped := out.MustNarrow(2, (h-height)/2, height, false)
		out.MustDrop()
		out = cropped
	}
	if w > width {
		cropped := out.MustNarrow(3, (w-width)/2, width, false)
		out.MustDrop()
		out = cropped
	}

	var top, bottom, left, right int64
	if h < height {
		top = (height - h) / 2
		bottom = (height - h) - top
	}
	if w < width {
		left = (width - w) / 2
		right = (width - w) - left
	}
	if top > 0 || bottom > 0 || left > 0 || right > 0 {
		padded := out.MustReflectionPad2d([]int64{left, right, top, bottom}, false)
		out.MustDrop()
		out = padded
	}

	return out
}
