package aug

import (
	"log"
	"math"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// D65 reference white in the XYZ colour space.
const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

// ConvertRGBToLab converts an sRGB image tensor [3, H, W] with channel
// values in [0, 1] into a rescaled CIE Lab tensor of the same shape. The
// lightness channel is divided by 100 so it lies in [0, 1]; both chroma
// channels are divided by 128 so they lie in [-1, 1).
func ConvertRGBToLab(img *ts.Tensor) *ts.Tensor {
	size := img.MustSize()
	if len(size) != 3 || size[0] != 3 {
		log.Fatalf("ConvertRGBToLab: expect [3, H, W] input, got %v", size)
	}

	h := size[1]
	w := size[2]
	n := h * w

	flat := img.MustView([]int64{3, n}, false)
	vals := flat.Float64Values()
	flat.MustDrop()

	out := make([]float64, 3*n)
	for i := int64(0); i < n; i++ {
		r := srgbToLinear(vals[i])
		g := srgbToLinear(vals[n+i])
		b := srgbToLinear(vals[2*n+i])

		// Linear RGB to XYZ (D65).
		x := 0.4124564*r + 0.3575761*g + 0.1804375*b
		y := 0.2126729*r + 0.7151522*g + 0.0721750*b
		z := 0.0193339*r + 0.1191920*g + 0.9503041*b

		fx := labF(x / whiteX)
		fy := labF(y / whiteY)
		fz := labF(z / whiteZ)

		out[i] = (116*fy - 16) / 100
		out[n+i] = 500 * (fx - fy) / 128
		out[2*n+i] = 200 * (fy - fz) / 128
	}

	lab := ts.MustOfSlice(out)
	shaped := lab.MustView([]int64{3, h, w}, true)
	converted := shaped.MustTotype(gotch.Float, true)

	return converted
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}

	return math.Pow((c+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}

	return t/(3*delta*delta) + 4.0/29.0
}
