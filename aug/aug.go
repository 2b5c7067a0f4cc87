package aug

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	ts "github.com/sugarme/gotch/tensor"
)

// Config holds the stochastic training augmentation parameters.
type Config struct {
	// BlurProbability is the chance of applying a Gaussian blur to the image.
	BlurProbability float64
	// BlurKernelSize is the side length of the blur kernel. Must be odd.
	BlurKernelSize int64
	// Blur sigma is drawn uniformly from [BlurSigmaMin, BlurSigmaMax).
	BlurSigmaMin float64
	BlurSigmaMax float64
	// MaxRelativeScaling bounds the joint rescaling factor, drawn uniformly
	// from [1 - MaxRelativeScaling, 1 + MaxRelativeScaling).
	MaxRelativeScaling float64
	// CropSize is the side length of the random square crop.
	CropSize int64
}

// DefaultConfig returns the augmentation parameters used for training.
func DefaultConfig() Config {
	return Config{
		BlurProbability:    0.5,
		BlurKernelSize:     5,
		BlurSigmaMin:       0.5,
		BlurSigmaMax:       1.0,
		MaxRelativeScaling: 0.04,
		CropSize:           384,
	}
}

func (c Config) validate() {
	if c.BlurProbability < 0 || c.BlurProbability > 1 {
		log.Fatalf("aug: blur probability must be in [0, 1], got %v", c.BlurProbability)
	}

	if c.BlurKernelSize <= 0 || c.BlurKernelSize%2 == 0 {
		log.Fatalf("aug: blur kernel size must be odd and positive, got %v", c.BlurKernelSize)
	}

	if c.BlurSigmaMin <= 0 || c.BlurSigmaMax < c.BlurSigmaMin {
		log.Fatalf("aug: invalid blur sigma range [%v, %v)", c.BlurSigmaMin, c.BlurSigmaMax)
	}

	if c.MaxRelativeScaling < 0 || c.MaxRelativeScaling >= 1 {
		log.Fatalf("aug: max relative scaling must be in [0, 1), got %v", c.MaxRelativeScaling)
	}

	if c.CropSize <= 0 {
		log.Fatalf("aug: crop size must be positive, got %v", c.CropSize)
	}
}

// Augmenter applies the training-time augmentation pipeline to image and
// mask pairs. All randomness is drawn from a single injected source so runs
// are reproducible given a seed.
type Augmenter struct {
	config Config
	rng    *rand.Rand
}

// NewAugmenter creates an Augmenter with the given configuration and random
// source.
func NewAugmenter(config Config, rng *rand.Rand) *Augmenter {
	config.validate()

	if rng == nil {
		log.Fatal("aug: random source must not be nil")
	}

	return &Augmenter{config: config, rng: rng}
}

// Transform augments an image tensor [3, H, W] with values in [0, 1] and its
// mask [1, H, W] with values in {0, 1}. The steps are: optional Gaussian
// blur of the image, joint random rescaling, random horizontal flip and
// right-angle rotation, random square crop, mask re-binarisation, and as the
// last step conversion of the image from RGB to rescaled CIE Lab. It returns
// the augmented image [3, crop, crop] and mask [1, crop, crop].
func (a *Augmenter) Transform(img, mask *ts.Tensor) (*ts.Tensor, *ts.Tensor, error) {
	imgSize := img.MustSize()
	maskSize := mask.MustSize()
	if len(imgSize) != 3 || imgSize[0] != 3 {
		log.Fatalf("aug: expect image [3, H, W], got %v", imgSize)
	}

	if len(maskSize) != 3 || maskSize[0] != 1 || maskSize[1] != imgSize[1] || maskSize[2] != imgSize[2] {
		log.Fatalf("aug: expect mask [1, %v, %v], got %v", imgSize[1], imgSize[2], maskSize)
	}

	var blurred *ts.Tensor
	if a.rng.Float64() < a.config.BlurProbability {
		sigma := a.config.BlurSigmaMin + a.rng.Float64()*(a.config.BlurSigmaMax-a.config.BlurSigmaMin)
		blurred = a.blur(img, sigma)
	} else {
		blurred = img.MustShallowClone()
	}

	factor := 1 - a.config.MaxRelativeScaling + a.rng.Float64()*2*a.config.MaxRelativeScaling
	scaledImg, scaledMask := rescale(blurred, mask, factor)
	blurred.MustDrop()

	combined := ts.MustCat([]ts.Tensor{*scaledImg, *scaledMask}, 0)
	scaledImg.MustDrop()
	scaledMask.MustDrop()

	if a.rng.Float64() < 0.5 {
		combined = combined.MustFlip([]int64{2}, true)
	}

	if k := int64(a.rng.Intn(4)); k > 0 {
		combined = combined.MustRot90(k, []int64{1, 2}, true)
	}

	cropped, err := a.randomCrop(combined)
	combined.MustDrop()
	if err != nil {
		return nil, nil, err
	}

	outImg := cropped.MustNarrow(0, 0, 3, false)
	outMask := cropped.MustNarrow(0, 3, 1, false).MustRound(true)
	cropped.MustDrop()

	labImg := ConvertRGBToLab(outImg)
	outImg.MustDrop()

	return labImg, outMask, nil
}

// blur applies a depthwise Gaussian convolution on the reflection-padded
// image, so the output keeps the input resolution.
func (a *Augmenter) blur(img *ts.Tensor, sigma float64) *ts.Tensor {
	k := a.config.BlurKernelSize
	weight := gaussianKernel(k, sigma)
	pad := k / 2

	batched := img.MustUnsqueeze(0, false)
	padded := batched.MustReflectionPad2d([]int64{pad, pad, pad, pad}, true)
	conved := padded.MustConv2d(weight, ts.NewTensor(), []int64{1, 1}, []int64{0, 0}, []int64{1, 1}, 3, true)
	weight.MustDrop()

	clipped := conved.MustClip(ts.FloatScalar(0), ts.FloatScalar(1), true)

	return clipped.MustSqueeze1(0, true)
}

// gaussianKernel builds a normalised depthwise convolution weight
// [3, 1, k, k] for the given standard deviation.
func gaussianKernel(k int64, sigma float64) *ts.Tensor {
	vals := make([]float32, k*k)
	centre := float64(k / 2)
	sum := 0.0
	for y := int64(0); y < k; y++ {
		for x := int64(0); x < k; x++ {
			d2 := math.Pow(float64(y)-centre, 2) + math.Pow(float64(x)-centre, 2)
			v := math.Exp(-d2 / (2 * sigma * sigma))
			vals[y*k+x] = float32(v)
			sum += v
		}
	}

	for i := range vals {
		vals[i] = float32(float64(vals[i]) / sum)
	}

	kernel := ts.MustOfSlice(vals)
	shaped := kernel.MustView([]int64{1, 1, k, k}, true)

	return shaped.MustRepeat([]int64{3, 1, 1, 1}, true)
}

// rescale resizes image and mask jointly by the given factor. The image is
// interpolated bilinearly while the mask uses nearest neighbour so label
// values stay binary.
func rescale(img, mask *ts.Tensor, factor float64) (*ts.Tensor, *ts.Tensor) {
	size := img.MustSize()
	newH := int64(math.Round(float64(size[1]) * factor))
	newW := int64(math.Round(float64(size[2]) * factor))

	if newH == size[1] && newW == size[2] {
		return img.MustShallowClone(), mask.MustShallowClone()
	}

	imgBatched := img.MustUnsqueeze(0, false)
	scaledImg := imgBatched.MustUpsampleBilinear2d([]int64{newH, newW}, false, nil, nil, true)

	maskBatched := mask.MustUnsqueeze(0, false)
	scaledMask := maskBatched.MustUpsampleNearest2d([]int64{newH, newW}, nil, nil, true)

	return scaledImg.MustSqueeze1(0, true), scaledMask.MustSqueeze1(0, true)
}

// randomCrop takes a square crop of the configured size at a uniformly
// random offset. It errors when the input is smaller than the crop, which
// can happen when downscaling brings an image below the crop size.
func (a *Augmenter) randomCrop(x *ts.Tensor) (*ts.Tensor, error) {
	size := x.MustSize()
	crop := a.config.CropSize
	if size[1] < crop || size[2] < crop {
		return nil, fmt.Errorf("aug: input %vx%v smaller than crop size %v", size[1], size[2], crop)
	}

	offY := int64(a.rng.Intn(int(size[1]-crop) + 1))
	offX := int64(a.rng.Intn(int(size[2]-crop) + 1))

	rows := x.MustNarrow(1, offY, crop, false)
	cropped := rows.MustNarrow(2, offX, crop, true)

	return cropped, nil
}
