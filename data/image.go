package data

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
	"github.com/sugarme/gotch/vision"
	"golang.org/x/image/draw"
)

// ReadImage decodes an image file by extension. Aerial imagery comes as
// PNG or TIFF depending on the provider; JPEG is accepted for convenience.
func ReadImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format: %v", ext)
	}
}

// LoadImage loads an RGB image as a float tensor [3, H, W] scaled to [0, 1].
func LoadImage(path string) (*ts.Tensor, error) {
	imgTs, err := vision.Load(path)
	if err != nil {
		return nil, err
	}

	return imgTs.MustDiv1(ts.FloatScalar(255.0), true), nil
}

// LoadMask loads a segmentation mask as a binary tensor [1, H, W]. Mask
// files store road pixels as white, so the image is collapsed to grayscale
// and rounded to hard labels.
func LoadMask(path string) (*ts.Tensor, error) {
	maskTs, err := vision.Load(path)
	if err != nil {
		return nil, err
	}

	gray, err := RGBToGrayscale(maskTs)
	maskTs.MustDrop()
	if err != nil {
		return nil, err
	}

	mask := gray.MustDiv1(ts.FloatScalar(255.0), true).MustRound(true)

	return mask.MustUnsqueeze(0, true), nil
}

// RGBToGrayscale collapses the channel dimension of an RGB tensor
// [..., 3, H, W] using ITU-R 601 luma weights.
func RGBToGrayscale(x *ts.Tensor) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) < 3 {
		return nil, fmt.Errorf("expect at least 3D tensor, got %v dimensions", len(size))
	}

	if size[len(size)-3] != 3 {
		return nil, fmt.Errorf("expect 3 channels for RGB, got %v", size[len(size)-3])
	}

	channels := x.MustUnbind(-3, false)
	r := channels[0].MustMul1(ts.FloatScalar(0.2989), true)
	g := channels[1].MustMul1(ts.FloatScalar(0.587), true)
	b := channels[2].MustMul1(ts.FloatScalar(0.114), true)

	rg := r.MustAdd(g, true)
	g.MustDrop()
	gray := rg.MustAdd(b, true)
	b.MustDrop()

	return gray, nil
}

// Reduce downsamples an image by an integer factor with Lanczos filtering.
func Reduce(img image.Image, factor int) (image.Image, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("reduction factor must be positive, got %v", factor)
	}

	bounds := img.Bounds()
	w := uint(bounds.Dx() / factor)
	h := uint(bounds.Dy() / factor)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("factor %v collapses %vx%v image", factor, bounds.Dx(), bounds.Dy())
	}

	return resize.Resize(w, h, img, resize.Lanczos3), nil
}

// CutPatches splits an image tensor [C, H, W] into non-overlapping square
// patches of the given size in row-major order. Both spatial dimensions must
// be multiples of the patch size.
func CutPatches(img *ts.Tensor, size int64) ([]ts.Tensor, error) {
	dims := img.MustSize()
	if len(dims) != 3 {
		return nil, fmt.Errorf("expect [C, H, W] tensor, got shape %v", dims)
	}

	if size <= 0 || dims[1]%size != 0 || dims[2]%size != 0 {
		return nil, fmt.Errorf("patch size %v does not tile %vx%v", size, dims[1], dims[2])
	}

	patches := make([]ts.Tensor, 0, (dims[1]/size)*(dims[2]/size))
	for y := int64(0); y < dims[1]; y += size {
		rows := img.MustNarrow(1, y, size, false)
		for x := int64(0); x < dims[2]; x += size {
			patch := rows.MustNarrow(2, x, size, false)
			patches = append(patches, *patch)
		}
		rows.MustDrop()
	}

	return patches, nil
}

// SaveOverlay renders a prediction mask over an aerial image at 25% opacity
// and writes the composite to outPath for visual inspection.
func SaveOverlay(img, mask image.Image, outPath string) error {
	bounds := img.Bounds()
	rec := image.Rectangle{image.Point{0, 0}, image.Point{bounds.Dx(), bounds.Dy()}}

	dst := image.NewRGBA(rec)
	draw.Draw(dst, rec, img, bounds.Min, draw.Src)

	alpha := image.NewUniform(color.Alpha{64})
	draw.DrawMask(dst, rec, mask, mask.Bounds().Min, alpha, image.Point{}, draw.Over)

	return imaging.Save(dst, outPath)
}
