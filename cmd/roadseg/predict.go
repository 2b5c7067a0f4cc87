package main

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/aug"
	"github.com/sugarme/roadseg/data"
	"github.com/sugarme/roadseg/experiment"
	"github.com/sugarme/roadseg/fastfcn"
)

var sampleIDPattern = regexp.MustCompile(`[0-9]+`)

func runPredict() {
	if ModelPath == "" {
		log.Fatal("specify a model checkpoint with -model for prediction")
	}

	params := buildParams()

	exp, err := experiment.New("fastfcn-predict", LogPath, params)
	if err != nil {
		log.Fatal(err)
	}
	defer exp.Close()

	vs := nn.NewVarStore(Device)
	forward := buildModel(vs.Root(), params)
	if err := vs.Load(ModelPath); err != nil {
		log.Fatal(err)
	}

	testDir := filepath.Join(DataPath, "test", "images")
	names := listSamples(testDir)
	if len(names) == 0 {
		log.Fatalf("no test images found in %v", testDir)
	}

	predictions := make(map[int][][]int, len(names))
	for _, name := range names {
		sampleID, err := parseSampleID(name)
		if err != nil {
			log.Fatal(err)
		}

		log.Printf("predicting sample %v", sampleID)

		grid, err := predictSample(forward, filepath.Join(testDir, name))
		if err != nil {
			log.Fatal(err)
		}

		predictions[sampleID] = grid

		if err := saveOverlay(exp, filepath.Join(testDir, name), name, grid); err != nil {
			log.Printf("unable to save overlay for %v: %v", name, err)
		}
	}

	submissionPath := exp.ArtifactPath("submission.csv")
	if err := experiment.WriteSubmission(submissionPath, predictions); err != nil {
		log.Fatal(err)
	}

	log.Printf("saved predictions to %v", submissionPath)
}

// predictSample runs one image through the model and quantizes the logits
// into patch labels.
func predictSample(forward forwardFn, path string) ([][]int, error) {
	img, err := data.LoadImage(path)
	if err != nil {
		return nil, err
	}

	var grid [][]int
	ts.NoGrad(func() {
		lab := aug.ConvertRGBToLab(img)
		input := lab.MustUnsqueeze(0, true).MustTo(Device, true)

		logits, seVec := forward(input, false)
		input.MustDrop()
		if seVec != nil {
			seVec.MustDrop()
		}

		stride := outputStrideOf(img, logits)
		squeezed := logits.MustSqueeze1(0, true)
		grid, err = experiment.PatchPredictions(squeezed, stride)
		squeezed.MustDrop()
	})
	img.MustDrop()

	return grid, err
}

// outputStrideOf infers the stride the logits were produced at relative to
// the input image.
func outputStrideOf(img, logits *ts.Tensor) int64 {
	imgH := img.MustSize()[1]
	logitH := logits.MustSize()[2]
	if logitH == imgH {
		return 1
	}

	return fastfcn.OutputStride
}

// saveOverlay renders the patch predictions over the input image for visual
// inspection.
func saveOverlay(exp *experiment.Experiment, imgPath, name string, grid [][]int) error {
	img, err := data.ReadImage(imgPath)
	if err != nil {
		return err
	}

	patch := int(experiment.PatchSize)
	mask := image.NewGray(image.Rect(0, 0, len(grid[0])*patch, len(grid)*patch))
	for y, row := range grid {
		for x, label := range row {
			if label == 0 {
				continue
			}

			for dy := 0; dy < patch; dy++ {
				for dx := 0; dx < patch; dx++ {
					mask.SetGray(x*patch+dx, y*patch+dy, color.Gray{255})
				}
			}
		}
	}

	return data.SaveOverlay(img, mask, exp.ArtifactPath(fmt.Sprintf("overlay_%v", name)))
}

// parseSampleID extracts the numeric sample id from a test image file name.
func parseSampleID(name string) (int, error) {
	digits := sampleIDPattern.FindString(name)
	if digits == "" {
		return 0, fmt.Errorf("no sample id in file name %q", name)
	}

	return strconv.Atoi(digits)
}
