package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch"

	"github.com/sugarme/roadseg/experiment"
)

// flag variables
var (
	DataPath  string
	LogPath   string
	ModelPath string
	OptStr    string
	Cuda      bool
	task      string
	Device    gotch.Device
)

// hyperparameters
var (
	Head       string  // segmentation head variant
	LR         float64 // initial learning rate
	EndLR      float64 // final learning rate of the polynomial decay
	Momentum   float64 // SGD momentum
	WD         float64 // weight decay coefficient
	Dropout    float64 // pre-output dropout rate
	BatchSize  int     // batch size
	Epochs     int     // number of training epochs
	CropSize   int     // training crop size
	Folds      int     // cross-validation folds for search
	Trials     int     // number of search trials
	Seed       int64   // random seed for augmentation and splits
	SearchSeed int64   // random seed for the search suggester
)

func init() {
	flag.StringVar(&DataPath, "data", "./data", "specify input data directory")
	flag.StringVar(&LogPath, "logdir", "./log", "specify experiment output directory")
	flag.StringVar(&ModelPath, "model", "", "specify model weight '.ot' file for prediction")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.StringVar(&task, "task", "train", "specify task to run: train, predict or search")
	flag.StringVar(&OptStr, "opt", "SGD", "specify optimizer type: SGD or Adam")
	flag.StringVar(&Head, "head", "encoder", "specify segmentation head: encoder, fcn or nocontext")
	flag.Float64Var(&LR, "lr", 1e-2, "specify initial learning rate")
	flag.Float64Var(&EndLR, "endlr", 1e-8, "specify final learning rate")
	flag.Float64Var(&Momentum, "momentum", 0.9, "specify SGD momentum")
	flag.Float64Var(&WD, "wd", 1e-4, "specify weight decay for convolution weights")
	flag.Float64Var(&Dropout, "dropout", 0.1, "specify pre-output dropout rate")
	flag.IntVar(&BatchSize, "batch", 4, "specify batch size")
	flag.IntVar(&Epochs, "epochs", 240, "specify number of training epochs")
	flag.IntVar(&CropSize, "crop", 384, "specify training crop size")
	flag.IntVar(&Folds, "folds", 5, "specify cross-validation folds for search")
	flag.IntVar(&Trials, "trials", 10, "specify number of search trials")
	flag.Int64Var(&Seed, "seed", 42, "specify random seed")
	flag.Int64Var(&SearchSeed, "searchseed", 1, "specify search suggester seed")
}

func main() {
	flag.Parse()

	DataPath = absPath(DataPath)
	LogPath = absPath(LogPath)

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	switch task {
	case "train":
		runTrain()
	case "predict":
		runPredict()
	case "search":
		runSearch()
	default:
		err := fmt.Errorf("unknown task %q, specify train, predict or search", task)
		log.Fatal(err)
	}
}

// buildParams collects all hyperparameters for reproducible serialization.
func buildParams() *experiment.Params {
	params, err := experiment.NewParams(map[string]interface{}{
		"head":                               Head,
		"jpu_features":                       512,
		"head_features":                      512,
		"codewords":                          32,
		"se_loss_features":                   1,
		"dropout_rate":                       Dropout,
		"batch_size":                         BatchSize,
		"initial_learning_rate":              LR,
		"end_learning_rate":                  EndLR,
		"learning_rate_decay":                0.9,
		"momentum":                           Momentum,
		"weight_decay":                       WD,
		"epochs":                             Epochs,
		"augmentation_max_relative_scaling":  0.04,
		"augmentation_blur_probability":      0.5,
		"augmentation_blur_size":             5,
		"training_image_size":                CropSize,
		"seed":                               Seed,
	})
	if err != nil {
		log.Fatal(err)
	}

	return params
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
