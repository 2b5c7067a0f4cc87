package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/aug"
	"github.com/sugarme/roadseg/data"
	"github.com/sugarme/roadseg/dutil"
	"github.com/sugarme/roadseg/experiment"
	"github.com/sugarme/roadseg/fastfcn"
	"github.com/sugarme/roadseg/metric"
)

// seLossWeight scales the auxiliary semantic encoding loss against the
// segmentation loss when the encoder head is active.
const seLossWeight = 0.2

// forwardFn runs one model forward pass. The second return value is the
// semantic encoding vector, nil for heads without a context branch.
type forwardFn func(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor)

func runTrain() {
	params := buildParams()

	exp, err := experiment.New("fastfcn", LogPath, params)
	if err != nil {
		log.Fatal(err)
	}
	defer exp.Close()

	trainDS, valDS := buildDatasets(params)

	vs := nn.NewVarStore(Device)
	forward := buildModel(vs.Root(), params)

	losses, bestDice := trainModel(exp, vs, forward, trainDS, valDS, params)
	log.Printf("best validation dice: %.4f", bestDice)

	if err := experiment.SaveLossCurves(exp.ArtifactPath("loss.png"), losses); err != nil {
		log.Printf("unable to plot loss curves: %v", err)
	}
}

// buildModel constructs the configured model variant under the given path.
func buildModel(p *nn.Path, params *experiment.Params) forwardFn {
	cfg := fastfcn.DefaultConfig()
	cfg.DropoutRate = mustFloat(params, "dropout_rate")
	cfg.JPUFeatures = mustInt(params, "jpu_features")
	cfg.HeadFeatures = mustInt(params, "head_features")
	cfg.Codewords = mustInt(params, "codewords")
	cfg.SELossFeatures = mustInt(params, "se_loss_features")

	head := mustString(params, "head")
	switch head {
	case "encoder":
		m := fastfcn.NewFastFCN(p, cfg)
		return m.ForwardT
	case "nocontext":
		m := fastfcn.NewFastFCNNoContext(p, cfg)
		return func(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
			return m.ForwardT(x, train), nil
		}
	case "fcn":
		m := fastfcn.NewTestFastFCN(p, cfg)
		return func(x *ts.Tensor, train bool) (*ts.Tensor, *ts.Tensor) {
			return m.ForwardT(x, train), nil
		}
	default:
		log.Fatalf("unknown head %q, specify encoder, nocontext or fcn", head)
		return nil
	}
}

// buildDatasets splits the training samples 90/10 into train and validation
// sets. Only the training set is augmented.
func buildDatasets(params *experiment.Params) (*data.RoadDataset, *data.RoadDataset) {
	imageDir := filepath.Join(DataPath, "training", "images")
	maskDir := filepath.Join(DataPath, "training", "groundtruth")

	names := listSamples(imageDir)
	if len(names) < 2 {
		log.Fatalf("need at least 2 training samples in %v, found %v", imageDir, len(names))
	}

	seed := mustInt(params, "seed")
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})

	split := len(names) * 9 / 10
	if split == len(names) {
		split--
	}

	augConfig := aug.DefaultConfig()
	augConfig.BlurProbability = mustFloat(params, "augmentation_blur_probability")
	augConfig.BlurKernelSize = mustInt(params, "augmentation_blur_size")
	augConfig.MaxRelativeScaling = mustFloat(params, "augmentation_max_relative_scaling")
	augConfig.CropSize = mustInt(params, "training_image_size")
	augmenter := aug.NewAugmenter(augConfig, rng)

	trainDS := data.NewRoadDataset(imageDir, maskDir, names[:split], augmenter)
	valDS := data.NewRoadDataset(imageDir, maskDir, names[split:], nil)

	return trainDS, valDS
}

// trainModel runs the SGD loop and returns per-epoch loss curves plus the
// best validation dice. The best weights are checkpointed into the
// experiment directory.
func trainModel(exp *experiment.Experiment, vs *nn.VarStore, forward forwardFn, trainDS, valDS *data.RoadDataset, params *experiment.Params) (map[string][]float64, float64) {
	epochs := mustInt(params, "epochs")
	batchSize := int(mustInt(params, "batch_size"))

	opt := buildOptimizer(vs, params)

	stepsPerEpoch := int64((trainDS.Len() + batchSize - 1) / batchSize)
	lr := experiment.PolynomialDecay(
		mustFloat(params, "initial_learning_rate"),
		mustFloat(params, "end_learning_rate"),
		mustFloat(params, "learning_rate_decay"),
		epochs*stepsPerEpoch,
	)
	wd := experiment.ProportionalWeightDecay(mustFloat(params, "weight_decay"), lr)

	losses := map[string][]float64{"train": nil, "validation dice": nil}

	rng := rand.New(rand.NewSource(Seed))

	var step int64
	bestDice := 0.0
	for epoch := int64(0); epoch < epochs; epoch++ {
		sampler, err := dutil.NewBatchSampler(trainDS.Len(), batchSize, true, rng)
		if err != nil {
			log.Fatal(err)
		}

		loader, err := dutil.NewDataLoader(trainDS, sampler)
		if err != nil {
			log.Fatal(err)
		}

		var epochLoss float64
		var batches int
		for loader.HasNext() {
			batch, err := loader.Next()
			if err != nil {
				log.Fatal(err)
			}

			imgTs, maskTs := data.StackSamples(batch.([]data.Sample))
			input := imgTs.MustTo(Device, true)
			mask := maskTs.MustTo(Device, true)

			opt.SetLR(lr(step))
			logits, seVec := forward(input, true)
			input.MustDrop()
			target := resizeMask(mask, logits)

			loss := metric.SegmentationLoss(logits, target)
			logits.MustDrop()

			if seVec != nil {
				seLoss := metric.SELoss(seVec, target).MustMul1(ts.FloatScalar(seLossWeight), true)
				seVec.MustDrop()
				loss = loss.MustAdd(seLoss, true)
				seLoss.MustDrop()
			}
			target.MustDrop()

			reg := weightPenalty(vs, wd(step))
			loss = loss.MustAdd(reg, true)
			reg.MustDrop()

			opt.BackwardStep(loss)
			epochLoss += loss.Float64Values()[0]
			loss.MustDrop()

			step++
			batches++
		}

		dice := validate(forward, valDS)
		losses["train"] = append(losses["train"], epochLoss/float64(batches))
		losses["validation dice"] = append(losses["validation dice"], dice)
		log.Printf("epoch %v/%v: loss %.4f, validation dice %.4f, lr %.2e", epoch+1, epochs, epochLoss/float64(batches), dice, lr(step))

		if dice > bestDice {
			bestDice = dice
			if err := vs.Save(exp.ArtifactPath("model.ot")); err != nil {
				log.Printf("unable to save checkpoint: %v", err)
			}
		}
	}

	return losses, bestDice
}

// buildOptimizer constructs the optimizer chosen on the command line.
func buildOptimizer(vs *nn.VarStore, params *experiment.Params) *nn.Optimizer {
	lr := mustFloat(params, "initial_learning_rate")

	var opt *nn.Optimizer
	var err error
	switch OptStr {
	case "SGD":
		sgd := nn.DefaultSGDConfig()
		sgd.Momentum = mustFloat(params, "momentum")
		opt, err = sgd.Build(vs, lr)
	case "Adam":
		opt, err = nn.DefaultAdamConfig().Build(vs, lr)
	default:
		err = fmt.Errorf("unknown optimizer %q, specify SGD or Adam", OptStr)
	}
	if err != nil {
		log.Fatal(err)
	}

	return opt
}

// validate runs the model over the validation set and returns the mean dice
// coefficient of the thresholded predictions.
func validate(forward forwardFn, valDS *data.RoadDataset) float64 {
	var total float64
	for i := 0; i < valDS.Len(); i++ {
		item, err := valDS.Item(i)
		if err != nil {
			log.Fatal(err)
		}

		sample := item.(data.Sample)
		ts.NoGrad(func() {
			lab := aug.ConvertRGBToLab(&sample.Image)
			input := lab.MustUnsqueeze(0, true).MustTo(Device, true)

			logits, seVec := forward(input, false)
			input.MustDrop()
			if seVec != nil {
				seVec.MustDrop()
			}

			mask := sample.Mask.MustUnsqueeze(0, false).MustTo(Device, true)
			target := resizeMask(mask, logits)

			prob := logits.MustSigmoid(true)
			total += metric.DiceCoeff(prob, target)
			prob.MustDrop()
			target.MustDrop()
		})

		sample.Image.MustDrop()
		sample.Mask.MustDrop()
	}

	return total / float64(valDS.Len())
}

// resizeMask brings a full-resolution mask batch [B, 1, H, W] to the
// spatial resolution of the model output with nearest-neighbour sampling,
// consuming the input. Heads emitting full-resolution logits leave the mask
// untouched; the stride-8 heads shrink it.
func resizeMask(mask, logits *ts.Tensor) *ts.Tensor {
	maskSize := mask.MustSize()
	logitSize := logits.MustSize()
	if maskSize[2] == logitSize[2] && maskSize[3] == logitSize[3] {
		return mask
	}

	down := mask.MustUpsampleNearest2d(logitSize[2:], nil, nil, true)

	return down.MustRound(true)
}

// weightPenalty is the L2 regularization term over the convolution kernels,
// scaled by the current weight-decay coefficient. Batch-norm scales and
// biases are left undecayed, so only 4-dimensional variables count.
func weightPenalty(vs *nn.VarStore, coeff float64) *ts.Tensor {
	reg := ts.MustZeros([]int64{1}, gotch.Float, Device)
	for _, v := range vs.Vars.TrainableVariables {
		if len(v.MustSize()) != 4 {
			continue
		}

		sq := v.MustMul(&v, false).MustSum(gotch.Float, true)
		reg = reg.MustAdd(sq, true)
		sq.MustDrop()
	}

	return reg.MustMul1(ts.FloatScalar(coeff), true)
}

// listSamples returns the sorted PNG file names in a directory.
func listSamples(dir string) []string {
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		log.Fatal(err)
	}

	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".png") {
			continue
		}

		names = append(names, f.Name())
	}

	sort.Strings(names)

	return names
}

func mustFloat(params *experiment.Params, key string) float64 {
	v, err := params.Float64(key)
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func mustInt(params *experiment.Params, key string) int64 {
	v, err := params.Int64(key)
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func mustString(params *experiment.Params, key string) string {
	v, err := params.String(key)
	if err != nil {
		log.Fatal(err)
	}
	return v
}
