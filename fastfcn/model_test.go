package fastfcn_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/fastfcn"
)

func smallConfig() fastfcn.Config {
	cfg := fastfcn.DefaultConfig()
	cfg.JPUFeatures = 32
	cfg.HeadFeatures = 32
	cfg.Codewords = 4
	return cfg
}

func TestFastFCNShapes(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := fastfcn.NewFastFCN(vs.Root(), smallConfig())

	image := ts.MustRand([]int64{1, 3, 384, 384}, gotch.Float, gotch.CPU)
	logits, seVec := net.ForwardT(image, false)

	gotLogits := logits.MustSize()
	if !reflect.DeepEqual(gotLogits, []int64{1, 1, 48, 48}) {
		t.Errorf("expected logits shape [1 1 48 48], got %v", gotLogits)
	}
	gotSE := seVec.MustSize()
	if !reflect.DeepEqual(gotSE, []int64{1, 1}) {
		t.Errorf("expected encoding shape [1 1], got %v", gotSE)
	}

	logits.MustDrop()
	seVec.MustDrop()
	image.MustDrop()
}

func TestFastFCNNoContextUnalignedInput(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := fastfcn.NewFastFCNNoContext(vs.Root(), smallConfig())

	// 400 is not a multiple of 32; padding goes to 416 and the crop must come
	// back to 400/8 = 50.
	image := ts.MustRand([]int64{1, 3, 400, 400}, gotch.Float, gotch.CPU)
	logits := net.ForwardT(image, false)

	got := logits.MustSize()
	if !reflect.DeepEqual(got, []int64{1, 1, 50, 50}) {
		t.Errorf("expected logits shape [1 1 50 50], got %v", got)
	}

	logits.MustDrop()
	image.MustDrop()
}

func TestTestFastFCNFullResolution(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := fastfcn.NewTestFastFCN(vs.Root(), smallConfig())

	image := ts.MustRand([]int64{1, 3, 256, 256}, gotch.Float, gotch.CPU)
	logits := net.ForwardT(image, false)

	got := logits.MustSize()
	if !reflect.DeepEqual(got, []int64{1, 1, 256, 256}) {
		t.Errorf("expected logits shape [1 1 256 256], got %v", got)
	}

	logits.MustDrop()
	image.MustDrop()
}
