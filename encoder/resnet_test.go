package encoder_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/encoder"
)

func TestResNetBackboneStrides(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := encoder.NewResNet50Backbone(vs.Root())

	image := ts.MustRand([]int64{2, 3, 256, 256}, gotch.Float, gotch.CPU)
	s8, s16, s32 := net.ForwardFeatures(image, false)

	c8, c16, c32 := net.OutChannels()
	wants := [][]int64{
		{2, c8, 32, 32},
		{2, c16, 16, 16},
		{2, c32, 8, 8},
	}
	for i, f := range []*ts.Tensor{s8, s16, s32} {
		got := f.MustSize()
		if !reflect.DeepEqual(got, wants[i]) {
			t.Errorf("feature %v: expected shape %v, got %v", i, wants[i], got)
		}
	}

	s8.MustDrop()
	s16.MustDrop()
	s32.MustDrop()
	image.MustDrop()
}

func TestResNet101BlockCounts(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	_ = encoder.NewResNet101Backbone(vs.Root())

	// Stage 3 of the 101-layer preset has 23 blocks; its last block must be
	// registered in the variable store.
	if _, ok := vs.Vars.NamedVariables["layer3.22.conv3.weight"]; !ok {
		t.Errorf("expected variable layer3.22.conv3.weight in the 101-layer preset")
	}
	if _, ok := vs.Vars.NamedVariables["layer3.23.conv1.weight"]; ok {
		t.Errorf("stage 3 of the 101-layer preset must stop at block 22")
	}
}

func TestBottleneckShapes(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	block := encoder.NewBottleneckBlock(vs.Root().Sub("block"), 64, 64, 2)

	x := ts.MustRand([]int64{1, 64, 32, 32}, gotch.Float, gotch.CPU)
	y := block.ForwardT(x, false)

	got := y.MustSize()
	want := []int64{1, 64 * encoder.BottleneckExpansion, 16, 16}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected shape %v, got %v", want, got)
	}

	y.MustDrop()
	x.MustDrop()
}
