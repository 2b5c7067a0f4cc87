package jpu_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/jpu"
)

func TestJPUOutputShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	features := int64(64)
	m := jpu.NewJPU(vs.Root(), 512, 1024, 2048, features)

	s8 := ts.MustRand([]int64{1, 512, 32, 32}, gotch.Float, gotch.CPU)
	s16 := ts.MustRand([]int64{1, 1024, 16, 16}, gotch.Float, gotch.CPU)
	s32 := ts.MustRand([]int64{1, 2048, 8, 8}, gotch.Float, gotch.CPU)

	out := m.ForwardT(s8, s16, s32, false)

	got := out.MustSize()
	want := []int64{1, 4 * features, 32, 32}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected fused shape %v, got %v", want, got)
	}
	if m.OutChannels() != 4*features {
		t.Errorf("expected OutChannels %v, got %v", 4*features, m.OutChannels())
	}

	out.MustDrop()
	s8.MustDrop()
	s16.MustDrop()
	s32.MustDrop()
}
