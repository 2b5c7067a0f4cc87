package head_test

import (
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/head"
)

func TestFCNHeadShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	h := head.NewFCNHead(vs.Root(), 256, 64, 0.1)

	x := ts.MustRand([]int64{2, 256, 32, 32}, gotch.Float, gotch.CPU)
	logits := h.ForwardT(x, false)

	got := logits.MustSize()
	want := []int64{2, 1, 32, 32}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected logits shape %v, got %v", want, got)
	}

	logits.MustDrop()
	x.MustDrop()
}

func TestFCNHeadNoContextShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	h := head.NewFCNHeadNoContext(vs.Root(), 256, 64, 0.1)

	x := ts.MustRand([]int64{1, 256, 48, 48}, gotch.Float, gotch.CPU)
	logits := h.ForwardT(x, false)

	got := logits.MustSize()
	want := []int64{1, 1, 48, 48}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected logits shape %v, got %v", want, got)
	}

	logits.MustDrop()
	x.MustDrop()
}

func TestEncoderHeadShapes(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	h := head.NewEncoderHead(vs.Root(), 256, 64, 8, 1, 0.1)

	x := ts.MustRand([]int64{2, 256, 16, 16}, gotch.Float, gotch.CPU)
	logits, seVec := h.ForwardT(x, false)

	gotLogits := logits.MustSize()
	if !reflect.DeepEqual(gotLogits, []int64{2, 1, 16, 16}) {
		t.Errorf("expected logits shape [2 1 16 16], got %v", gotLogits)
	}
	gotSE := seVec.MustSize()
	if !reflect.DeepEqual(gotSE, []int64{2, 1}) {
		t.Errorf("expected encoding shape [2 1], got %v", gotSE)
	}

	logits.MustDrop()
	seVec.MustDrop()
	x.MustDrop()
}

func TestContextEncodingGateKeepsShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	enc := head.NewContextEncoding(vs.Root(), 32, 4, 2)

	x := ts.MustRand([]int64{3, 32, 8, 8}, gotch.Float, gotch.CPU)
	gated, seVec := enc.ForwardT(x, false)

	if !reflect.DeepEqual(gated.MustSize(), x.MustSize()) {
		t.Errorf("expected gated map to keep input shape %v, got %v", x.MustSize(), gated.MustSize())
	}
	if !reflect.DeepEqual(seVec.MustSize(), []int64{3, 2}) {
		t.Errorf("expected encoding shape [3 2], got %v", seVec.MustSize())
	}

	gated.MustDrop()
	seVec.MustDrop()
	x.MustDrop()
}
