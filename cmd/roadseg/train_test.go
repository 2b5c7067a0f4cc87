package main

import (
	"math"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/roadseg/base"
)

func TestWeightPenaltyCoversConvKernelsOnly(t *testing.T) {
	Device = gotch.CPU

	vs := nn.NewVarStore(Device)
	base.Conv2d(vs.Root().Sub("conv"), 3, 8, 3, 1, 1)

	single := weightPenalty(vs, 1.0)
	got := single.Float64Values()[0]
	single.MustDrop()
	if got <= 0 {
		t.Fatalf("want positive penalty for a convolution kernel, got %v", got)
	}

	doubled := weightPenalty(vs, 2.0)
	if diff := math.Abs(doubled.Float64Values()[0] - 2*got); diff > 1e-4 {
		t.Errorf("want penalty to scale with the coefficient, off by %v", diff)
	}
	doubled.MustDrop()

	nn.BatchNorm2D(vs.Root().Sub("bn"), 8, nn.DefaultBatchNormConfig())

	withBN := weightPenalty(vs, 1.0)
	if diff := math.Abs(withBN.Float64Values()[0] - got); diff > 1e-6 {
		t.Errorf("want batch-norm scales and biases left undecayed, penalty moved by %v", diff)
	}
	withBN.MustDrop()
}
