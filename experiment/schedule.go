package experiment

import (
	"log"
	"math"
)

// Schedule maps a training step to a scalar hyperparameter value.
type Schedule func(step int64) float64

// PolynomialDecay decays from an initial value to an end value over
// totalSteps following `(initial - end) * (1 - step/totalSteps)^power + end`.
// Steps beyond totalSteps hold the end value.
func PolynomialDecay(initial, end, power float64, totalSteps int64) Schedule {
	if totalSteps <= 0 {
		log.Fatalf("experiment: decay steps must be positive, got %v", totalSteps)
	}

	if power <= 0 {
		log.Fatalf("experiment: decay power must be positive, got %v", power)
	}

	return func(step int64) float64 {
		if step >= totalSteps {
			return end
		}

		fraction := 1 - float64(step)/float64(totalSteps)

		return (initial-end)*math.Pow(fraction, power) + end
	}
}

// ProportionalWeightDecay scales a base weight-decay coefficient in
// proportion to the current learning rate, so the effective decay follows
// the learning-rate schedule instead of being captured inside the optimizer.
func ProportionalWeightDecay(base float64, lr Schedule) Schedule {
	initial := lr(0)
	if initial == 0 {
		log.Fatal("experiment: learning rate schedule starts at zero")
	}

	return func(step int64) float64 {
		return base * lr(step) / initial
	}
}
