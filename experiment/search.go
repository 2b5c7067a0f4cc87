package experiment

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/sugarme/roadseg/dutil"
)

// FoldRunner trains and evaluates one candidate parameter set on a single
// cross-validation fold and returns its validation score. Train and test
// hold dataset indexes for the fold.
type FoldRunner func(params *Params, train, test []int) (float64, error)

// TrialResult summarizes one cross-validated evaluation of a candidate
// parameter set.
type TrialResult struct {
	Params *Params
	Scores []float64
	Mean   float64
	Std    float64
	SEM    float64
}

// RunTrial evaluates a candidate parameter set with k-fold cross validation
// over n samples, reporting mean, standard deviation, and standard error of
// the fold scores.
func RunTrial(params *Params, n, folds int, seed int64, runner FoldRunner) (*TrialResult, error) {
	kf, err := dutil.NewKFold(n, folds, true, seed)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, folds)
	for i, fold := range kf.Split() {
		log.Printf("running fold %v / %v", i+1, folds)

		score, err := runner(params, fold.Train, fold.Test)
		if err != nil {
			return nil, fmt.Errorf("experiment: fold %v failed: %w", i+1, err)
		}

		scores = append(scores, score)
	}

	mean := stat.Mean(scores, nil)
	std := stat.StdDev(scores, nil)
	sem := std / math.Sqrt(float64(folds))
	log.Printf("finished trial with score %.4f (std %.4f, sem %.4f)", mean, std, sem)

	return &TrialResult{
		Params: params,
		Scores: scores,
		Mean:   mean,
		Std:    std,
		SEM:    sem,
	}, nil
}

// Range is a closed interval a hyperparameter is searched over.
type Range struct {
	Min float64
	Max float64
}

// Suggester proposes candidate parameter sets for the search loop. Results
// of finished trials are fed back through Observe so smarter suggesters can
// condition on them.
type Suggester interface {
	Suggest() (*Params, error)
	Observe(result *TrialResult)
}

// RandomSuggester samples each searched parameter uniformly from its range,
// on top of a set of fixed defaults.
type RandomSuggester struct {
	defaults map[string]interface{}
	ranges   map[string]Range
	rng      *rand.Rand
}

// NewRandomSuggester builds a suggester over the given search ranges. Fixed
// defaults are carried into every candidate unchanged.
func NewRandomSuggester(defaults map[string]interface{}, ranges map[string]Range, rng *rand.Rand) *RandomSuggester {
	if rng == nil {
		log.Fatal("experiment: random source must not be nil")
	}

	for key, r := range ranges {
		if r.Max < r.Min {
			log.Fatalf("experiment: invalid search range [%v, %v] for %q", r.Min, r.Max, key)
		}
	}

	return &RandomSuggester{defaults: defaults, ranges: ranges, rng: rng}
}

// Suggest draws one candidate parameter set.
func (s *RandomSuggester) Suggest() (*Params, error) {
	values := make(map[string]interface{}, len(s.defaults)+len(s.ranges))
	for key, val := range s.defaults {
		values[key] = val
	}

	for key, r := range s.ranges {
		values[key] = r.Min + s.rng.Float64()*(r.Max-r.Min)
	}

	return NewParams(values)
}

// Observe is a no-op; random search does not condition on past results.
func (s *RandomSuggester) Observe(result *TrialResult) {}

// Search runs trials suggested candidates and returns the result with the
// highest mean score.
func Search(suggester Suggester, trials, n, folds int, seed int64, runner FoldRunner) (*TrialResult, error) {
	if trials <= 0 {
		return nil, fmt.Errorf("experiment: trial count must be positive, got %v", trials)
	}

	var best *TrialResult
	for i := 0; i < trials; i++ {
		log.Printf("running trial %v / %v", i+1, trials)

		params, err := suggester.Suggest()
		if err != nil {
			return nil, err
		}

		result, err := RunTrial(params, n, folds, seed, runner)
		if err != nil {
			return nil, err
		}

		suggester.Observe(result)
		if best == nil || result.Mean > best.Mean {
			best = result
		}
	}

	log.Printf("best encountered score: mean=%.4f, sem=%.4f", best.Mean, best.SEM)

	return best, nil
}
