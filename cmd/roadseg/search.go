package main

import (
	"log"
	"math/rand"

	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/roadseg/experiment"
)

func runSearch() {
	params := buildParams()

	exp, err := experiment.New("fastfcn-search", LogPath, params)
	if err != nil {
		log.Fatal(err)
	}
	defer exp.Close()

	// Search folds are cut from the training split only; the held-out
	// validation split never takes part in trials.
	trainDS, _ := buildDatasets(params)

	suggester := experiment.NewRandomSuggester(
		params.Map(),
		map[string]experiment.Range{
			"initial_learning_rate": {Min: 1e-3, Max: 1e-1},
			"dropout_rate":          {Min: 0, Max: 0.5},
			"weight_decay":          {Min: 1e-5, Max: 1e-3},
		},
		rand.New(rand.NewSource(SearchSeed)),
	)

	runner := func(candidate *experiment.Params, train, test []int) (float64, error) {
		foldTrain, err := trainDS.Subset(train)
		if err != nil {
			return 0, err
		}

		foldVal, err := trainDS.Subset(test)
		if err != nil {
			return 0, err
		}

		vs := nn.NewVarStore(Device)
		forward := buildModel(vs.Root(), candidate)

		_, dice := trainModel(exp, vs, forward, foldTrain, foldVal.WithoutAugmenter(), candidate)

		return dice, nil
	}

	best, err := experiment.Search(suggester, Trials, trainDS.Len(), Folds, Seed, runner)
	if err != nil {
		log.Fatal(err)
	}

	if err := best.Params.Save(exp.ArtifactPath("best_parameters.json")); err != nil {
		log.Fatal(err)
	}

	log.Printf("best parameters saved with mean dice %.4f (sem %.4f)", best.Mean, best.SEM)
}
