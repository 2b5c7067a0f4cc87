package experiment_test

import (
	"encoding/json"
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/roadseg/experiment"
)

func TestParamsRejectReservedPrefix(t *testing.T) {
	_, err := experiment.NewParams(map[string]interface{}{"base_log_directory": "/tmp"})
	if err == nil {
		t.Errorf("want error for reserved key prefix")
	}
}

func TestParamsImmutable(t *testing.T) {
	source := map[string]interface{}{"jpu_features": 512}
	params, err := experiment.NewParams(source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	source["jpu_features"] = 0
	params.Map()["jpu_features"] = 0

	got, err := params.Int64("jpu_features")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != 512 {
		t.Errorf("want 512 after external mutation, got %v", got)
	}
}

func TestParamsSaveRoundTrip(t *testing.T) {
	params, err := experiment.NewParams(map[string]interface{}{
		"dropout_rate": 0.1,
		"head":         "encoder",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dir, err := ioutil.TempDir("", "roadseg-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "parameters.json")
	if err := params.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var loaded map[string]interface{}
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(params.Map(), loaded) {
		t.Errorf("want %v after round trip, got %v", params.Map(), loaded)
	}
}

func TestExperimentDirectory(t *testing.T) {
	logDir, err := ioutil.TempDir("", "roadseg-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.RemoveAll(logDir)

	params, err := experiment.NewParams(map[string]interface{}{"epochs": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp, err := experiment.New("baseline", logDir, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer exp.Close()

	if !strings.HasPrefix(filepath.Base(exp.Dir), "baseline_") {
		t.Errorf("directory %v should start with the experiment tag", exp.Dir)
	}

	if _, err := os.Stat(exp.ArtifactPath("parameters.json")); err != nil {
		t.Errorf("parameters file missing: %v", err)
	}

	if _, err := os.Stat(exp.ArtifactPath("log.txt")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestPolynomialDecay(t *testing.T) {
	schedule := experiment.PolynomialDecay(1e-2, 1e-8, 1.0, 100)

	if got := schedule(0); math.Abs(got-1e-2) > 1e-12 {
		t.Errorf("want initial value 1e-2, got %v", got)
	}

	if got := schedule(50); math.Abs(got-(1e-2-1e-8)/2-1e-8) > 1e-12 {
		t.Errorf("want halfway value, got %v", got)
	}

	if got := schedule(100); got != 1e-8 {
		t.Errorf("want end value 1e-8, got %v", got)
	}

	if got := schedule(1000); got != 1e-8 {
		t.Errorf("want end value beyond total steps, got %v", got)
	}
}

func TestProportionalWeightDecay(t *testing.T) {
	lr := experiment.PolynomialDecay(1.0, 0, 1.0, 10)
	wd := experiment.ProportionalWeightDecay(1e-4, lr)

	if got := wd(0); math.Abs(got-1e-4) > 1e-12 {
		t.Errorf("want base decay at step 0, got %v", got)
	}

	if got := wd(5); math.Abs(got-5e-5) > 1e-12 {
		t.Errorf("want half decay at half learning rate, got %v", got)
	}
}

func TestPatchPredictions(t *testing.T) {
	// Stride-8 logits covering a 32x32 image: a 2x2 patch grid. Top-left
	// patch all road, the rest background.
	vals := make([]float32, 16)
	for i := range vals {
		vals[i] = -1
	}
	vals[0], vals[1], vals[4], vals[5] = 1, 1, 1, 1

	logits := ts.MustOfSlice(vals).MustView([]int64{1, 4, 4}, true)

	grid, err := experiment.PatchPredictions(logits, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]int{{1, 0}, {0, 0}}
	if !reflect.DeepEqual(want, grid) {
		t.Errorf("want %v, got %v", want, grid)
	}

	logits.MustDrop()
}

func TestPatchPredictionsZeroLogitIsRoad(t *testing.T) {
	logits := ts.MustZeros([]int64{1, 2, 2}, gotch.Float, gotch.CPU)

	grid, err := experiment.PatchPredictions(logits, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]int{{1}}
	if !reflect.DeepEqual(want, grid) {
		t.Errorf("want a zero logit counted as road, got %v", grid)
	}

	logits.MustDrop()
}

func TestWriteSubmission(t *testing.T) {
	dir, err := ioutil.TempDir("", "roadseg-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "submission.csv")
	predictions := map[int][][]int{
		7: {{1, 0}, {0, 1}},
	}

	if err := experiment.WriteSubmission(path, predictions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		t.Fatalf("unexpected error: %v", df.Err)
	}

	if got := df.Names(); !reflect.DeepEqual([]string{"Id", "Prediction"}, got) {
		t.Errorf("want header Id,Prediction, got %v", got)
	}

	wantIDs := []string{"007_0_0", "007_16_0", "007_0_16", "007_16_16"}
	if got := df.Col("Id").Records(); !reflect.DeepEqual(wantIDs, got) {
		t.Errorf("want ids %v, got %v", wantIDs, got)
	}

	wantLabels := []string{"1", "0", "0", "1"}
	if got := df.Col("Prediction").Records(); !reflect.DeepEqual(wantLabels, got) {
		t.Errorf("want labels %v, got %v", wantLabels, got)
	}
}

func TestRunTrialStatistics(t *testing.T) {
	params, err := experiment.NewParams(map[string]interface{}{"epochs": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scores := []float64{0.8, 0.9, 1.0}
	var call int
	runner := func(p *experiment.Params, train, test []int) (float64, error) {
		score := scores[call]
		call++
		return score, nil
	}

	result, err := experiment.RunTrial(params, 9, 3, 0, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(result.Mean-0.9) > 1e-12 {
		t.Errorf("want mean 0.9, got %v", result.Mean)
	}

	if math.Abs(result.Std-0.1) > 1e-12 {
		t.Errorf("want std 0.1, got %v", result.Std)
	}

	if math.Abs(result.SEM-0.1/math.Sqrt(3)) > 1e-12 {
		t.Errorf("want sem %v, got %v", 0.1/math.Sqrt(3), result.SEM)
	}
}

func TestRandomSearchPicksBestTrial(t *testing.T) {
	suggester := experiment.NewRandomSuggester(
		map[string]interface{}{"epochs": 1},
		map[string]experiment.Range{"dropout_rate": {Min: 0, Max: 0.5}},
		rand.New(rand.NewSource(1)),
	)

	runner := func(p *experiment.Params, train, test []int) (float64, error) {
		rate, err := p.Float64("dropout_rate")
		if err != nil {
			return 0, err
		}

		return 1 - rate, nil
	}

	best, err := experiment.Search(suggester, 4, 8, 2, 0, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rate, err := best.Params.Float64("dropout_rate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(best.Mean-(1-rate)) > 1e-12 {
		t.Errorf("best mean %v inconsistent with its dropout rate %v", best.Mean, rate)
	}
}
