package ensemble

import (
	"encoding/json"
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/dataset"
	"github.com/YuminosukeSato/rforest/pkg/errors"
)

var update = flag.Bool("update", false, "rewrite golden files under testdata")

type goldenForest struct {
	Classes     []int       `json:"classes"`
	TreeSeeds   []int64     `json:"tree_seeds"`
	Masks       [][]int     `json:"feature_masks"`
	Predictions []float64   `json:"predictions"`
	Proba       [][]float64 `json:"proba"`
}

const goldenPath = "testdata/golden_forest.json"

func readGolden(path string) (goldenForest, error) {
	var g goldenForest
	data, err := os.ReadFile(path)
	if err != nil {
		return g, err
	}
	err = json.Unmarshal(data, &g)
	return g, err
}

func snapshotForest(t *testing.T, rf *RandomForestClassifier, X mat.Matrix) goldenForest {
	t.Helper()
	g := goldenForest{Classes: rf.Classes()}
	for _, tr := range rf.Trees() {
		g.TreeSeeds = append(g.TreeSeeds, tr.Spec().Seed)
		g.Masks = append(g.Masks, tr.Spec().FeatureMask)
	}
	proba, err := rf.PredictProba(X)
	require.NoError(t, err)
	r, _ := proba.Dims()
	for i := 0; i < r; i++ {
		g.Proba = append(g.Proba, mat.Row(nil, i, proba))
	}
	pred, err := rf.Predict(X)
	require.NoError(t, err)
	g.Predictions = mat.Col(nil, 0, pred)
	return g
}

// TestGoldenEndToEnd pins the output of a fixed configuration. Run with
// -update to regenerate the file after an intentional change.
func TestGoldenEndToEnd(t *testing.T) {
	ds, err := dataset.MakeClassification(
		dataset.WithSamples(100),
		dataset.WithFeatures(4),
		dataset.WithClasses(2),
		dataset.WithSeed(42),
	)
	require.NoError(t, err)

	fit := func(workers int) *RandomForestClassifier {
		rf := NewRandomForestClassifier(
			WithNEstimators(10),
			WithMaxFeatures(FeatureCount(2)),
			WithRandomState(42),
			WithNJobs(workers),
			WithLogger(testLogger()),
		)
		require.NoError(t, rf.Fit(ds.X, ds.Y))
		return rf
	}

	rf := fit(4)
	got := snapshotForest(t, rf, ds.X)

	require.Len(t, got.TreeSeeds, 10)
	for _, m := range got.Masks {
		assert.Len(t, m, 2)
	}
	score, err := rf.Score(ds.X, ds.Y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.9)

	assert.Equal(t, got, snapshotForest(t, fit(1), ds.X), "n_jobs must not change the fitted model")

	path := filepath.FromSlash(goldenPath)
	if *update {
		data, err := json.MarshalIndent(got, "", "  ")
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll("testdata", 0o755))
		require.NoError(t, os.WriteFile(path, append(data, '\n'), 0o644))
		t.Logf("wrote %s", path)
		return
	}

	want, err := readGolden(path)
	if errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("%s is missing; run go test -run TestGoldenEndToEnd -update to record it", path)
	}
	require.NoError(t, err)

	assert.Equal(t, want.Classes, got.Classes)
	assert.Equal(t, want.TreeSeeds, got.TreeSeeds)
	assert.Equal(t, want.Masks, got.Masks)
	assert.Equal(t, want.Predictions, got.Predictions)
	require.Len(t, got.Proba, len(want.Proba))
	for i := range want.Proba {
		assert.InDeltaSlice(t, want.Proba[i], got.Proba[i], 1e-12, "row %d", i)
	}
}

// The recorded output is part of the repository; a fresh checkout must
// compare against it rather than record a new one.
func TestGoldenFileRecorded(t *testing.T) {
	g, err := readGolden(filepath.FromSlash(goldenPath))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, g.Classes)
	assert.Len(t, g.TreeSeeds, 10)
	assert.Len(t, g.Masks, 10)
	assert.Len(t, g.Predictions, 100)
	require.Len(t, g.Proba, 100)
	for i, row := range g.Proba {
		require.Len(t, row, 2)
		assert.InDelta(t, 1.0, row[0]+row[1], 1e-9, "row %d", i)
	}
	for i, seed := range g.TreeSeeds {
		assert.Equal(t, DeriveSeed(42, i), seed)
	}
}

func TestReadGoldenMissing(t *testing.T) {
	_, err := readGolden(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
