package tree

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

func separableData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
	})
	y := mat.NewDense(6, 1, []float64{7, 7, 7, 3, 3, 3})
	return X, y
}

func TestDecisionTreeClassifier_ClassesSortedAndMapped(t *testing.T) {
	X, y := separableData()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	assert.Equal(t, []int{3, 7}, dt.Classes())

	proba, err := dt.PredictProba(mat.NewDense(1, 2, []float64{0, 0}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, mat.Row(nil, 0, proba), "column 1 is class 7")

	pred, err := dt.Predict(mat.NewDense(1, 2, []float64{3, 3}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, pred.At(0, 0))
}

func TestDecisionTreeClassifier_InvalidInput(t *testing.T) {
	X, y := separableData()

	tests := []struct {
		name  string
		X     mat.Matrix
		y     mat.Matrix
		check func(t *testing.T, err error)
	}{
		{
			name: "non integer label",
			X:    X,
			y:    mat.NewDense(6, 1, []float64{0, 0, 0.5, 1, 1, 1}),
			check: func(t *testing.T, err error) {
				var ve *errors.ValueError
				assert.True(t, errors.As(err, &ve))
			},
		},
		{
			name: "nan label",
			X:    X,
			y:    mat.NewDense(6, 1, []float64{0, 0, math.NaN(), 1, 1, 1}),
			check: func(t *testing.T, err error) {
				var ve *errors.ValueError
				assert.True(t, errors.As(err, &ve))
			},
		},
		{
			name: "row mismatch",
			X:    X,
			y:    mat.NewDense(5, 1, nil),
			check: func(t *testing.T, err error) {
				var de *errors.DimensionError
				require.True(t, errors.As(err, &de))
				assert.Equal(t, 0, de.Axis)
			},
		},
		{
			name: "infinite feature",
			X:    mat.NewDense(2, 1, []float64{0, math.Inf(1)}),
			y:    mat.NewDense(2, 1, []float64{0, 1}),
			check: func(t *testing.T, err error) {
				var ne *errors.NumericalInstabilityError
				require.True(t, errors.As(err, &ne))
				assert.Equal(t, 1, ne.Row)
			},
		},
		{
			name: "bad criterion",
			X:    y,
			y:    y,
			check: func(t *testing.T, err error) {
				var ve *errors.ValidationError
				assert.True(t, errors.As(err, &ve))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := NewDecisionTreeClassifier()
			if tt.name == "bad criterion" {
				dt = NewDecisionTreeClassifier(WithCriterion("mse"))
			}
			err := dt.Fit(tt.X, tt.y)
			require.Error(t, err)
			tt.check(t, err)
			assert.Nil(t, dt.GetFeatureImportances(), "failed fit leaves the model unfit")
		})
	}
}

func TestDecisionTreeClassifier_FitContextCancelled(t *testing.T) {
	X, y := separableData()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dt := NewDecisionTreeClassifier()
	err := dt.FitContext(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = dt.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestDecisionTreeClassifier_PredictDimensionMismatch(t *testing.T) {
	X, y := separableData()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	_, err := dt.PredictProba(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.Expected)
	assert.Equal(t, 3, de.Got)
}

func TestDecisionTreeClassifier_SingleClass(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{4, 4, 4})
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	assert.Equal(t, 0, dt.GetDepth())
	assert.Equal(t, 1, dt.GetNLeaves())
	assert.Equal(t, []float64{0}, dt.GetFeatureImportances())

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	_, c := proba.Dims()
	assert.Equal(t, 1, c)
}

func TestDecisionTreeClassifier_MaxFeaturesReproducible(t *testing.T) {
	X := mat.NewDense(40, 5, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		for j := 0; j < 5; j++ {
			X.Set(i, j, float64((i*(j+3))%11))
		}
		y.Set(i, 0, float64((i/4)%3))
	}

	fit := func() []float64 {
		dt := NewDecisionTreeClassifier(WithMaxFeatures(2), WithRandomState(7))
		require.NoError(t, dt.Fit(X, y))
		p, err := dt.PredictProba(X)
		require.NoError(t, err)
		return mat.Col(nil, 0, p)
	}
	assert.Equal(t, fit(), fit())
}

func TestDecisionTreeClassifier_SetParamsRejectsBadValues(t *testing.T) {
	dt := NewDecisionTreeClassifier()

	assert.Error(t, dt.SetParams(map[string]interface{}{"max_depth": "deep"}))
	assert.Error(t, dt.SetParams(map[string]interface{}{"n_estimators": 3}))
	assert.Error(t, dt.SetParams(map[string]interface{}{"min_samples_leaf": 0}))

	require.NoError(t, dt.SetParams(map[string]interface{}{"random_state": 11, "max_features": 1}))
	params := dt.GetParams()
	assert.Equal(t, int64(11), params["random_state"])
	assert.Equal(t, 1, params["max_features"])
}
