package ensemble

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/core/model"
	"github.com/YuminosukeSato/rforest/dataset"
	"github.com/YuminosukeSato/rforest/pkg/errors"
	"github.com/YuminosukeSato/rforest/pkg/log"
	"github.com/YuminosukeSato/rforest/sklearn/tree"
)

// scriptedLearner is a CART tree with injectable faults.
type scriptedLearner struct {
	*tree.DecisionTreeClassifier

	fitErr       error
	fitPanic     bool
	block        <-chan struct{}
	started      func()
	predictFails atomic.Int32
}

func (s *scriptedLearner) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if s.started != nil {
		s.started()
	}
	if s.fitPanic {
		panic("corrupt split table")
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fitErr != nil {
		return s.fitErr
	}
	return s.DecisionTreeClassifier.FitContext(ctx, X, y)
}

func (s *scriptedLearner) Fit(X, y mat.Matrix) error {
	return s.FitContext(context.Background(), X, y)
}

func (s *scriptedLearner) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if s.predictFails.Add(-1) >= 0 {
		return nil, errors.New("transient inference fault")
	}
	return s.DecisionTreeClassifier.PredictProba(X)
}

// scripted returns a factory of scriptedLearners; configure may inject faults
// per tree.
func scripted(configure func(s *scriptedLearner, spec BootstrapSpec)) LearnerFactory {
	return func(spec BootstrapSpec) model.TreeLearner {
		s := &scriptedLearner{
			DecisionTreeClassifier: tree.NewDecisionTreeClassifier(tree.WithRandomState(spec.LearnerSeed())),
		}
		if configure != nil {
			configure(s, spec)
		}
		return s
	}
}

// plainLearner does not observe contexts.
type plainLearner struct {
	inner *tree.DecisionTreeClassifier
	block <-chan struct{}
}

func (p *plainLearner) Fit(X, y mat.Matrix) error {
	if p.block != nil {
		<-p.block
	}
	return p.inner.Fit(X, y)
}

func (p *plainLearner) PredictProba(X mat.Matrix) (mat.Matrix, error) { return p.inner.PredictProba(X) }

func (p *plainLearner) Classes() []int { return p.inner.Classes() }

// constLearner predicts the same distribution for every row.
type constLearner struct {
	classes []int
	row     []float64
}

func (c *constLearner) Fit(X, y mat.Matrix) error { return nil }

func (c *constLearner) Classes() []int { return c.classes }

func (c *constLearner) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, len(c.row), nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, c.row)
	}
	return out, nil
}

func makeData(t *testing.T, opts ...dataset.GenOption) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.MakeClassification(opts...)
	require.NoError(t, err)
	return ds
}

func testLogger() *log.TestLogger {
	l, _ := log.NewTestLogger(log.LevelDebug)
	return l
}

// captureWarnings routes library warnings into a slice for the test.
func captureWarnings(t *testing.T) func() []error {
	t.Helper()
	var mu sync.Mutex
	var got []error
	errors.SetWarningHandler(func(w error) {
		mu.Lock()
		got = append(got, w)
		mu.Unlock()
	})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		return append([]error(nil), got...)
	}
}

func requireRowsSumToOne(t *testing.T, p mat.Matrix) {
	t.Helper()
	r, c := p.Dims()
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			v := p.At(i, j)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
			sum += v
		}
		require.InDelta(t, 1.0, sum, 1e-12, "row %d", i)
	}
}

func treeIndices(trees []*FittedTree) []int {
	out := make([]int, len(trees))
	for i, tr := range trees {
		out[i] = tr.Spec().Index
	}
	return out
}
