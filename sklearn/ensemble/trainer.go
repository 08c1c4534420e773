package ensemble

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/core/model"
	"github.com/YuminosukeSato/rforest/pkg/errors"
)

// FittedTree is a trained ensemble member together with the spec it was
// trained from. It is immutable once returned by the trainer.
type FittedTree struct {
	learner model.TreeLearner
	spec    BootstrapSpec
	classes []int
}

// Spec returns the bootstrap recipe of the tree.
func (t *FittedTree) Spec() BootstrapSpec { return t.spec }

// Learner returns the trained learner. Its input columns are Spec().FeatureMask.
func (t *FittedTree) Learner() model.TreeLearner { return t.learner }

// columnSubset presents the columns cols of m, in order, as a matrix.
type columnSubset struct {
	m    mat.Matrix
	cols []int
}

func (c columnSubset) Dims() (int, int) {
	r, _ := c.m.Dims()
	return r, len(c.cols)
}

func (c columnSubset) At(i, j int) float64 { return c.m.At(i, c.cols[j]) }

func (c columnSubset) T() mat.Matrix { return mat.Transpose{Matrix: c} }

// rowSubset presents the rows of m, in order, as a matrix.
type rowSubset struct {
	m    mat.Matrix
	rows []int
}

func (r rowSubset) Dims() (int, int) {
	_, c := r.m.Dims()
	return len(r.rows), c
}

func (r rowSubset) At(i, j int) float64 { return r.m.At(r.rows[i], j) }

func (r rowSubset) T() mat.Matrix { return mat.Transpose{Matrix: r} }

// trainingView materialises the rows and columns selected by spec, dropping
// rows whose label is missing (NaN).
func trainingView(X, y mat.Matrix, spec BootstrapSpec) (*mat.Dense, *mat.Dense, error) {
	const op = "ensemble.fitTree"
	if len(spec.SampleIndices) == 0 {
		return nil, nil, errors.NewInvalidDataError(op, fmt.Sprintf("tree %d: bootstrap sample is empty", spec.Index))
	}
	if len(spec.FeatureMask) == 0 {
		return nil, nil, errors.NewInvalidDataError(op, fmt.Sprintf("tree %d: feature mask is empty", spec.Index))
	}

	rows := make([]int, 0, len(spec.SampleIndices))
	for _, r := range spec.SampleIndices {
		if !math.IsNaN(y.At(r, 0)) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, nil, errors.NewInvalidDataError(op, fmt.Sprintf("tree %d: every sampled label is missing", spec.Index))
	}

	Xs := mat.NewDense(len(rows), len(spec.FeatureMask), nil)
	ys := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		for j, c := range spec.FeatureMask {
			Xs.Set(i, j, X.At(r, c))
		}
		ys.Set(i, 0, y.At(r, 0))
	}
	return Xs, ys, nil
}

// fitTree trains one ensemble member. Learners implementing
// model.ContextFitter observe ctx directly; others run on their own goroutine
// and are abandoned when ctx ends.
func fitTree(ctx context.Context, X, y mat.Matrix, spec BootstrapSpec, factory LearnerFactory) (*FittedTree, error) {
	Xs, ys, err := trainingView(X, y, spec)
	if err != nil {
		return nil, err
	}

	learner := factory(spec)
	if learner == nil {
		return nil, errors.NewModelError("ensemble.fitTree", "nil learner",
			errors.Newf("learner factory returned nil for tree %d", spec.Index))
	}

	if cf, ok := learner.(model.ContextFitter); ok {
		err = cf.FitContext(ctx, Xs, ys)
	} else {
		done := make(chan error, 1)
		go func() {
			done <- errors.SafeExecute(fmt.Sprintf("tree %d fit", spec.Index), func() error {
				return learner.Fit(Xs, ys)
			})
		}()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	classes := learner.Classes()
	if len(classes) == 0 {
		return nil, errors.NewModelError("ensemble.fitTree", "no classes",
			errors.Newf("tree %d reported no classes after fit", spec.Index))
	}
	return &FittedTree{learner: learner, spec: spec, classes: classes}, nil
}

// predictTree returns the tree's probabilities for X mapped onto the global
// class columns given by classIndex.
func predictTree(t *FittedTree, X mat.Matrix, classIndex map[int]int) (*mat.Dense, error) {
	op := fmt.Sprintf("tree %d predict", t.spec.Index)

	var p mat.Matrix
	err := errors.SafeExecute(op, func() error {
		var err error
		p, err = t.learner.PredictProba(columnSubset{m: X, cols: t.spec.FeatureMask})
		return err
	})
	if err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	pr, pc := p.Dims()
	if pr != n {
		return nil, errors.NewDimensionError(op, n, pr, 0)
	}
	if pc != len(t.classes) {
		return nil, errors.NewDimensionError(op, len(t.classes), pc, 1)
	}
	if err := errors.CheckMatrix(op, p, pr, pc); err != nil {
		return nil, err
	}

	out := mat.NewDense(n, len(classIndex), nil)
	for j, c := range t.classes {
		col, ok := classIndex[c]
		if !ok {
			return nil, errors.NewValueError(op, fmt.Sprintf("class %d was not seen when fitting the ensemble", c))
		}
		for i := 0; i < n; i++ {
			out.Set(i, col, p.At(i, j))
		}
	}
	return out, nil
}
