// Package dataset provides the tabular feature/label container consumed by
// the ensemble, plus a synthetic generator and a CSV reader.
//
// Labels are float64-encoded integer classes; NaN marks a missing label.
package dataset

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/rforest/core/parallel"
	"github.com/YuminosukeSato/rforest/pkg/errors"
)

// Dataset is an n x D feature matrix with an n x 1 label column.
type Dataset struct {
	X            *mat.Dense
	Y            *mat.Dense
	FeatureNames []string
}

// New validates X and y and wraps them in a Dataset. names may be nil, in
// which case features are named x0, x1, ...
func New(X, y *mat.Dense, names []string) (*Dataset, error) {
	if X == nil || y == nil || X.IsEmpty() || y.IsEmpty() {
		return nil, errors.NewInvalidDataError("dataset.New", "X and y must be non-empty")
	}
	n, d := X.Dims()
	yRows, yCols := y.Dims()
	if yRows != n {
		return nil, errors.NewDimensionError("dataset.New", n, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewValueError("dataset.New", "y must be a column vector")
	}
	if names == nil {
		names = defaultNames(d)
	}
	if len(names) != d {
		return nil, errors.NewDimensionError("dataset.New", d, len(names), 1)
	}
	return &Dataset{X: X, Y: y, FeatureNames: names}, nil
}

func defaultNames(d int) []string {
	names := make([]string, d)
	for j := range names {
		names[j] = "x" + strconv.Itoa(j)
	}
	return names
}

// Dims returns the number of samples and features.
func (d *Dataset) Dims() (samples, features int) {
	return d.X.Dims()
}

// ClassCounts returns the number of rows per class, ignoring missing labels.
func (d *Dataset) ClassCounts() map[int]int {
	n, _ := d.Y.Dims()
	counts := make(map[int]int)
	for i := 0; i < n; i++ {
		v := d.Y.At(i, 0)
		if !math.IsNaN(v) {
			counts[int(v)]++
		}
	}
	return counts
}

// Subset returns a new Dataset holding the given rows, in order.
func (d *Dataset) Subset(rows []int) *Dataset {
	_, cols := d.X.Dims()
	X := mat.NewDense(len(rows), cols, nil)
	y := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		X.SetRow(i, d.X.RawRowView(r))
		y.Set(i, 0, d.Y.At(r, 0))
	}
	return &Dataset{X: X, Y: y, FeatureNames: d.FeatureNames}
}

// Split shuffles the rows with seed and returns a train/test partition where
// the test part holds round(testFraction * n) rows.
func (d *Dataset) Split(testFraction float64, seed int64) (train, test *Dataset, err error) {
	n, _ := d.Dims()
	nTest := int(math.Round(testFraction * float64(n)))
	if !(testFraction > 0 && testFraction < 1) || nTest == 0 || nTest == n {
		return nil, nil, errors.NewValidationError("test_fraction",
			"must leave at least one row on each side of the split", testFraction)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testRows := append([]int(nil), perm[:nTest]...)
	trainRows := append([]int(nil), perm[nTest:]...)
	sort.Ints(testRows)
	sort.Ints(trainRows)
	return d.Subset(trainRows), d.Subset(testRows), nil
}

// FeatureStat summarises one feature column.
type FeatureStat struct {
	Name string
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// describeThreshold is the column count above which Describe fans out.
const describeThreshold = 32

// Describe returns per-feature summary statistics. Wide datasets are
// summarised on every CPU core.
func (d *Dataset) Describe() []FeatureStat {
	n, cols := d.Dims()
	out := make([]FeatureStat, cols)
	if n == 0 {
		return out
	}
	parallel.ParallelizeWithThreshold(cols, describeThreshold, 0, func(start, end int) {
		col := make([]float64, n)
		for j := start; j < end; j++ {
			mat.Col(col, j, d.X)
			mean, std := stat.MeanStdDev(col, nil)
			lo, hi := col[0], col[0]
			for _, v := range col[1:] {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			out[j] = FeatureStat{Name: d.FeatureNames[j], Mean: mean, Std: std, Min: lo, Max: hi}
		}
	})
	return out
}
