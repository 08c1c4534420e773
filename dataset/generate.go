package dataset

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

type genConfig struct {
	samples     int
	features    int
	informative int
	classes     int
	classSep    float64
	flipY       float64
	seed        int64
}

// GenOption configures MakeClassification.
type GenOption func(*genConfig)

// WithSamples sets the number of rows. Default 100.
func WithSamples(n int) GenOption { return func(c *genConfig) { c.samples = n } }

// WithFeatures sets the number of columns. Default 4.
func WithFeatures(d int) GenOption { return func(c *genConfig) { c.features = d } }

// WithInformative sets how many leading columns carry class signal. Default 2.
func WithInformative(k int) GenOption { return func(c *genConfig) { c.informative = k } }

// WithClasses sets the number of classes, labelled 0..k-1. Default 2.
func WithClasses(k int) GenOption { return func(c *genConfig) { c.classes = k } }

// WithClassSep sets the distance of class centroids from the origin. Default 1.
func WithClassSep(sep float64) GenOption { return func(c *genConfig) { c.classSep = sep } }

// WithFlipY sets the fraction of labels replaced by a random class. Default 0.
func WithFlipY(f float64) GenOption { return func(c *genConfig) { c.flipY = f } }

// WithSeed sets the generator seed. Default 0.
func WithSeed(seed int64) GenOption { return func(c *genConfig) { c.seed = seed } }

// MakeClassification generates a Gaussian-cluster classification problem in
// the spirit of scikit-learn's make_classification. Class c has its centroid
// on the informative columns at classSep times a +/-1 pattern derived from c;
// the remaining columns are pure noise. Classes are balanced and rows are
// shuffled. The output is a pure function of the options.
func MakeClassification(opts ...GenOption) (*Dataset, error) {
	cfg := genConfig{samples: 100, features: 4, informative: 2, classes: 2, classSep: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.samples < cfg.classes:
		return nil, errors.NewValidationError("samples", "must be >= classes", cfg.samples)
	case cfg.classes < 2:
		return nil, errors.NewValidationError("classes", "must be >= 2", cfg.classes)
	case cfg.informative < 1 || cfg.informative > cfg.features:
		return nil, errors.NewValidationError("informative", "must be in [1, features]", cfg.informative)
	case 1<<uint(min(cfg.informative, 30)) < cfg.classes:
		return nil, errors.NewValidationError("classes", "must be <= 2^informative", cfg.classes)
	case cfg.flipY < 0 || cfg.flipY > 1:
		return nil, errors.NewValidationError("flip_y", "must be in [0, 1]", cfg.flipY)
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	X := mat.NewDense(cfg.samples, cfg.features, nil)
	y := mat.NewDense(cfg.samples, 1, nil)

	perm := rng.Perm(cfg.samples)
	for i := 0; i < cfg.samples; i++ {
		row := perm[i]
		c := i % cfg.classes
		y.Set(row, 0, float64(c))
		for j := 0; j < cfg.features; j++ {
			v := rng.NormFloat64()
			if j < cfg.informative {
				sign := 1.0
				if (c>>uint(j))&1 == 0 {
					sign = -1
				}
				v += sign * cfg.classSep
			}
			X.Set(row, j, v)
		}
	}
	for i := 0; i < cfg.samples; i++ {
		if rng.Float64() < cfg.flipY {
			y.Set(i, 0, float64(rng.Intn(cfg.classes)))
		}
	}
	return New(X, y, nil)
}

// MaskLabels returns a copy of d in which roughly fraction of the labels are
// replaced by NaN, chosen with seed.
func MaskLabels(d *Dataset, fraction float64, seed int64) *Dataset {
	n, _ := d.Dims()
	rng := rand.New(rand.NewSource(seed))
	y := mat.DenseCopyOf(d.Y)
	for i := 0; i < n; i++ {
		if rng.Float64() < fraction {
			y.Set(i, 0, math.NaN())
		}
	}
	return &Dataset{X: d.X, Y: y, FeatureNames: d.FeatureNames}
}
