package ensemble

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

// MaxFeaturesKind selects how the per-tree feature subset size is computed.
type MaxFeaturesKind int

const (
	// MaxFeaturesAll uses every feature. It is the zero value.
	MaxFeaturesAll MaxFeaturesKind = iota
	// MaxFeaturesCount uses an exact number of features.
	MaxFeaturesCount
	// MaxFeaturesFraction uses ceil(fraction * D) features.
	MaxFeaturesFraction
	// MaxFeaturesSqrt uses floor(sqrt(D)) features.
	MaxFeaturesSqrt
	// MaxFeaturesLog2 uses floor(log2(D)) features.
	MaxFeaturesLog2
)

// MaxFeatures describes the size of the feature subset drawn for each tree.
// The zero value means all features.
type MaxFeatures struct {
	Kind     MaxFeaturesKind
	Count    int
	Fraction float64
}

// AllFeatures returns a MaxFeatures that keeps every feature.
func AllFeatures() MaxFeatures { return MaxFeatures{Kind: MaxFeaturesAll} }

// FeatureCount returns a MaxFeatures that draws exactly n features.
func FeatureCount(n int) MaxFeatures { return MaxFeatures{Kind: MaxFeaturesCount, Count: n} }

// FeatureFraction returns a MaxFeatures that draws ceil(f * D) features, f in (0, 1].
func FeatureFraction(f float64) MaxFeatures {
	return MaxFeatures{Kind: MaxFeaturesFraction, Fraction: f}
}

// SqrtFeatures returns a MaxFeatures that draws floor(sqrt(D)) features.
func SqrtFeatures() MaxFeatures { return MaxFeatures{Kind: MaxFeaturesSqrt} }

// Log2Features returns a MaxFeatures that draws floor(log2(D)) features.
func Log2Features() MaxFeatures { return MaxFeatures{Kind: MaxFeaturesLog2} }

// ParseMaxFeatures parses "", "all", "sqrt", "log2", an integer count or a
// fraction such as "0.5".
func ParseMaxFeatures(s string) (MaxFeatures, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "all", "none":
		return AllFeatures(), nil
	case "sqrt", "auto":
		return SqrtFeatures(), nil
	case "log2":
		return Log2Features(), nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return MaxFeatures{}, errors.NewValidationError("max_features", "count must be >= 1", s)
		}
		return FeatureCount(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return MaxFeatures{}, errors.NewValidationError("max_features",
			"must be all, sqrt, log2, an integer or a fraction", s)
	}
	if !(f > 0 && f <= 1) {
		return MaxFeatures{}, errors.NewValidationError("max_features", "fraction must be in (0, 1]", s)
	}
	return FeatureFraction(f), nil
}

// String renders m in the form accepted by ParseMaxFeatures.
func (m MaxFeatures) String() string {
	switch m.Kind {
	case MaxFeaturesCount:
		return strconv.Itoa(m.Count)
	case MaxFeaturesFraction:
		s := strconv.FormatFloat(m.Fraction, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0" // keep 1.0 distinct from the count 1
		}
		return s
	case MaxFeaturesSqrt:
		return "sqrt"
	case MaxFeaturesLog2:
		return "log2"
	default:
		return "all"
	}
}

// Resolve returns the subset size for d features. The result is in [1, d].
func (m MaxFeatures) Resolve(d int) (int, error) {
	if d < 1 {
		return 0, errors.NewValidationError("n_features", "must be >= 1", d)
	}
	var k int
	switch m.Kind {
	case MaxFeaturesAll:
		k = d
	case MaxFeaturesCount:
		if m.Count < 1 || m.Count > d {
			return 0, errors.NewValidationError("max_features",
				"count must be between 1 and the number of features", m.Count)
		}
		k = m.Count
	case MaxFeaturesFraction:
		if !(m.Fraction > 0 && m.Fraction <= 1) {
			return 0, errors.NewValidationError("max_features", "fraction must be in (0, 1]", m.Fraction)
		}
		k = int(math.Ceil(m.Fraction * float64(d)))
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(d)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(d)))
	default:
		return 0, errors.NewValidationError("max_features", "unknown kind", int(m.Kind))
	}
	if k < 1 {
		k = 1
	}
	if k > d {
		k = d
	}
	return k, nil
}

// DeriveSeed returns the seed of the index-th tree. It is a pure function of
// its inputs: the SplitMix64 finaliser applied to base mixed with index.
func DeriveSeed(base int64, index int) int64 {
	z := uint64(base) + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z & math.MaxInt64)
}

// Streams derived from a tree seed. Each consumer gets its own generator so
// that, for example, changing max_features does not change the bootstrap rows.
const (
	streamFeatures = iota + 1
	streamSamples
	streamLearner
)

// SampleIndices draws size row indices uniformly from [0, n) with replacement.
func SampleIndices(n, size int, seed int64) []int {
	if n <= 0 || size <= 0 {
		return []int{}
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]int, size)
	for i := range out {
		out[i] = rng.Intn(n)
	}
	return out
}

// ChooseFeatures draws resolve(mf, d) distinct feature indices without
// replacement and returns them sorted ascending.
func ChooseFeatures(d int, mf MaxFeatures, seed int64) ([]int, error) {
	k, err := mf.Resolve(d)
	if err != nil {
		return nil, err
	}
	if k == d {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	rng := rand.New(rand.NewSource(seed))
	mask := rng.Perm(d)[:k]
	sort.Ints(mask)
	return mask, nil
}

// BootstrapSpec is the recipe for one ensemble member.
type BootstrapSpec struct {
	// Index is the tree's ordinal position in the ensemble.
	Index int
	// Seed is DeriveSeed(base, Index).
	Seed int64
	// SampleIndices are the training rows, possibly repeated.
	SampleIndices []int
	// FeatureMask holds the original column indices the tree sees, ascending.
	FeatureMask []int
}

// LearnerSeed is the seed handed to the tree learner itself.
func (s BootstrapSpec) LearnerSeed() int64 {
	return DeriveSeed(s.Seed, streamLearner)
}

// NewBootstrapSpec builds the spec of tree index for an n x d training set.
// size is the number of rows drawn; when bootstrap is false the rows are
// 0..n-1 and size is ignored.
func NewBootstrapSpec(index int, base int64, n, d, size int, mf MaxFeatures, bootstrap bool) (BootstrapSpec, error) {
	if n < 1 {
		return BootstrapSpec{}, errors.NewInvalidDataError("NewBootstrapSpec", "dataset has no rows")
	}
	seed := DeriveSeed(base, index)
	mask, err := ChooseFeatures(d, mf, DeriveSeed(seed, streamFeatures))
	if err != nil {
		return BootstrapSpec{}, err
	}

	var rows []int
	if bootstrap {
		if size < 1 {
			return BootstrapSpec{}, errors.NewValidationError("bootstrap_sample_size", "must be >= 1", size)
		}
		rows = SampleIndices(n, size, DeriveSeed(seed, streamSamples))
	} else {
		rows = make([]int, n)
		for i := range rows {
			rows[i] = i
		}
	}
	return BootstrapSpec{Index: index, Seed: seed, SampleIndices: rows, FeatureMask: mask}, nil
}

// outOfBag returns the rows of [0, n) that spec never drew, ascending.
func (s BootstrapSpec) outOfBag(n int) []int {
	in := make([]bool, n)
	for _, r := range s.SampleIndices {
		in[r] = true
	}
	var out []int
	for i, drawn := range in {
		if !drawn {
			out = append(out, i)
		}
	}
	return out
}
