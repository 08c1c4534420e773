// Package tree implements CART decision trees for classification.
//
// DecisionTreeClassifier is the default ensemble member of
// ensemble.RandomForestClassifier but is usable on its own.
package tree

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/core/model"
	"github.com/YuminosukeSato/rforest/metrics"
	"github.com/YuminosukeSato/rforest/pkg/errors"
)

const modelName = "DecisionTreeClassifier"

var (
	_ model.Classifier         = (*DecisionTreeClassifier)(nil)
	_ model.TreeLearner        = (*DecisionTreeClassifier)(nil)
	_ model.ContextFitter      = (*DecisionTreeClassifier)(nil)
	_ model.FeatureImportancer = (*DecisionTreeClassifier)(nil)
	_ model.ParameterGetter    = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter    = (*DecisionTreeClassifier)(nil)
)

// ctxCheckInterval is the number of nodes built between context checks.
const ctxCheckInterval = 16

// node is one entry of the flattened tree. Leaves have feature == -1.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     []float64 // class distribution, sums to 1
	nSamples  int
	impurity  float64
}

// DecisionTreeClassifier is a CART classifier compatible with scikit-learn's
// DecisionTreeClassifier for the parameters it supports.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int   // features examined per split, 0 means all
	randomState     int64 // negative means nondeterministic

	// Model parameters
	nodes               []node
	classes_            []int
	nClasses_           int
	depth_              int
	nLeaves_            int
	featureImportances_ []float64
}

// Option is a functional option for DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(modelName),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the impurity measure, "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth sets the maximum depth of the tree. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples required in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many randomly chosen features are examined at
// each split. 0 examines every feature.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = n
	}
}

// WithRandomState sets the seed used to choose split candidates.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

func (dt *DecisionTreeClassifier) validateParams() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0", dt.maxDepth)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	if dt.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be >= 0", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from the training set (X, y). y is a column of integer
// class labels.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation: the split search stops and ctx.Err()
// is returned once ctx is done.
func (dt *DecisionTreeClassifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeClassifier.Fit")

	if err := dt.validateParams(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewInvalidDataError("DecisionTreeClassifier.Fit", "empty training set")
	}
	if yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "y must be a column vector")
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	classes, encoded, err := encodeLabels(y, nSamples)
	if err != nil {
		return err
	}

	if err := dt.state.BeginFit(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dt.state.AbortFit()
		}
	}()

	b := &builder{
		dt:          dt,
		ctx:         ctx,
		X:           mat.DenseCopyOf(X),
		y:           encoded,
		nClasses:    len(classes),
		importances: make([]float64, nFeatures),
		rng:         newRand(dt.randomState),
	}
	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if _, err := b.build(indices, 0); err != nil {
		return err
	}

	dt.nodes = b.nodes
	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.depth_ = b.maxDepth
	dt.nLeaves_ = b.nLeaves
	dt.featureImportances_ = normalise(b.importances)

	dt.state.CommitFit(nFeatures, nSamples)
	return nil
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

// encodeLabels returns the sorted distinct labels and each row's position in it.
func encodeLabels(y mat.Matrix, n int) ([]int, []int, error) {
	seen := make(map[int]struct{})
	raw := make([]int, n)
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, nil, errors.NewValueError("DecisionTreeClassifier.Fit",
				"class labels must be finite integers")
		}
		raw[i] = int(v)
		seen[raw[i]] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	encoded := make([]int, n)
	for i, c := range raw {
		encoded[i] = pos[c]
	}
	return classes, encoded, nil
}

func normalise(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	total := floats.Sum(out)
	if total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// PredictProba returns class probabilities for each row of X. Columns follow Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if nFeatures, _ := dt.state.GetDimensions(); cols != nFeatures {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.PredictProba", nFeatures, cols, 1)
	}
	out := mat.NewDense(rows, dt.nClasses_, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, dt.leafFor(X, i).value)
	}
	return out, nil
}

// Predict returns the most probable class label for each row of X.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if nFeatures, _ := dt.state.GetDimensions(); cols != nFeatures {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.Predict", nFeatures, cols, 1)
	}
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		leaf := dt.leafFor(X, i)
		out.Set(i, 0, float64(dt.classes_[floats.MaxIdx(leaf.value)]))
	}
	return out, nil
}

func (dt *DecisionTreeClassifier) leafFor(X mat.Matrix, row int) *node {
	n := &dt.nodes[0]
	for n.feature >= 0 {
		if X.At(row, n.feature) <= n.threshold {
			n = &dt.nodes[n.left]
		} else {
			n = &dt.nodes[n.right]
		}
	}
	return n
}

// Score returns the mean accuracy on the given data.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(dt.classes_))
	copy(out, dt.classes_)
	return out
}

// GetFeatureImportances returns the normalised total impurity decrease
// contributed by each feature. It returns nil before fitting.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if !dt.state.IsFitted() {
		return nil
	}
	out := make([]float64, len(dt.featureImportances_))
	copy(out, dt.featureImportances_)
	return out
}

// FeatureImportances is GetFeatureImportances with a NotFittedError before fitting.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the fitted tree. A single leaf has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int { return dt.depth_ }

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int { return dt.nLeaves_ }

// GetParams returns the model's hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the model's hyperparameters. Unknown keys or invalid values
// are rejected and leave the model unchanged.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	next := *dt
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			next.criterion = v
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				next.maxDepth = v
			case "min_samples_split":
				next.minSamplesSplit = v
			case "min_samples_leaf":
				next.minSamplesLeaf = v
			case "max_features":
				next.maxFeatures = v
			}
		case "random_state":
			switch v := value.(type) {
			case int64:
				next.randomState = v
			case int:
				next.randomState = int64(v)
			default:
				return errors.NewValidationError(key, "must be an integer", value)
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	if err := next.validateParams(); err != nil {
		return err
	}
	dt.criterion = next.criterion
	dt.maxDepth = next.maxDepth
	dt.minSamplesSplit = next.minSamplesSplit
	dt.minSamplesLeaf = next.minSamplesLeaf
	dt.maxFeatures = next.maxFeatures
	dt.randomState = next.randomState
	return nil
}

// builder holds the working state of one Fit call.
type builder struct {
	dt          *DecisionTreeClassifier
	ctx         context.Context
	X           *mat.Dense
	y           []int
	nClasses    int
	importances []float64
	rng         *rand.Rand

	nodes    []node
	nLeaves  int
	maxDepth int
	built    int
}

func (b *builder) distribution(indices []int) []float64 {
	counts := make([]float64, b.nClasses)
	for _, i := range indices {
		counts[b.y[i]]++
	}
	return counts
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if b.dt.criterion == "entropy" {
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

// build grows the subtree for indices and returns its node id.
func (b *builder) build(indices []int, depth int) (int, error) {
	b.built++
	if b.built%ctxCheckInterval == 0 {
		if err := b.ctx.Err(); err != nil {
			return 0, err
		}
	}
	if depth > b.maxDepth {
		b.maxDepth = depth
	}

	n := len(indices)
	counts := b.distribution(indices)
	imp := b.impurity(counts, float64(n))
	value := make([]float64, len(counts))
	copy(value, counts)
	floats.Scale(1/float64(n), value)

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{feature: -1, left: -1, right: -1, value: value, nSamples: n, impurity: imp})

	dt := b.dt
	if imp == 0 || n < dt.minSamplesSplit || n < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		b.nLeaves++
		return id, nil
	}

	feature, threshold, gain, ok := b.bestSplit(indices, counts, imp)
	if !ok {
		b.nLeaves++
		return id, nil
	}

	var left, right []int
	for _, i := range indices {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if gain > 0 {
		b.importances[feature] += float64(n) * gain
	}

	l, err := b.build(left, depth+1)
	if err != nil {
		return 0, err
	}
	r, err := b.build(right, depth+1)
	if err != nil {
		return 0, err
	}
	b.nodes[id].feature = feature
	b.nodes[id].threshold = threshold
	b.nodes[id].left = l
	b.nodes[id].right = r
	return id, nil
}

// candidateFeatures returns the features examined at one node.
func (b *builder) candidateFeatures() []int {
	_, d := b.X.Dims()
	k := b.dt.maxFeatures
	if k <= 0 || k >= d {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}
	chosen := b.rng.Perm(d)[:k]
	sort.Ints(chosen)
	return chosen
}

// bestSplit scans every threshold between distinct consecutive values and
// returns the split with the largest impurity decrease. Earlier features and
// lower thresholds win ties.
func (b *builder) bestSplit(indices []int, counts []float64, parentImp float64) (int, float64, float64, bool) {
	n := len(indices)
	minLeaf := b.dt.minSamplesLeaf
	sorted := make([]int, n)
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)

	bestFeature, bestThreshold, bestGain := -1, 0.0, math.Inf(-1)
	for _, f := range b.candidateFeatures() {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X.At(sorted[a], f) < b.X.At(sorted[c], f)
		})
		for k := range left {
			left[k] = 0
		}
		copy(right, counts)

		for pos := 0; pos < n-1; pos++ {
			cls := b.y[sorted[pos]]
			left[cls]++
			right[cls]--

			nl := pos + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur := b.X.At(sorted[pos], f)
			next := b.X.At(sorted[pos+1], f)
			if cur == next {
				continue
			}
			child := (float64(nl)*b.impurity(left, float64(nl)) + float64(nr)*b.impurity(right, float64(nr))) / float64(n)
			gain := parentImp - child
			if gain > bestGain {
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				bestGain = gain
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}
