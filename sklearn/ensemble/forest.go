// Package ensemble implements a random-forest classifier: trees trained in
// parallel on bootstrapped, feature-subsampled views of the data whose class
// probabilities are averaged at prediction time.
//
// Training is reproducible. Each tree draws from its own generator seeded by
// DeriveSeed(random_state, index), and trees are kept in index order, so the
// fitted model does not depend on n_jobs.
package ensemble

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/core/model"
	"github.com/YuminosukeSato/rforest/metrics"
	"github.com/YuminosukeSato/rforest/pkg/errors"
	"github.com/YuminosukeSato/rforest/pkg/log"
	"github.com/YuminosukeSato/rforest/pkg/monitor"
)

const modelName = "RandomForestClassifier"

var (
	_ model.Classifier         = (*RandomForestClassifier)(nil)
	_ model.ContextFitter      = (*RandomForestClassifier)(nil)
	_ model.FeatureImportancer = (*RandomForestClassifier)(nil)
	_ model.ParameterGetter    = (*RandomForestClassifier)(nil)
	_ model.ParameterSetter    = (*RandomForestClassifier)(nil)
)

// snapshot is the immutable result of one successful fit.
type snapshot struct {
	trees       []*FittedTree
	classes     []int
	nFeatures   int
	report      *FitReport
	importances []float64 // nil when no tree reports importances
	oobScore    float64
	hasOOB      bool
}

// RandomForestClassifier is a bagged ensemble of decision trees.
//
// Fit is not reentrant: a second Fit while one is running fails with
// ConcurrentFitError. Predictions are safe to call concurrently with each
// other and with a re-fit; they see the last completed fit.
type RandomForestClassifier struct {
	state *model.StateManager

	mu        sync.Mutex // guards cfg, seed and seedReady
	cfg       forestConfig
	seed      int64
	seedReady bool

	snap atomic.Pointer[snapshot]
}

// NewRandomForestClassifier creates a new RandomForestClassifier.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RandomForestClassifier{
		state: model.NewStateManager(modelName),
		cfg:   cfg,
	}
}

func (f *RandomForestClassifier) config() forestConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *RandomForestClassifier) logger(cfg *forestConfig) log.Logger {
	l := cfg.logger
	if l == nil {
		l = log.GetLoggerWithName("ensemble")
	}
	return l.With(log.ModelNameKey, modelName)
}

// RandomSeed returns the base seed of the model. When no random state was
// configured a seed is drawn the first time it is needed and kept for the
// lifetime of the model, so a re-fit reuses it.
func (f *RandomForestClassifier) RandomSeed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseSeedLocked()
}

func (f *RandomForestClassifier) baseSeedLocked() int64 {
	if f.cfg.hasRandomState {
		return f.cfg.randomState
	}
	if !f.seedReady {
		f.seed = rand.Int63()
		f.seedReady = true
		l := f.cfg.logger
		if l == nil {
			l = log.GetLoggerWithName("ensemble")
		}
		l.Info("random_state not set; drawn a base seed",
			log.ModelNameKey, modelName,
			log.RandomSeedKey, f.seed,
		)
	}
	return f.seed
}

// Fit trains the forest on X (n x D) and y (n x 1 integer labels, NaN for
// missing).
func (f *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return f.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation. When ctx ends the outstanding tree
// tasks are stopped, their results are discarded and ctx.Err() is returned;
// the previous fit, if any, stays in place.
func (f *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	if err := f.state.BeginFit(); err != nil {
		return err
	}

	cfg := f.config()
	logger := f.logger(&cfg)
	start := time.Now()
	nTrees := 0
	defer func() {
		if err != nil {
			f.state.AbortFit()
			cfg.collector.ObserveFit(monitor.OutcomeFailed, time.Since(start), 0)
			logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
			return
		}
		cfg.collector.ObserveFit(monitor.OutcomeOK, time.Since(start), nTrees)
	}()
	defer errors.Recover(&err, "RandomForestClassifier.Fit")

	if err := cfg.validate(); err != nil {
		return err
	}
	nSamples, nFeatures, classes, err := validateTrainingData(X, y)
	if err != nil {
		return err
	}

	f.mu.Lock()
	base := f.baseSeedLocked()
	f.mu.Unlock()

	size := cfg.bootstrapSampleSize
	if size == 0 {
		size = nSamples
	}
	specs := make([]BootstrapSpec, cfg.nEstimators)
	for i := range specs {
		specs[i], err = NewBootstrapSpec(i, base, nSamples, nFeatures, size, cfg.maxFeatures, cfg.bootstrap)
		if err != nil {
			return err
		}
	}

	logger.Info("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, len(classes),
		log.TreesKey, cfg.nEstimators,
		log.WorkersKey, cfg.nJobs,
		log.RandomSeedKey, base,
	)

	trees, report, err := fitAll(ctx, X, y, specs, &cfg, logger)
	if err != nil {
		return err
	}

	snap := &snapshot{
		trees:       trees,
		classes:     classes,
		nFeatures:   nFeatures,
		report:      report,
		importances: featureImportances(trees, nFeatures),
	}
	if cfg.oobScore {
		agg := newAggregator(classes, cfg.nJobs, logger, nil)
		snap.oobScore, snap.hasOOB = oobScore(agg, trees, X, y)
		if !snap.hasOOB {
			errors.Warn(errors.NewValueError("RandomForestClassifier.Fit",
				"no sample was left out of every bootstrap; oob score is unavailable"))
		}
	}

	f.snap.Store(snap)
	f.state.CommitFit(nFeatures, nSamples)
	nTrees = len(trees)

	logger.Info("fit finished",
		log.OperationKey, log.OperationFit,
		log.StateKey, f.state.GetState(),
		log.TreesKey, len(trees),
		log.FailedKey, len(report.Failures),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// validateTrainingData checks shapes and values and returns the sorted set
// of non-missing class labels.
func validateTrainingData(X, y mat.Matrix) (int, int, []int, error) {
	const op = "RandomForestClassifier.Fit"
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return 0, 0, nil, errors.NewInvalidDataError(op, "empty training set")
	}
	yRows, yCols := y.Dims()
	if yRows != n {
		return 0, 0, nil, errors.NewDimensionError(op, n, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, nil, errors.NewValueError(op, "y must be a column vector")
	}
	if err := errors.CheckMatrix(op, X, n, d); err != nil {
		return 0, 0, nil, err
	}

	seen := make(map[int]struct{})
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, 0, nil, errors.NewValueError(op, "class labels must be integers or NaN for missing")
		}
		seen[int(v)] = struct{}{}
	}
	if len(seen) == 0 {
		return 0, 0, nil, errors.NewInvalidDataError(op, "every label is missing")
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return n, d, classes, nil
}

// featureImportances averages per-tree importances mapped back onto the
// original columns, then normalises them to sum to one.
func featureImportances(trees []*FittedTree, nFeatures int) []float64 {
	total := make([]float64, nFeatures)
	reported := 0
	for _, t := range trees {
		r, ok := t.learner.(model.FeatureImportancer)
		if !ok {
			continue
		}
		imp, err := r.FeatureImportances()
		if err != nil || len(imp) != len(t.spec.FeatureMask) {
			continue
		}
		for j, col := range t.spec.FeatureMask {
			total[col] += imp[j]
		}
		reported++
	}
	if reported == 0 {
		return nil
	}
	floats.Scale(errors.SafeDivide(1, floats.Sum(total)), total)
	return total
}

// oobScore is the accuracy of each sample's prediction by the trees that did
// not draw it. Samples every tree drew, or with a missing label, are skipped.
func oobScore(agg *aggregator, trees []*FittedTree, X, y mat.Matrix) (float64, bool) {
	n, _ := X.Dims()
	votes := mat.NewDense(n, len(agg.classes), nil)
	voted := make([]bool, n)

	for _, t := range trees {
		rows := t.spec.outOfBag(n)
		if len(rows) == 0 {
			continue
		}
		p, err := predictTree(t, rowSubset{m: X, rows: rows}, agg.classIndex)
		if err != nil {
			continue
		}
		for i, r := range rows {
			voted[r] = true
			for c := range agg.classes {
				votes.Set(r, c, votes.At(r, c)+p.At(i, c))
			}
		}
	}

	var rows []int
	for i := 0; i < n; i++ {
		if voted[i] && !math.IsNaN(y.At(i, 0)) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return 0, false
	}
	pred := agg.argmax(rowSubset{m: votes, rows: rows})
	acc, err := metrics.AccuracyMatrix(rowSubset{m: y, rows: rows}, pred)
	if err != nil {
		return 0, false
	}
	return acc, true
}

func (f *RandomForestClassifier) fitted(method string) (*snapshot, error) {
	snap := f.snap.Load()
	if snap == nil {
		return nil, errors.NewNotFittedError(modelName, method)
	}
	if len(snap.trees) == 0 {
		return nil, errors.NewEnsembleFitError(method, 0, 0, nil)
	}
	return snap, nil
}

func (f *RandomForestClassifier) checkPredictInput(snap *snapshot, method string, X mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 {
		return errors.NewValueError(method, "X has no rows")
	}
	if cols != snap.nFeatures {
		return errors.NewDimensionError(method, snap.nFeatures, cols, 1)
	}
	return errors.CheckMatrix(method, X, rows, cols)
}

// PredictProbaWithReport returns the mean class probabilities for X together
// with a report of the trees that were retried or excluded.
func (f *RandomForestClassifier) PredictProbaWithReport(X mat.Matrix) (mat.Matrix, *PredictReport, error) {
	snap, err := f.fitted("PredictProba")
	if err != nil {
		return nil, nil, err
	}
	proba, report, _, err := f.predictWith(snap, log.OperationPredictProba, X)
	if err != nil {
		return nil, report, err
	}
	return proba, report, nil
}

// predictWith runs the aggregation against one snapshot so that probabilities
// and class labels always come from the same fit.
func (f *RandomForestClassifier) predictWith(snap *snapshot, operation string, X mat.Matrix) (*mat.Dense, *PredictReport, *aggregator, error) {
	if err := f.checkPredictInput(snap, operation, X); err != nil {
		return nil, nil, nil, err
	}

	cfg := f.config()
	start := time.Now()
	defer func() { cfg.collector.ObservePredict(operation, time.Since(start)) }()

	agg := newAggregator(snap.classes, cfg.nJobs, f.logger(&cfg), cfg.collector)
	proba, report, err := agg.predictProba(context.Background(), snap.trees, X)
	return proba, report, agg, err
}

// PredictProba returns the mean class probabilities for X. Column j is the
// probability of Classes()[j]; each row sums to one.
func (f *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	proba, _, err := f.PredictProbaWithReport(X)
	return proba, err
}

// Predict returns the class with the highest mean probability for each row.
// Ties go to the smallest class label.
func (f *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	snap, err := f.fitted("Predict")
	if err != nil {
		return nil, err
	}
	proba, _, agg, err := f.predictWith(snap, log.OperationPredict, X)
	if err != nil {
		return nil, err
	}
	return agg.argmax(proba), nil
}

// Score returns the mean accuracy on the given test data and labels.
func (f *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := f.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes returns the sorted class labels seen during fitting.
func (f *RandomForestClassifier) Classes() []int {
	snap := f.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]int, len(snap.classes))
	copy(out, snap.classes)
	return out
}

// Trees returns the fitted trees in index order.
func (f *RandomForestClassifier) Trees() []*FittedTree {
	snap := f.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]*FittedTree, len(snap.trees))
	copy(out, snap.trees)
	return out
}

// FitReport returns the report of the last successful fit, or nil.
func (f *RandomForestClassifier) FitReport() *FitReport {
	snap := f.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.report
}

// State returns the lifecycle state and the training dimensions of the last
// completed fit.
func (f *RandomForestClassifier) State() model.ModelState {
	return f.state.GetState()
}

// FeatureImportances returns the impurity-based importance of each original
// feature, normalised to sum to one.
func (f *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	snap, err := f.fitted("FeatureImportances")
	if err != nil {
		return nil, err
	}
	if snap.importances == nil {
		return nil, errors.NewValueError("FeatureImportances", "the configured learner does not report feature importances")
	}
	out := make([]float64, len(snap.importances))
	copy(out, snap.importances)
	return out, nil
}

// OOBScore returns the out-of-bag accuracy computed by the last fit.
func (f *RandomForestClassifier) OOBScore() (float64, error) {
	snap, err := f.fitted("OOBScore")
	if err != nil {
		return 0, err
	}
	if !snap.hasOOB {
		return 0, errors.NewValueError("OOBScore", "oob score was not computed; fit with WithOOBScore(true) and bootstrap enabled")
	}
	return snap.oobScore, nil
}

// IsFitted reports whether a completed fit is available.
func (f *RandomForestClassifier) IsFitted() bool {
	return f.snap.Load() != nil
}

// GetParams returns the model's hyperparameters.
func (f *RandomForestClassifier) GetParams() map[string]interface{} {
	cfg := f.config()
	var randomState interface{}
	if cfg.hasRandomState {
		randomState = cfg.randomState
	}
	return map[string]interface{}{
		"n_estimators":          cfg.nEstimators,
		"max_depth":             cfg.maxDepth,
		"max_features":          cfg.maxFeatures.String(),
		"n_jobs":                cfg.nJobs,
		"random_state":          randomState,
		"bootstrap":             cfg.bootstrap,
		"bootstrap_sample_size": cfg.bootstrapSampleSize,
		"failure_tolerance":     cfg.failureTolerance,
		"task_timeout":          cfg.taskTimeout,
		"criterion":             cfg.criterion,
		"min_samples_split":     cfg.minSamplesSplit,
		"min_samples_leaf":      cfg.minSamplesLeaf,
		"oob_score":             cfg.oobScore,
	}
}

// SetParams sets the model's hyperparameters. The change applies to the next
// Fit; invalid input leaves the configuration unchanged.
func (f *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.cfg
	for key, value := range params {
		if err := setParam(&next, key, value); err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.hasRandomState != f.cfg.hasRandomState || next.randomState != f.cfg.randomState {
		f.seedReady = false
	}
	f.cfg = next
	return nil
}

func setParam(c *forestConfig, key string, value interface{}) error {
	intValue := func() (int, error) {
		v, ok := value.(int)
		if !ok {
			return 0, errors.NewValidationError(key, "must be an int", value)
		}
		return v, nil
	}
	var err error
	switch key {
	case "n_estimators":
		c.nEstimators, err = intValue()
	case "max_depth":
		c.maxDepth, err = intValue()
	case "n_jobs":
		c.nJobs, err = intValue()
	case "bootstrap_sample_size":
		c.bootstrapSampleSize, err = intValue()
	case "min_samples_split":
		c.minSamplesSplit, err = intValue()
	case "min_samples_leaf":
		c.minSamplesLeaf, err = intValue()
	case "max_features":
		switch v := value.(type) {
		case MaxFeatures:
			c.maxFeatures = v
		case string:
			c.maxFeatures, err = ParseMaxFeatures(v)
		case int:
			c.maxFeatures = FeatureCount(v)
		case float64:
			c.maxFeatures = FeatureFraction(v)
		default:
			err = errors.NewValidationError(key, "unsupported type", value)
		}
	case "random_state":
		switch v := value.(type) {
		case nil:
			c.hasRandomState = false
		case int64:
			c.randomState, c.hasRandomState = v, true
		case int:
			c.randomState, c.hasRandomState = int64(v), true
		default:
			err = errors.NewValidationError(key, "must be an integer or nil", value)
		}
	case "bootstrap", "oob_score":
		v, ok := value.(bool)
		if !ok {
			return errors.NewValidationError(key, "must be a bool", value)
		}
		if key == "bootstrap" {
			c.bootstrap = v
		} else {
			c.oobScore = v
		}
	case "failure_tolerance":
		v, ok := value.(float64)
		if !ok {
			return errors.NewValidationError(key, "must be a float64", value)
		}
		c.failureTolerance = v
	case "task_timeout":
		v, ok := value.(time.Duration)
		if !ok {
			return errors.NewValidationError(key, "must be a time.Duration", value)
		}
		c.taskTimeout = v
	case "criterion":
		v, ok := value.(string)
		if !ok {
			return errors.NewValidationError(key, "must be a string", value)
		}
		c.criterion = v
	default:
		return errors.NewValidationError(key, "unknown parameter", value)
	}
	return err
}
