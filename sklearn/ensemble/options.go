package ensemble

import (
	"time"

	"github.com/YuminosukeSato/rforest/core/model"
	"github.com/YuminosukeSato/rforest/pkg/errors"
	"github.com/YuminosukeSato/rforest/pkg/log"
	"github.com/YuminosukeSato/rforest/pkg/monitor"
	"github.com/YuminosukeSato/rforest/sklearn/tree"
)

// LearnerFactory creates the untrained learner for one ensemble member.
// It is called once per tree, possibly from several goroutines.
type LearnerFactory func(spec BootstrapSpec) model.TreeLearner

// forestConfig holds the fit-time configuration of a RandomForestClassifier.
type forestConfig struct {
	nEstimators         int
	maxDepth            int
	maxFeatures         MaxFeatures
	nJobs               int
	randomState         int64
	hasRandomState      bool
	bootstrap           bool
	bootstrapSampleSize int // 0 means the number of training rows
	failureTolerance    float64
	taskTimeout         time.Duration
	learnerFactory      LearnerFactory
	criterion           string
	minSamplesSplit     int
	minSamplesLeaf      int
	oobScore            bool

	logger    log.Logger
	collector *monitor.Collector
}

func defaultConfig() forestConfig {
	return forestConfig{
		nEstimators:     10,
		maxDepth:        0,
		maxFeatures:     AllFeatures(),
		nJobs:           1,
		bootstrap:       true,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
}

func (c *forestConfig) validate() error {
	if c.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", c.nEstimators)
	}
	if c.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", c.maxDepth)
	}
	if c.nJobs < 1 {
		return errors.NewValidationError("n_jobs", "must be >= 1", c.nJobs)
	}
	if c.bootstrapSampleSize < 0 {
		return errors.NewValidationError("bootstrap_sample_size", "must be >= 0", c.bootstrapSampleSize)
	}
	if !(c.failureTolerance >= 0 && c.failureTolerance <= 1) {
		return errors.NewValidationError("failure_tolerance", "must be in [0, 1]", c.failureTolerance)
	}
	if c.taskTimeout < 0 {
		return errors.NewValidationError("task_timeout", "must be >= 0", c.taskTimeout)
	}
	if c.learnerFactory == nil {
		if c.criterion != "gini" && c.criterion != "entropy" {
			return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", c.criterion)
		}
		if c.minSamplesSplit < 2 {
			return errors.NewValidationError("min_samples_split", "must be >= 2", c.minSamplesSplit)
		}
		if c.minSamplesLeaf < 1 {
			return errors.NewValidationError("min_samples_leaf", "must be >= 1", c.minSamplesLeaf)
		}
	}
	if c.oobScore && !c.bootstrap {
		return errors.NewValidationError("oob_score", "requires bootstrap=true", c.oobScore)
	}
	return nil
}

// factory returns the configured learner factory or the default CART factory.
func (c *forestConfig) factory() LearnerFactory {
	if c.learnerFactory != nil {
		return c.learnerFactory
	}
	criterion, maxDepth := c.criterion, c.maxDepth
	minSplit, minLeaf := c.minSamplesSplit, c.minSamplesLeaf
	return func(spec BootstrapSpec) model.TreeLearner {
		return tree.NewDecisionTreeClassifier(
			tree.WithCriterion(criterion),
			tree.WithMaxDepth(maxDepth),
			tree.WithMinSamplesSplit(minSplit),
			tree.WithMinSamplesLeaf(minLeaf),
			tree.WithRandomState(spec.LearnerSeed()),
		)
	}
}

// Option is a functional option for RandomForestClassifier.
type Option func(*forestConfig)

// WithNEstimators sets the number of trees. Default 10.
func WithNEstimators(n int) Option {
	return func(c *forestConfig) { c.nEstimators = n }
}

// WithMaxDepth sets the maximum depth of each tree. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(c *forestConfig) { c.maxDepth = depth }
}

// WithMaxFeatures sets the size of the feature subset drawn for each tree.
func WithMaxFeatures(mf MaxFeatures) Option {
	return func(c *forestConfig) { c.maxFeatures = mf }
}

// WithNJobs sets the number of workers used by Fit and PredictProba. Default 1.
func WithNJobs(n int) Option {
	return func(c *forestConfig) { c.nJobs = n }
}

// WithRandomState fixes the base seed. Without it a seed is drawn once per
// model, logged, and available from RandomSeed.
func WithRandomState(seed int64) Option {
	return func(c *forestConfig) {
		c.randomState = seed
		c.hasRandomState = true
	}
}

// WithBootstrapSampleSize sets the number of rows drawn for each tree.
// 0 means the number of training rows.
func WithBootstrapSampleSize(n int) Option {
	return func(c *forestConfig) { c.bootstrapSampleSize = n }
}

// WithBootstrap toggles row resampling. When false every tree sees all rows.
func WithBootstrap(enabled bool) Option {
	return func(c *forestConfig) { c.bootstrap = enabled }
}

// WithFailureTolerance sets the fraction of tree tasks allowed to fail before
// Fit fails. Default 0: any failure aborts the fit.
func WithFailureTolerance(fraction float64) Option {
	return func(c *forestConfig) { c.failureTolerance = fraction }
}

// WithTaskTimeout bounds the wall time of each tree task. 0 disables it.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *forestConfig) { c.taskTimeout = d }
}

// WithLearnerFactory replaces the default CART learner.
func WithLearnerFactory(f LearnerFactory) Option {
	return func(c *forestConfig) { c.learnerFactory = f }
}

// WithCriterion sets the split criterion of the default learner.
func WithCriterion(criterion string) Option {
	return func(c *forestConfig) { c.criterion = criterion }
}

// WithMinSamplesSplit sets min_samples_split of the default learner.
func WithMinSamplesSplit(n int) Option {
	return func(c *forestConfig) { c.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf of the default learner.
func WithMinSamplesLeaf(n int) Option {
	return func(c *forestConfig) { c.minSamplesLeaf = n }
}

// WithOOBScore enables the out-of-bag accuracy estimate computed after Fit.
func WithOOBScore(enabled bool) Option {
	return func(c *forestConfig) { c.oobScore = enabled }
}

// WithLogger sets the logger. Default is log.GetLoggerWithName("ensemble").
func WithLogger(l log.Logger) Option {
	return func(c *forestConfig) { c.logger = l }
}

// WithCollector enables Prometheus metrics.
func WithCollector(m *monitor.Collector) Option {
	return func(c *forestConfig) { c.collector = m }
}
