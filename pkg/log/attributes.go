// Package log defines standard attribute keys for machine learning operations.
//
// These keys follow a hierarchical naming convention (e.g., "model.name",
// "data.samples") to enable structured log analysis and filtering.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "predict_proba", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"

	// StateKey holds the estimator state and fitted dimensions.
	StateKey = "model.state"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct classes seen at fit time.
	ClassesKey = "data.classes"
)

// Ensemble Context
const (
	// TreesKey records the number of trees in the ensemble.
	TreesKey = "ensemble.n_trees"

	// TreeIndexKey identifies a single ensemble member by its ordinal index.
	TreeIndexKey = "ensemble.tree_index"

	// WorkersKey records the size of the worker pool.
	WorkersKey = "ensemble.n_jobs"

	// FailedKey records the number of failed tree tasks.
	FailedKey = "ensemble.failed"

	// ExcludedKey records the number of trees excluded from an aggregation.
	ExcludedKey = "ensemble.excluded"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"
)

// Error Context
const (
	// ErrorKey holds the error attached to a record.
	ErrorKey = "error"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants for common operations.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationPredictProba = "predict_proba"
	OperationScore        = "score"

	PhaseTraining  = "training"
	PhaseInference = "inference"
)
