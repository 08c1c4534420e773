// Package model provides the capability interfaces shared by the tree
// learners and the ensemble.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// TreeLearner is the capability an ensemble member must provide.
// Any learner with this shape can be plugged into the forest through a
// learner factory; the default is tree.DecisionTreeClassifier.
type TreeLearner interface {
	Fitter
	ProbaPredictor
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the mean accuracy on the given data and labels.
	Score(X mat.Matrix, y mat.Matrix) (float64, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator
	ProbaPredictor
	Scorer
}

// FeatureImportancer is implemented by models that expose impurity based
// feature importances, normalised to sum to one.
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
