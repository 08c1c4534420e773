// Package rforest provides a random-forest classifier for Go, designed for
// backend services that train and serve models in-process.
//
// rforest follows a scikit-learn-like API: estimators are built with
// functional options, trained with Fit and queried with Predict and
// PredictProba. Matrices are gonum *mat.Dense values.
//
// # Features
//
//   - Bagged ensemble of CART trees with per-tree feature subsets
//   - Parallel fit and prediction with a bounded worker pool
//   - Reproducible: the fitted model depends only on random_state, never on n_jobs
//   - Fault tolerant: per-tree failures, panics and timeouts are isolated and
//     reported; a configurable tolerance decides whether the fit survives
//   - Structured errors and logging, Prometheus metrics
//
// # Installation
//
//	go get github.com/YuminosukeSato/rforest
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/rforest/dataset"
//	    "github.com/YuminosukeSato/rforest/sklearn/ensemble"
//	)
//
//	func main() {
//	    ds, err := dataset.MakeClassification(dataset.WithSamples(200), dataset.WithSeed(1))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    rf := ensemble.NewRandomForestClassifier(
//	        ensemble.WithNEstimators(50),
//	        ensemble.WithMaxFeatures(ensemble.SqrtFeatures()),
//	        ensemble.WithRandomState(42),
//	        ensemble.WithNJobs(4),
//	    )
//	    if err := rf.Fit(ds.X, ds.Y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    proba, err := rf.PredictProba(ds.X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("P(class 1) for the first row:", proba.At(0, 1))
//	}
//
// # Packages
//
//   - sklearn/ensemble: RandomForestClassifier, bootstrap specs, fit coordinator, aggregator
//   - sklearn/tree: DecisionTreeClassifier (CART), the default ensemble member
//   - dataset: feature/label container, synthetic generator, CSV reader
//   - metrics: Accuracy, AUC, log loss
//   - report: feature importance ranking and bar chart
//   - core/model: estimator interfaces and the fit state machine
//   - core/parallel: bounded worker pool
//   - pkg/errors, pkg/log, pkg/config, pkg/monitor: errors, logging, configuration, metrics
//
// # License
//
// rforest is released under the MIT License.
package rforest
