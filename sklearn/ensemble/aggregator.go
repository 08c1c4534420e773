package ensemble

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/core/parallel"
	"github.com/YuminosukeSato/rforest/pkg/errors"
	"github.com/YuminosukeSato/rforest/pkg/log"
	"github.com/YuminosukeSato/rforest/pkg/monitor"
)

// inferenceAttempts is the number of tries a tree gets before exclusion.
const inferenceAttempts = 2

// PredictReport describes which trees contributed to one prediction.
type PredictReport struct {
	// Trees is the number of trees in the ensemble.
	Trees int
	// Used is the number of trees whose probabilities were averaged.
	Used int
	// Retried lists the indices of trees whose first inference failed.
	Retried []int
	// Excluded lists the trees dropped after a failed retry, in index order.
	Excluded []errors.TaskFailure
}

// aggregator combines per-tree probabilities over a fixed class set.
type aggregator struct {
	classes    []int
	classIndex map[int]int
	workers    int
	logger     log.Logger
	collector  *monitor.Collector
}

func newAggregator(classes []int, workers int, logger log.Logger, collector *monitor.Collector) *aggregator {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &aggregator{classes: classes, classIndex: idx, workers: workers, logger: logger, collector: collector}
}

// predictProba returns the mean class probabilities of trees for X. Tree
// outputs are gathered into index-keyed slots and summed in index order once
// every inference has finished, so the result does not depend on workers.
func (a *aggregator) predictProba(ctx context.Context, trees []*FittedTree, X mat.Matrix) (*mat.Dense, *PredictReport, error) {
	if len(trees) == 0 {
		return nil, nil, errors.NewEnsembleFitError("PredictProba", 0, 0, nil)
	}

	n := len(trees)
	slots := make([]*mat.Dense, n)
	errs := make([]error, n)
	retried := make([]bool, n)

	err := parallel.ForEach(ctx, n, a.workers, func(_ context.Context, i int) error {
		for attempt := 1; attempt <= inferenceAttempts; attempt++ {
			p, err := predictTree(trees[i], X, a.classIndex)
			if err == nil {
				slots[i] = p
				errs[i] = nil
				a.collector.TreeTask(monitor.PhasePredict, monitor.OutcomeOK)
				return nil
			}
			errs[i] = err
			if attempt < inferenceAttempts {
				retried[i] = true
				a.collector.TreeTask(monitor.PhasePredict, monitor.OutcomeRetried)
			}
		}
		a.collector.TreeTask(monitor.PhasePredict, monitor.OutcomeExcluded)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	rows, _ := X.Dims()
	sum := mat.NewDense(rows, len(a.classes), nil)
	report := &PredictReport{Trees: n}
	for i := 0; i < n; i++ {
		if retried[i] {
			report.Retried = append(report.Retried, trees[i].spec.Index)
		}
		if slots[i] == nil {
			idx := trees[i].spec.Index
			report.Excluded = append(report.Excluded, errors.TaskFailure{Index: idx, Err: errs[i]})
			errors.Warn(errors.NewTreeExclusionWarning(idx, inferenceAttempts, errs[i]))
			continue
		}
		sum.Add(sum, slots[i])
		report.Used++
	}

	if len(report.Excluded) > 0 {
		a.logger.Warn("trees excluded from aggregation",
			log.ExcludedKey, len(report.Excluded),
			log.TreesKey, n,
		)
	}
	if report.Used == 0 {
		return nil, report, errors.NewEnsembleFitError("PredictProba", n, 0, report.Excluded)
	}
	sum.Scale(1/float64(report.Used), sum)
	return sum, report, nil
}

// argmax returns, for each row, the class with the highest probability.
// Ties go to the lowest class index.
func (a *aggregator) argmax(proba mat.Matrix) *mat.Dense {
	rows, cols := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, proba)
		out.Set(i, 0, float64(a.classes[floats.MaxIdx(row)]))
	}
	return out
}
