package ensemble

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/rforest/core/parallel"
	"github.com/YuminosukeSato/rforest/pkg/errors"
	"github.com/YuminosukeSato/rforest/pkg/log"
	"github.com/YuminosukeSato/rforest/pkg/monitor"
)

// errToleranceExceeded stops the worker pool once too many tasks failed.
var errToleranceExceeded = errors.New("failure tolerance exceeded")

// FitReport summarises one ensemble fit.
type FitReport struct {
	// Total is the number of tree tasks requested.
	Total int
	// Failures lists failed tasks in index order. Once the tolerance is
	// exceeded the pool stops, so with more than one worker a task that was
	// still running or not yet started is missing here even if it would have
	// failed. With one worker the list is deterministic.
	Failures []errors.TaskFailure
	// Duration is the wall time of the parallel phase.
	Duration time.Duration
}

// Succeeded returns the number of trees that were trained.
func (r *FitReport) Succeeded() int {
	return r.Total - len(r.Failures)
}

// maxFailures is the largest number of failed tasks out of n that tol allows.
func maxFailures(tol float64, n int) int {
	return int(math.Floor(tol*float64(n) + 1e-9))
}

// fitAll trains one tree per spec on a pool of cfg.nJobs workers. Tree i is
// written only to slot i, so the result order is the spec order whatever the
// completion order. When the parent context ends the partial result is
// discarded and ctx.Err() is returned.
//
// Tasks stopped by the pool after the tolerance is exceeded are not counted
// as failures, so the failure list of a rejected fit is best-effort when
// cfg.nJobs > 1.
func fitAll(ctx context.Context, X, y mat.Matrix, specs []BootstrapSpec, cfg *forestConfig, logger log.Logger) ([]*FittedTree, *FitReport, error) {
	n := len(specs)
	slots := make([]*FittedTree, n)
	errs := make([]error, n)
	allowed := maxFailures(cfg.failureTolerance, n)
	factory := cfg.factory()

	var failed atomic.Int32
	start := time.Now()
	poolErr := parallel.ForEach(ctx, n, cfg.nJobs, func(tctx context.Context, i int) error {
		t, err := runTask(tctx, X, y, specs[i], factory, cfg.taskTimeout)
		if err == nil {
			slots[i] = t
			cfg.collector.TreeTask(monitor.PhaseFit, monitor.OutcomeOK)
			return nil
		}
		if cerr := tctx.Err(); cerr != nil && errors.Is(err, cerr) {
			// stopped by the pool, not a failure of its own
			return nil
		}
		errs[i] = err
		cfg.collector.TreeTask(monitor.PhaseFit, taskOutcome(err))
		logger.Debug("tree task failed", err, log.TreeIndexKey, i)
		if int(failed.Add(1)) > allowed {
			return errToleranceExceeded
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if poolErr != nil && !errors.Is(poolErr, errToleranceExceeded) {
		return nil, nil, poolErr
	}

	report := &FitReport{Total: n, Duration: time.Since(start)}
	for i, err := range errs {
		if err != nil {
			report.Failures = append(report.Failures, errors.TaskFailure{Index: i, Err: err})
		}
	}
	if len(report.Failures) > allowed {
		return nil, report, errors.NewEnsembleFitError("Fit", n, cfg.failureTolerance, report.Failures)
	}

	trees := make([]*FittedTree, 0, n)
	for _, t := range slots {
		if t != nil {
			trees = append(trees, t)
		}
	}
	if len(trees) == 0 {
		return nil, report, errors.NewEnsembleFitError("Fit", n, cfg.failureTolerance, report.Failures)
	}
	if len(report.Failures) > 0 {
		errors.Warn(&errors.PartialFitWarning{Failed: len(report.Failures), Total: n})
	}
	return trees, report, nil
}

// runTask fits one tree under the optional per-task timeout. Panics are
// returned as *errors.PanicError and an expired deadline as TaskTimeoutError.
func runTask(ctx context.Context, X, y mat.Matrix, spec BootstrapSpec, factory LearnerFactory, timeout time.Duration) (*FittedTree, error) {
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var t *FittedTree
	err := errors.SafeExecute(fmt.Sprintf("tree %d", spec.Index), func() error {
		var err error
		t, err = fitTree(taskCtx, X, y, spec, factory)
		return err
	})
	if err != nil {
		if timeout > 0 && ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewTaskTimeoutError("Fit", spec.Index, timeout)
		}
		return nil, err
	}
	return t, nil
}

func taskOutcome(err error) string {
	var pe *errors.PanicError
	var te *errors.TaskTimeoutError
	switch {
	case errors.As(err, &te):
		return monitor.OutcomeTimeout
	case errors.As(err, &pe):
		return monitor.OutcomePanic
	default:
		return monitor.OutcomeFailed
	}
}
