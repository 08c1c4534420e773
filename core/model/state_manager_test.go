package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

func TestStateManagerLifecycle(t *testing.T) {
	s := NewStateManager("RandomForestClassifier")
	assert.Equal(t, Unfit, s.State())
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("Predict")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Predict", nf.Method)

	require.NoError(t, s.BeginFit())
	assert.Equal(t, Fitting, s.State())
	assert.False(t, s.IsFitted())

	s.CommitFit(4, 100)
	assert.Equal(t, Fitted, s.State())
	assert.NoError(t, s.RequireFitted("Predict"))
	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 4, nFeatures)
	assert.Equal(t, 100, nSamples)
	assert.Equal(t, ModelState{State: "fitted", NFeatures: 4, NSamples: 100}, s.GetState())
}

func TestStateManagerRejectsConcurrentFit(t *testing.T) {
	s := NewStateManager("RandomForestClassifier")
	require.NoError(t, s.BeginFit())

	err := s.BeginFit()
	var cf *errors.ConcurrentFitError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, "RandomForestClassifier", cf.ModelName)
}

func TestStateManagerAbortRestoresPriorState(t *testing.T) {
	tests := []struct {
		name   string
		fitted bool
		want   EstimatorState
	}{
		{"from unfit", false, Unfit},
		{"from fitted", true, Fitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStateManager("m")
			if tt.fitted {
				require.NoError(t, s.BeginFit())
				s.CommitFit(2, 10)
			}
			require.NoError(t, s.BeginFit())
			assert.Equal(t, tt.fitted, s.IsFitted(), "re-fit keeps the old snapshot usable")
			s.AbortFit()
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestStateManagerResetIgnoredWhileFitting(t *testing.T) {
	s := NewStateManager("m")
	require.NoError(t, s.BeginFit())
	s.Reset()
	assert.Equal(t, Fitting, s.State())
	s.CommitFit(1, 1)
	s.Reset()
	assert.Equal(t, Unfit, s.State())
}

func TestStateManagerSingleWinner(t *testing.T) {
	s := NewStateManager("m")
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginFit() == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestEstimatorStateString(t *testing.T) {
	assert.Equal(t, "unfit", Unfit.String())
	assert.Equal(t, "fitting", Fitting.String())
	assert.Equal(t, "fitted", Fitted.String())
	assert.Equal(t, "unknown", EstimatorState(9).String())
}
