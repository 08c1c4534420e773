// Package model provides state management for machine learning models.
package model

import (
	"sync"

	"github.com/YuminosukeSato/rforest/pkg/errors"
)

// StateManager manages the lifecycle state of a model in a thread-safe manner.
//
// The lifecycle is Unfit -> Fitting -> Fitted, and Fitted -> Fitting on
// re-fit. Only one fit may be in flight at a time; AbortFit returns the
// model to whatever state it had before BeginFit.
type StateManager struct {
	mu        sync.RWMutex
	modelName string
	state     EstimatorState
	prior     EstimatorState

	nFeatures int
	nSamples  int
}

// NewStateManager creates a new StateManager instance in the Unfit state.
func NewStateManager(modelName string) *StateManager {
	return &StateManager{modelName: modelName, state: Unfit}
}

// State returns the current lifecycle state.
func (s *StateManager) State() EstimatorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsFitted reports whether a completed fit is available.
// A model being re-fitted still counts as fitted for the old snapshot.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Fitted || (s.state == Fitting && s.prior == Fitted)
}

// BeginFit moves the model into Fitting. It fails with ConcurrentFitError
// when another fit is already running.
func (s *StateManager) BeginFit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Fitting {
		return errors.NewConcurrentFitError(s.modelName)
	}
	s.prior = s.state
	s.state = Fitting
	return nil
}

// CommitFit completes a fit started by BeginFit and records the training shape.
func (s *StateManager) CommitFit(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Fitted
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// AbortFit restores the state that was current before BeginFit.
func (s *StateManager) AbortFit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Fitting {
		s.state = s.prior
	}
}

// Reset returns the model to Unfit. It is a no-op while a fit is running.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Fitting {
		return
	}
	s.state = Unfit
	s.nFeatures = 0
	s.nSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted returns a NotFittedError naming method if no completed fit exists.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(s.modelName, method)
	}
	return nil
}

// ModelState is a point-in-time view of a StateManager, used in logs.
type ModelState struct {
	State     string `json:"state"`
	NFeatures int    `json:"n_features,omitempty"`
	NSamples  int    `json:"n_samples,omitempty"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		State:     s.state.String(),
		NFeatures: s.nFeatures,
		NSamples:  s.nSamples,
	}
}
