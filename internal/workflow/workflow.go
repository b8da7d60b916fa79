package workflow

import (
	"errors"
	"fmt"
	"slices"
)

// Order states shared by the stock workflows.
const (
	StateDraft      = "draft"
	StateValidation = "validation"
	StateCompleted  = "completed"
	StateCanceled   = "canceled"
)

// ErrTransitionNotAllowed is returned when a named transition is not legal
// from the order's current state.
var ErrTransitionNotAllowed = errors.New("workflow: transition not in workflow")

// ErrUnknownWorkflow is returned for workflow ids the registry does not know.
var ErrUnknownWorkflow = errors.New("workflow: unknown workflow")

// Transition is a named operation advancing an order between states.
type Transition struct {
	Name string
	From []string
	To   string
}

// Workflow is the set of named, legal state transitions available to an order
// type. It is decoupled from any order entity: callers supply the current
// state explicitly.
type Workflow struct {
	ID          string
	Transitions []Transition
}

// Transition returns the transition with the given name when it is legal from
// the provided state.
func (w Workflow) Transition(name, from string) (Transition, bool) {
	for _, t := range w.Transitions {
		if t.Name == name && slices.Contains(t.From, from) {
			return t, true
		}
	}
	return Transition{}, false
}

// Target returns the destination state of the named transition regardless of
// the current state, or false when the workflow has no such transition.
func (w Workflow) Target(name string) (string, bool) {
	for _, t := range w.Transitions {
		if t.Name == name {
			return t.To, true
		}
	}
	return "", false
}

// Registry holds the workflows known to this service keyed by id.
type Registry struct {
	workflows map[string]Workflow
}

// NewRegistry builds a registry from the provided workflows.
func NewRegistry(workflows ...Workflow) *Registry {
	r := &Registry{workflows: make(map[string]Workflow, len(workflows))}
	for _, w := range workflows {
		r.workflows[w.ID] = w
	}
	return r
}

// Get returns the workflow with the given id.
func (r *Registry) Get(id string) (Workflow, error) {
	w, ok := r.workflows[id]
	if !ok {
		return Workflow{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	return w, nil
}

// Apply resolves the named transition against the current state and returns
// the resulting state. ErrTransitionNotAllowed is returned when the
// transition exists but is illegal from the current state, or does not exist
// at all.
func (r *Registry) Apply(workflowID, currentState, transitionName string) (string, error) {
	w, err := r.Get(workflowID)
	if err != nil {
		return "", err
	}
	t, ok := w.Transition(transitionName, currentState)
	if !ok {
		return "", fmt.Errorf("%w: %s from %s in %s", ErrTransitionNotAllowed, transitionName, currentState, workflowID)
	}
	return t.To, nil
}

// DefaultRegistry returns the stock order workflows: a plain workflow where
// placing an order completes it, and a validation workflow where a placed
// order awaits explicit validation.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Workflow{
			ID: "default",
			Transitions: []Transition{
				{Name: "place", From: []string{StateDraft}, To: StateCompleted},
				{Name: "cancel", From: []string{StateDraft}, To: StateCanceled},
			},
		},
		Workflow{
			ID: "default_validation",
			Transitions: []Transition{
				{Name: "place", From: []string{StateDraft}, To: StateValidation},
				{Name: "validate", From: []string{StateValidation}, To: StateCompleted},
				{Name: "cancel", From: []string{StateDraft, StateValidation}, To: StateCanceled},
			},
		},
	)
}
