package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultWorkflowTransitions(t *testing.T) {
	reg := DefaultRegistry()

	cases := []struct {
		name       string
		workflowID string
		from       string
		transition string
		to         string
		wantErr    error
	}{
		{"place completes plain orders", "default", StateDraft, "place", StateCompleted, nil},
		{"cancel from draft", "default", StateDraft, "cancel", StateCanceled, nil},
		{"place moves into validation", "default_validation", StateDraft, "place", StateValidation, nil},
		{"validate completes", "default_validation", StateValidation, "validate", StateCompleted, nil},
		{"cancel from validation", "default_validation", StateValidation, "cancel", StateCanceled, nil},
		{"cancel from draft in validation workflow", "default_validation", StateDraft, "cancel", StateCanceled, nil},
		{"cancel illegal once completed", "default", StateCompleted, "cancel", "", ErrTransitionNotAllowed},
		{"place illegal once completed", "default", StateCompleted, "place", "", ErrTransitionNotAllowed},
		{"validate unknown in plain workflow", "default", StateDraft, "validate", "", ErrTransitionNotAllowed},
		{"validate illegal from draft", "default_validation", StateDraft, "validate", "", ErrTransitionNotAllowed},
		{"cancel illegal once canceled", "default", StateCanceled, "cancel", "", ErrTransitionNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := reg.Apply(tc.workflowID, tc.from, tc.transition)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.to, next)
		})
	}
}

func TestRegistryUnknownWorkflow(t *testing.T) {
	reg := DefaultRegistry()
	_, err := reg.Apply("subscription", StateDraft, "place")
	require.ErrorIs(t, err, ErrUnknownWorkflow)

	_, err = reg.Get("subscription")
	require.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestWorkflowTarget(t *testing.T) {
	reg := DefaultRegistry()
	wf, err := reg.Get("default_validation")
	require.NoError(t, err)

	target, ok := wf.Target("validate")
	require.True(t, ok)
	require.Equal(t, StateCompleted, target)

	_, ok = wf.Target("refund")
	require.False(t, ok)
}
