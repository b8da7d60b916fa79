package payu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionFor(t *testing.T) {
	cases := []struct {
		name       string
		status     string
		workflowID string
		transition string
		mapped     bool
	}{
		{"completed default", StatusCompleted, "default", TransitionPlace, true},
		{"completed validation workflow", StatusCompleted, "default_validation", TransitionValidate, true},
		{"completed custom validation workflow", StatusCompleted, "b2b_validation", TransitionValidate, true},
		{"canceled default", StatusCanceled, "default", TransitionCancel, true},
		{"canceled validation workflow", StatusCanceled, "default_validation", TransitionCancel, true},
		{"pending default", StatusPending, "default", TransitionPlace, true},
		{"pending validation workflow", StatusPending, "default_validation", TransitionPlace, true},
		{"waiting is unmapped", "WAITING_FOR_CONFIRMATION", "default", "", false},
		{"unknown status", "REFUNDED", "default", "", false},
		{"lowercase is not normalised", "completed", "default", "", false},
		{"empty status", "", "default", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transition, ok := TransitionFor(tc.status, tc.workflowID)
			require.Equal(t, tc.mapped, ok)
			require.Equal(t, tc.transition, transition)
		})
	}
}
