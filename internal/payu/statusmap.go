package payu

import "strings"

// Remote statuses reported by PayU.
const (
	StatusCompleted = "COMPLETED"
	StatusCanceled  = "CANCELED"
	StatusPending   = "PENDING"
)

// Transition names used by the order workflows.
const (
	TransitionPlace    = "place"
	TransitionValidate = "validate"
	TransitionCancel   = "cancel"
)

const validationSuffix = "_validation"

// TransitionFor maps a remote payment status and the order's workflow
// identity to the named lifecycle transition. The second return value is
// false when the status requires no action; callers must treat that as a
// benign no-op, not an error.
func TransitionFor(remoteStatus, workflowID string) (string, bool) {
	switch remoteStatus {
	case StatusCompleted:
		if strings.HasSuffix(workflowID, validationSuffix) {
			return TransitionValidate, true
		}
		return TransitionPlace, true
	case StatusCanceled:
		return TransitionCancel, true
	case StatusPending:
		return TransitionPlace, true
	}
	return "", false
}
