package payu

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedPayload is returned when a notification body cannot be decoded
// or is missing required fields.
var ErrMalformedPayload = errors.New("payu: malformed notification payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Notification is the typed shape of a PayU order status callback.
type Notification struct {
	Order NotificationOrder `json:"order" validate:"required"`
}

// NotificationOrder carries the provider's view of the transaction.
type NotificationOrder struct {
	// ExtOrderID correlates to the local order's public identifier.
	ExtOrderID string `json:"extOrderId" validate:"required"`
	// OrderID is the provider-assigned transaction identifier.
	OrderID string `json:"orderId" validate:"required"`
	// Status is the provider's payment outcome (COMPLETED, CANCELED, ...).
	Status string `json:"status" validate:"required"`

	TotalAmount  string `json:"totalAmount,omitempty"`
	CurrencyCode string `json:"currencyCode,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ParseNotification decodes and validates a raw notification body. Missing
// required fields are rejected at this boundary so nothing downstream ever
// sees a partially formed notification; fields outside the known set are
// ignored, since PayU extends its payloads without notice.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if len(body) == 0 {
		return Notification{}, ErrMalformedPayload
	}
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return n, nil
}
