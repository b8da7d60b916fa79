package events

// Topic constants for domain events emitted by the reconciliation engine.
const (
	TopicOrderPlaced     = "order.placed"
	TopicOrderValidated  = "order.validated"
	TopicOrderCanceled   = "order.canceled"
	TopicPaymentRecorded = "payment.recorded"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderPlaced,
		TopicOrderValidated,
		TopicOrderCanceled,
		TopicPaymentRecorded,
	}
}
