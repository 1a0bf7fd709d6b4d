package client

const (
	RecoveryApprovedEventType = "recovery_approved"
)

// RecoveryApprovedEvent is the threshold-crossed signal the approval ledger
// publishes. The consumer drives the saga; redelivery after a consumer crash
// resumes the saga from its last checkpoint.
type RecoveryApprovedEvent struct {
	EventType string `json:"event_type"`
	RequestId string `json:"request_id"`
	Identity  string `json:"identity"`
}

func NewRecoveryApprovedEvent(requestId, identity string) RecoveryApprovedEvent {
	return RecoveryApprovedEvent{
		EventType: RecoveryApprovedEventType,
		RequestId: requestId,
		Identity:  identity,
	}
}
