package model

// ExecutionLockDocument guards against double saga starts: the saga_started
// flag flips from false to true exactly once per request lifecycle, inside
// a filtered update, so concurrent threshold-crossers cannot both launch.
// Re-registering a FAILED request re-arms the lock.
type ExecutionLockDocument struct {
	RequestId   string `bson:"_id"`
	SagaStarted bool   `bson:"saga_started"`
}

func NewExecutionLockDocument(requestId string) *ExecutionLockDocument {
	return &ExecutionLockDocument{
		RequestId:   requestId,
		SagaStarted: false,
	}
}
