package types

import "fmt"

type RecoveryStatus string

const (
	RecoveryPending   RecoveryStatus = "PENDING"
	RecoveryApproved  RecoveryStatus = "APPROVED"
	RecoveryExecuting RecoveryStatus = "EXECUTING"
	RecoveryCompleted RecoveryStatus = "COMPLETED"
	RecoveryFailed    RecoveryStatus = "FAILED"
)

func (s RecoveryStatus) ToString() string {
	return string(s)
}

// IsTerminal reports whether the request can never progress further.
func (s RecoveryStatus) IsTerminal() bool {
	return s == RecoveryCompleted || s == RecoveryFailed
}

func RecoveryStatusFromString(s string) (RecoveryStatus, error) {
	switch s {
	case string(RecoveryPending):
		return RecoveryPending, nil
	case string(RecoveryApproved):
		return RecoveryApproved, nil
	case string(RecoveryExecuting):
		return RecoveryExecuting, nil
	case string(RecoveryCompleted):
		return RecoveryCompleted, nil
	case string(RecoveryFailed):
		return RecoveryFailed, nil
	default:
		return "", fmt.Errorf("unknown recovery status: %s", s)
	}
}
