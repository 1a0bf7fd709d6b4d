package utils

import (
	"github.com/novavault/recovery-orchestrator/internal/types"
)

// QualifiedStatesToApproved returns the qualified existing states to transition to "APPROVED"
func QualifiedStatesToApproved() []types.RecoveryStatus {
	return []types.RecoveryStatus{types.RecoveryPending}
}

// QualifiedStatesToExecuting returns the qualified existing states to transition to "EXECUTING"
func QualifiedStatesToExecuting() []types.RecoveryStatus {
	return []types.RecoveryStatus{types.RecoveryApproved}
}

// QualifiedStatesToCompleted returns the qualified existing states to transition to "COMPLETED"
func QualifiedStatesToCompleted() []types.RecoveryStatus {
	return []types.RecoveryStatus{types.RecoveryExecuting}
}

// QualifiedStatesToFailed returns the qualified existing states to transition to "FAILED".
// A request can fail from APPROVED as well, when the saga aborts before its first checkpoint.
func QualifiedStatesToFailed() []types.RecoveryStatus {
	return []types.RecoveryStatus{types.RecoveryApproved, types.RecoveryExecuting}
}

// sagaOrder is the strict forward order of saga states up to completion.
var sagaOrder = []types.SagaState{
	types.SagaInitiated,
	types.SagaOldWalletFrozen,
	types.SagaUsdcUnified,
	types.SagaFundsMigrated,
	types.SagaEnsUpdated,
	types.SagaCompleted,
}

// QualifiedStatesToSagaState returns the saga states allowed to transition
// into the given state. FAILED is reachable from any non-terminal state.
func QualifiedStatesToSagaState(next types.SagaState) []types.SagaState {
	if next == types.SagaFailed {
		return []types.SagaState{
			types.SagaInitiated,
			types.SagaOldWalletFrozen,
			types.SagaUsdcUnified,
			types.SagaFundsMigrated,
			types.SagaEnsUpdated,
		}
	}
	for i, state := range sagaOrder {
		if state == next && i > 0 {
			return []types.SagaState{sagaOrder[i-1]}
		}
	}
	return nil
}

// SagaStateForPhase maps a completed phase to the saga state it advances to.
func SagaStateForPhase(phase types.PhaseName) types.SagaState {
	switch phase {
	case types.PhaseFreezeWallet:
		return types.SagaOldWalletFrozen
	case types.PhaseUnifyBalance:
		return types.SagaUsdcUnified
	case types.PhaseMigrateFunds:
		return types.SagaFundsMigrated
	case types.PhaseUpdateEns:
		return types.SagaEnsUpdated
	case types.PhaseFinalize:
		return types.SagaCompleted
	default:
		return types.SagaFailed
	}
}
