package types

// SagaState tracks how far a recovery execution has advanced. States only
// move forward; FAILED is absorbing and reachable from any non-terminal state.
type SagaState string

const (
	SagaInitiated       SagaState = "INITIATED"
	SagaOldWalletFrozen SagaState = "OLD_WALLET_FROZEN"
	SagaUsdcUnified     SagaState = "USDC_UNIFIED"
	SagaFundsMigrated   SagaState = "FUNDS_MIGRATED"
	SagaEnsUpdated      SagaState = "ENS_UPDATED"
	SagaCompleted       SagaState = "COMPLETED"
	SagaFailed          SagaState = "FAILED"
)

func (s SagaState) ToString() string {
	return string(s)
}

func (s SagaState) IsTerminal() bool {
	return s == SagaCompleted || s == SagaFailed
}

// PhaseName identifies one of the five saga phases.
type PhaseName string

const (
	PhaseFreezeWallet PhaseName = "freeze_wallet"
	PhaseUnifyBalance PhaseName = "unify_balance"
	PhaseMigrateFunds PhaseName = "migrate_funds"
	PhaseUpdateEns    PhaseName = "update_ens"
	PhaseFinalize     PhaseName = "finalize"
)

func (p PhaseName) ToString() string {
	return string(p)
}

// PhaseOrder returns the five phases in execution order.
func PhaseOrder() []PhaseName {
	return []PhaseName{
		PhaseFreezeWallet,
		PhaseUnifyBalance,
		PhaseMigrateFunds,
		PhaseUpdateEns,
		PhaseFinalize,
	}
}

type PhaseStatus string

const (
	PhasePending PhaseStatus = "PENDING"
	PhaseSuccess PhaseStatus = "SUCCESS"
	PhaseFailed  PhaseStatus = "FAILED"
)

func (p PhaseStatus) ToString() string {
	return string(p)
}
