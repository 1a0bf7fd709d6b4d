package db

import (
	"context"

	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

type DBClient interface {
	Ping(ctx context.Context) error
	SaveRecoveryRequest(
		ctx context.Context, requestId, identity, oldWalletRef, newOwnerAddress string,
		guardians []string, threshold uint64,
	) error
	FindRecoveryRequestById(ctx context.Context, requestId string) (*model.RecoveryRequestDocument, error)
	AddApproval(ctx context.Context, requestId, guardianAddress string) (*model.RecoveryRequestDocument, error)
	TransitionRecoveryStatus(
		ctx context.Context, requestId string, newStatus types.RecoveryStatus,
		eligiblePreviousStatuses []types.RecoveryStatus,
	) error
	CreateSagaExecution(ctx context.Context, execution *model.SagaExecutionDocument) error
	FindSagaExecutionById(ctx context.Context, executionId string) (*model.SagaExecutionDocument, error)
	FindActiveSagaExecutionByRequestId(ctx context.Context, requestId string) (*model.SagaExecutionDocument, error)
	FindLatestSagaExecutionByRequestId(ctx context.Context, requestId string) (*model.SagaExecutionDocument, error)
	SavePhaseResult(
		ctx context.Context, executionId string, phase types.PhaseName, result model.PhaseResultDocument,
	) error
	TransitionSagaState(
		ctx context.Context, executionId string, newState types.SagaState,
		eligiblePreviousStates []types.SagaState,
	) error
	UpdateSagaMetadata(ctx context.Context, executionId string, metadata model.SagaMetadata) error
	MarkSagaCompleted(ctx context.Context, executionId string) error
	MarkSagaFailed(ctx context.Context, executionId, errMsg string) error
	FreezeWallet(ctx context.Context, walletRef, requestId string) error
	FindFrozenWallet(ctx context.Context, walletRef string) (*model.FrozenWalletDocument, error)
	FinalizeWalletRecovery(ctx context.Context, oldWalletRef, newOwnerAddress, executionId string) error
	FindDeprecatedWallet(ctx context.Context, oldWalletRef string) (*model.DeprecatedWalletDocument, error)
	FindRecoveredWallet(ctx context.Context, newOwnerAddress string) (*model.RecoveredWalletDocument, error)
	SaveUnprocessableMessage(ctx context.Context, messageBody, receipt string) error
	FindUnprocessableMessages(ctx context.Context) ([]model.UnprocessableMessageDocument, error)
	DeleteUnprocessableMessage(ctx context.Context, receipt string) error
}
