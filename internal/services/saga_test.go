package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

func TestExecuteRecoveryHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100
	env.balance.balances["MATIC-AMOY"] = 250
	env.balance.balances["AVAX-FUJI"] = 0

	requestId := env.registerApproved(t, 3)
	execErr := env.services.ExecuteRecovery(ctx, requestId)
	require.Nil(t, execErr)

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryCompleted.ToString(), status.Request.Status)
	require.NotNil(t, status.Execution)
	assert.Equal(t, types.SagaCompleted.ToString(), status.Execution.State)
	assert.Len(t, status.Execution.PhaseResults, 5)
	for _, phase := range status.Execution.PhaseResults {
		assert.Equal(t, types.PhaseSuccess.ToString(), phase.Status)
	}

	// One sweep from the chain with a balance plus the final migration.
	require.Equal(t, 2, env.router.transferCount())
	sweep := env.router.transfers[0]
	assert.Equal(t, "MATIC-AMOY", sweep.fromChain)
	assert.Equal(t, "ETH-SEPOLIA", sweep.toChain)
	assert.Equal(t, testOldWallet, sweep.recipient, "sweeps consolidate onto the wallet's own settlement balance")
	migration := env.router.transfers[1]
	assert.Equal(t, testNewOwner, migration.recipient)
	assert.Equal(t, "ETH-SEPOLIA", migration.fromChain)
	assert.Equal(t, "ETH-SEPOLIA", migration.toChain)

	// Wallet registries reflect the completed recovery.
	frozen, err := env.services.GetFrozenWallet(ctx, testOldWallet)
	require.Nil(t, err)
	assert.Equal(t, requestId, frozen.RequestId)

	deprecated, err := env.services.GetDeprecatedWallet(ctx, testOldWallet)
	require.Nil(t, err)
	assert.Equal(t, testNewOwner, deprecated.NewOwnerAddress)

	recovered, err := env.services.GetRecoveredWallet(ctx, testNewOwner)
	require.Nil(t, err)
	assert.Equal(t, testOldWallet, recovered.OldWalletRef)

	// Identity rebound to the new owner.
	require.Equal(t, 1, env.naming.bindingCount())
	assert.Equal(t, testIdentity, env.naming.bindings[0].identity)
	assert.Equal(t, testNewOwner, env.naming.bindings[0].address)
}

func TestExecuteRecoveryDuplicateEventIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100

	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	transfersAfterFirstRun := env.router.transferCount()
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId), "redelivered event must be a no-op")

	assert.Equal(t, 1, env.db.executionCount(), "no second execution may be created")
	assert.Equal(t, transfersAfterFirstRun, env.router.transferCount())
}

func TestFreezeFailureMovesNoFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100
	env.db.freezeWalletErr = errors.New("db unavailable")

	requestId := env.registerApproved(t, 2)
	execErr := env.services.ExecuteRecovery(ctx, requestId)
	require.NotNil(t, execErr)
	assert.Equal(t, types.InternalServiceError, execErr.ErrorCode)

	assert.Equal(t, 0, env.router.transferCount(), "no transfer may be attempted before the wallet is frozen")
	assert.Equal(t, 0, env.naming.bindingCount())
}

func TestSagaStartFaultLeavesLockUnconsumed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100
	env.db.createExecutionErr = errors.New("transient mongo fault")

	requestId := env.registerApproved(t, 2)

	// The first delivery dies while creating the execution record. Neither
	// the lock nor the execution may survive the failed start.
	execErr := env.services.ExecuteRecovery(ctx, requestId)
	require.NotNil(t, execErr)
	assert.Equal(t, types.InternalServiceError, execErr.ErrorCode)
	assert.Equal(t, 0, env.db.executionCount(), "a failed start must not leave a half-created execution")

	// The redelivered event starts the saga instead of finding the lock
	// consumed with nothing to resume.
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))
	assert.Equal(t, 1, env.db.executionCount())

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryCompleted.ToString(), status.Request.Status)
}

func TestResumeSkipsCheckpointedPhases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100
	env.db.updateMetaErr = errors.New("db connection dropped")

	requestId := env.registerApproved(t, 2)

	// First delivery dies inside the unification phase, after the freeze
	// checkpoint was written.
	execErr := env.services.ExecuteRecovery(ctx, requestId)
	require.NotNil(t, execErr)
	assert.Equal(t, types.InternalServiceError, execErr.ErrorCode)
	assert.Equal(t, 1, env.db.freezeCalls)

	// Redelivery resumes the same execution and does not re-freeze.
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))
	assert.Equal(t, 1, env.db.freezeCalls, "a checkpointed phase must not re-run")
	assert.Equal(t, 1, env.db.executionCount())

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryCompleted.ToString(), status.Request.Status)
}

func TestZeroBalanceFailsAtMigration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// All chains report zero.
	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryFailed.ToString(), status.Request.Status)
	require.NotNil(t, status.Execution)
	assert.Equal(t, types.SagaFailed.ToString(), status.Execution.State)
	assert.Empty(t, status.Execution.TransferRefs, "public transfer refs are cleared on failure")

	var migratePhase *PhaseResultPublic
	for i := range status.Execution.PhaseResults {
		if status.Execution.PhaseResults[i].Phase == types.PhaseMigrateFunds.ToString() {
			migratePhase = &status.Execution.PhaseResults[i]
		}
	}
	require.NotNil(t, migratePhase)
	assert.Equal(t, types.PhaseFailed.ToString(), migratePhase.Status)

	assert.Equal(t, 0, env.naming.bindingCount(), "phases after the failure must not run")
	assert.Equal(t, 0, env.router.transferCount())
}

func TestBalanceProviderFullyUnavailableFailsUnification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unavailable := types.NewErrorWithMsg(http.StatusServiceUnavailable, types.CollaboratorUnavailable, "down")
	env.balance.errs = map[string]*types.Error{}
	for _, chain := range env.services.cfg.Chains.Supported {
		env.balance.errs[chain] = unavailable
	}

	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryFailed.ToString(), status.Request.Status)
	assert.Equal(t, types.SagaFailed.ToString(), status.Execution.State)
	assert.Equal(t, 0, env.router.transferCount())
}

func TestPartialChainFailureDegradesToWarning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100
	env.balance.errs = map[string]*types.Error{
		"MATIC-AMOY": types.NewErrorWithMsg(http.StatusServiceUnavailable, types.CollaboratorUnavailable, "down"),
	}

	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryCompleted.ToString(), status.Request.Status, "one unreadable chain must not abort the recovery")
}

func TestMigrationTransientFailureRecordsSyntheticRef(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Only the settlement chain holds a balance, so the first router call is
	// the migration itself.
	env.balance.balances["ETH-SEPOLIA"] = 500
	env.router.transferErr = types.NewErrorWithMsg(http.StatusServiceUnavailable, types.CollaboratorUnavailable, "router down")

	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryCompleted.ToString(), status.Request.Status)

	var migratePhase *PhaseResultPublic
	for i := range status.Execution.PhaseResults {
		if status.Execution.PhaseResults[i].Phase == types.PhaseMigrateFunds.ToString() {
			migratePhase = &status.Execution.PhaseResults[i]
		}
	}
	require.NotNil(t, migratePhase)
	assert.Equal(t, types.PhaseSuccess.ToString(), migratePhase.Status)
	assert.Equal(t, true, migratePhase.Data["synthetic"])
	assert.NotEmpty(t, migratePhase.Note)
	assert.NotContains(t, status.Execution.TransferRefs, migratePhase.Data["transfer_ref"],
		"a synthetic reference must not be surfaced as a real transfer")
}

func TestPolicyViolationFailsMigration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 500
	env.router.transferErr = types.NewErrorWithMsg(http.StatusForbidden, types.BadRequest, "recipient not allowed")

	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryFailed.ToString(), status.Request.Status)
	assert.Equal(t, 0, env.naming.bindingCount())
}

func TestNamingFailureDoesNotFailTheSaga(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.balance.balances["ETH-SEPOLIA"] = 100
	env.naming.err = types.NewErrorWithMsg(http.StatusServiceUnavailable, types.CollaboratorUnavailable, "naming down")

	requestId := env.registerApproved(t, 2)
	require.Nil(t, env.services.ExecuteRecovery(ctx, requestId))

	status, err := env.services.GetRecoveryStatus(ctx, requestId, "")
	require.Nil(t, err)
	assert.Equal(t, types.RecoveryCompleted.ToString(), status.Request.Status)

	var ensPhase *PhaseResultPublic
	for i := range status.Execution.PhaseResults {
		if status.Execution.PhaseResults[i].Phase == types.PhaseUpdateEns.ToString() {
			ensPhase = &status.Execution.PhaseResults[i]
		}
	}
	require.NotNil(t, ensPhase)
	assert.Equal(t, types.PhaseSuccess.ToString(), ensPhase.Status)
	assert.NotEmpty(t, ensPhase.Note)
}

func TestExecuteRecoveryBeforeThresholdIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	recovery, regErr := env.services.RegisterRecovery(
		ctx, testIdentity, testOldWallet, testNewOwner, testGuardians, 3,
	)
	require.Nil(t, regErr)

	execErr := env.services.ExecuteRecovery(ctx, recovery.RequestId)
	require.NotNil(t, execErr)
	assert.Equal(t, http.StatusBadRequest, execErr.StatusCode)
}

func TestExecuteRecoveryUnknownRequest(t *testing.T) {
	env := newTestEnv(t)

	execErr := env.services.ExecuteRecovery(context.Background(), "0xdeadbeef")
	require.NotNil(t, execErr)
	assert.Equal(t, http.StatusBadRequest, execErr.StatusCode)
}
