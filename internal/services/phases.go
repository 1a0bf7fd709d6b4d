package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/novavault/recovery-orchestrator/internal/clients/policy"
	"github.com/novavault/recovery-orchestrator/internal/clients/router"
	"github.com/novavault/recovery-orchestrator/internal/db"
	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/observability/metrics"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/novavault/recovery-orchestrator/internal/utils"
)

func isRetriableCollaboratorError(err error) bool {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		return types.IsRetriableCode(apiErr.ErrorCode)
	}
	return false
}

// freezeWalletPhase puts the compromised wallet on the enforced blocklist.
// Nothing downstream may run against an unfrozen wallet, so any failure here
// stops the saga before a single unit of value has moved.
func (s *Services) freezeWalletPhase(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) (map[string]interface{}, string, *types.Error) {
	deprecated, err := s.DbClient.FindDeprecatedWallet(ctx, request.OldWalletRef)
	if err != nil && !db.IsNotFoundError(err) {
		return nil, "", types.NewInternalServiceError(err)
	}
	if deprecated != nil {
		return nil, "", types.NewErrorWithMsg(
			http.StatusPreconditionFailed, types.PreconditionFailed,
			fmt.Sprintf("wallet %s was already deprecated by a prior recovery", request.OldWalletRef),
		)
	}

	if err := s.DbClient.FreezeWallet(ctx, request.OldWalletRef, request.RequestId); err != nil {
		return nil, "", types.NewInternalServiceError(err)
	}

	data := map[string]interface{}{
		"wallet_ref": request.OldWalletRef,
	}
	var note string

	// Mirror the freeze into the policy gateway when one is configured. The
	// blocklist is the enforced control; the mirror is best effort.
	if s.Clients.Policy != nil {
		policyId, policyErr := s.createRecoveryPolicy(ctx, request, fmt.Sprintf("freeze-%s", request.RequestId), 0)
		if policyErr != nil {
			note = "policy gateway freeze mirror failed, wallet is blocklisted service-side only"
			log.Ctx(ctx).Warn().Err(policyErr).Str("requestId", request.RequestId).
				Msg("failed to mirror wallet freeze into the policy gateway")
		} else {
			data["policy_id"] = policyId
		}
	}

	return data, note, nil
}

// unifyBalancePhase sweeps the asset balance from every supported chain onto
// the settlement chain. Individual chains may fail without aborting the
// recovery; the phase is fatal only when the balance provider is unreachable
// on every chain, because then nothing is known about the funds at all.
func (s *Services) unifyBalancePhase(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) (map[string]interface{}, string, *types.Error) {
	settlement := s.cfg.Chains.Settlement
	retryPolicy := s.cfg.Saga.Collaborator.Policy()

	balances := make(map[string]uint64, len(s.cfg.Chains.Supported))
	failedReads := 0
	for _, chain := range s.cfg.Chains.Supported {
		amount, err := s.readBalance(ctx, retryPolicy, request.OldWalletRef, chain)
		if err != nil {
			// An unreadable chain contributes zero to the sweep.
			failedReads++
			log.Ctx(ctx).Warn().Err(err).Str("chain", chain).Str("requestId", request.RequestId).
				Msg("balance read failed, treating chain balance as zero")
			continue
		}
		balances[chain] = amount
	}
	if failedReads == len(s.cfg.Chains.Supported) {
		return nil, "", types.NewErrorWithMsg(
			http.StatusServiceUnavailable, types.CollaboratorUnavailable,
			"balance provider unreachable on every supported chain",
		)
	}

	var (
		transferRefs []string
		warnings     []string
	)
	confirmedTotal := balances[settlement]
	for _, chain := range s.cfg.Chains.Supported {
		if chain == settlement {
			continue
		}
		amount := balances[chain]
		if amount == 0 {
			continue
		}

		ref, transferErr := s.sendTransfer(
			ctx, retryPolicy, request.OldWalletRef, request.OldWalletRef, chain, settlement, amount,
		)
		if transferErr != nil {
			warnings = append(warnings, fmt.Sprintf("sweep from %s failed: %s", chain, transferErr.Error()))
			log.Ctx(ctx).Warn().Err(transferErr).Str("chain", chain).Str("requestId", request.RequestId).
				Msg("cross-chain sweep transfer failed")
			continue
		}
		transferRefs = append(transferRefs, ref)

		if confirmErr := s.awaitTransferConfirmation(ctx, ref); confirmErr != nil {
			warnings = append(warnings, fmt.Sprintf("sweep %s from %s unconfirmed: %s", ref, chain, confirmErr.Error()))
			log.Ctx(ctx).Warn().Err(confirmErr).Str("transferRef", ref).Str("chain", chain).
				Msg("sweep transfer did not confirm within the polling window")
			continue
		}
		confirmedTotal += amount
	}

	// Re-read the settlement balance so the migration amount reflects what
	// actually landed rather than what was expected to.
	totalAmount, err := s.readBalance(ctx, retryPolicy, request.OldWalletRef, settlement)
	if err != nil {
		totalAmount = confirmedTotal
		warnings = append(warnings, "settlement balance re-read failed, using the confirmed sweep total")
		log.Ctx(ctx).Warn().Err(err).Str("requestId", request.RequestId).
			Msg("failed to re-read settlement balance after unification")
	}

	metadata := model.SagaMetadata{
		TotalAmount:     totalAmount,
		SettlementChain: settlement,
		TransferRefs:    transferRefs,
	}
	if err := s.DbClient.UpdateSagaMetadata(ctx, execution.ExecutionId, metadata); err != nil {
		return nil, "", types.NewInternalServiceError(err)
	}
	execution.Metadata = metadata

	chainBalances := make(map[string]interface{}, len(balances))
	for chain, amount := range balances {
		chainBalances[chain] = amount
	}
	data := map[string]interface{}{
		"chain_balances": chainBalances,
		"transfer_refs":  transferRefs,
		"total_amount":   totalAmount,
	}
	return data, strings.Join(warnings, "; "), nil
}

// migrateFundsPhase moves the unified balance from the frozen wallet to the
// declared new owner. A zero balance or a policy rejection is fatal; a
// transient transfer fault degrades to a synthetic reference so the saga can
// still hand the identity over while operators reconcile the funds manually.
func (s *Services) migrateFundsPhase(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) (map[string]interface{}, string, *types.Error) {
	totalAmount := execution.Metadata.TotalAmount
	if totalAmount == 0 {
		return nil, "", types.NewErrorWithMsg(
			http.StatusPreconditionFailed, types.PreconditionFailed,
			"no balance available to migrate after unification",
		)
	}

	settlement := execution.Metadata.SettlementChain
	retryPolicy := s.cfg.Saga.Collaborator.Policy()
	data := map[string]interface{}{
		"amount": totalAmount,
	}
	var note string

	if s.Clients.Policy != nil {
		name := fmt.Sprintf("recovery-%s", request.RequestId)
		policyId, policyErr := s.createRecoveryPolicy(ctx, request, name, totalAmount)
		if policyErr != nil {
			note = "policy creation failed, migrating without a gateway-side cap"
			log.Ctx(ctx).Warn().Err(policyErr).Str("requestId", request.RequestId).
				Msg("failed to create migration policy")
		} else {
			data["policy_id"] = policyId
		}
	}

	ref, transferErr := s.sendTransfer(
		ctx, retryPolicy, request.OldWalletRef, request.NewOwnerAddress, settlement, settlement, totalAmount,
	)
	if transferErr != nil {
		if transferErr.StatusCode == http.StatusForbidden {
			return nil, "", types.NewError(http.StatusForbidden, types.PolicyViolation, transferErr.Err)
		}
		// Record a deterministic placeholder so the migration is auditable
		// even though no real transfer reference exists.
		ref = syntheticTransferRef(execution.ExecutionId)
		data["synthetic"] = true
		if note != "" {
			note += "; "
		}
		note += "migration transfer degraded, synthetic reference recorded for manual reconciliation"
		log.Ctx(ctx).Warn().Err(transferErr).Str("requestId", request.RequestId).
			Msg("migration transfer failed, recording synthetic reference")
	} else {
		metadata := execution.Metadata
		metadata.TransferRefs = append(metadata.TransferRefs, ref)
		if err := s.DbClient.UpdateSagaMetadata(ctx, execution.ExecutionId, metadata); err != nil {
			return nil, "", types.NewInternalServiceError(err)
		}
		execution.Metadata = metadata
	}
	data["transfer_ref"] = ref

	return data, note, nil
}

// updateEnsPhase rebinds the human-readable identity to the new owner. The
// binding is reconcilable out of band, so this phase never fails the saga.
func (s *Services) updateEnsPhase(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) (map[string]interface{}, string, *types.Error) {
	retryPolicy := s.cfg.Saga.Collaborator.Policy()
	data := map[string]interface{}{
		"identity":    request.Identity,
		"new_address": request.NewOwnerAddress,
	}

	stopTimer := metrics.StartCollaboratorRequestTimer("naming")
	updateRef, err := utils.Retry(ctx, retryPolicy, isRetriableCollaboratorError,
		func(ctx context.Context) (string, error) {
			ref, apiErr := s.Clients.Naming.UpdateNameBinding(ctx, request.Identity, request.NewOwnerAddress)
			if apiErr != nil {
				return "", apiErr
			}
			return ref, nil
		},
	)
	if err != nil {
		stopTimer(metrics.Error)
		log.Ctx(ctx).Warn().Err(err).Str("identity", request.Identity).
			Msg("name binding update failed, identity record must be reconciled manually")
		return data, "name binding update failed, identity record must be reconciled manually", nil
	}
	stopTimer(metrics.Success)

	data["update_ref"] = updateRef
	return data, "", nil
}

// finalizePhase writes the wallet lookup tables that downstream systems use
// to resolve old wallet references to the new owner. The writes are
// idempotent upserts; a rerun after a crash is a no-op.
func (s *Services) finalizePhase(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) (map[string]interface{}, string, *types.Error) {
	err := s.DbClient.FinalizeWalletRecovery(
		ctx, request.OldWalletRef, request.NewOwnerAddress, execution.ExecutionId,
	)
	if err != nil {
		return nil, "", types.NewInternalServiceError(err)
	}

	data := map[string]interface{}{
		"old_wallet_ref":    request.OldWalletRef,
		"new_owner_address": request.NewOwnerAddress,
	}
	return data, "", nil
}

func (s *Services) readBalance(
	ctx context.Context, retryPolicy utils.RetryPolicy, walletRef, chain string,
) (uint64, error) {
	stopTimer := metrics.StartCollaboratorRequestTimer("balance")
	amount, err := utils.Retry(ctx, retryPolicy, isRetriableCollaboratorError,
		func(ctx context.Context) (uint64, error) {
			amount, apiErr := s.Clients.Balance.GetBalance(ctx, walletRef, chain)
			if apiErr != nil {
				return 0, apiErr
			}
			return amount, nil
		},
	)
	if err != nil {
		stopTimer(metrics.Error)
		return 0, err
	}
	stopTimer(metrics.Success)
	return amount, nil
}

func (s *Services) sendTransfer(
	ctx context.Context, retryPolicy utils.RetryPolicy,
	walletRef, recipient, fromChain, toChain string, amount uint64,
) (string, *types.Error) {
	stopTimer := metrics.StartCollaboratorRequestTimer("router")
	ref, err := utils.Retry(ctx, retryPolicy, isRetriableCollaboratorError,
		func(ctx context.Context) (string, error) {
			ref, apiErr := s.Clients.Router.Transfer(ctx, walletRef, recipient, fromChain, toChain, amount)
			if apiErr != nil {
				return "", apiErr
			}
			return ref, nil
		},
	)
	if err != nil {
		stopTimer(metrics.Error)
		var apiErr *types.Error
		if errors.As(err, &apiErr) {
			return "", apiErr
		}
		return "", types.NewInternalServiceError(err)
	}
	stopTimer(metrics.Success)
	return ref, nil
}

// awaitTransferConfirmation polls the router until the transfer confirms,
// fails, or the bounded polling window is exhausted.
func (s *Services) awaitTransferConfirmation(ctx context.Context, transferRef string) error {
	return utils.Poll(ctx, s.cfg.Saga.Confirmation.Policy(), func(ctx context.Context) (bool, error) {
		state, apiErr := s.Clients.Router.GetTransferState(ctx, transferRef)
		if apiErr != nil {
			if types.IsRetriableCode(apiErr.ErrorCode) {
				return false, nil
			}
			return false, apiErr
		}
		switch state {
		case router.TransferConfirmed:
			return true, nil
		case router.TransferFailed:
			return false, fmt.Errorf("transfer %s reported FAILED by the funds router", transferRef)
		default:
			return false, nil
		}
	})
}

func (s *Services) createRecoveryPolicy(
	ctx context.Context, request *model.RecoveryRequestDocument, name string, amountCap uint64,
) (string, error) {
	retryPolicy := s.cfg.Saga.Collaborator.Policy()
	stopTimer := metrics.StartCollaboratorRequestTimer("policy")
	policyId, err := utils.Retry(ctx, retryPolicy, isRetriableCollaboratorError,
		func(ctx context.Context) (string, error) {
			policyId, apiErr := s.Clients.Policy.CreatePolicy(ctx, name, policy.PolicyRequest{
				AmountCap:         amountCap,
				AllowedRecipients: []string{request.NewOwnerAddress},
				RequiredApprovals: request.Threshold,
			})
			if apiErr != nil {
				return "", apiErr
			}
			return policyId, nil
		},
	)
	if err != nil {
		stopTimer(metrics.Error)
		return "", err
	}
	stopTimer(metrics.Success)
	return policyId, nil
}

func syntheticTransferRef(executionId string) string {
	return fmt.Sprintf("synthetic:%s:%s", executionId, types.PhaseMigrateFunds.ToString())
}
