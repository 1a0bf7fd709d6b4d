package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/novavault/recovery-orchestrator/internal/db"
	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/observability/metrics"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/novavault/recovery-orchestrator/internal/utils"
)

// phaseFunc runs one saga phase. A nil error means the phase succeeded, with
// the returned payload and optional warning note checkpointed. An error with
// code INTERNAL_SERVICE_ERROR is an infrastructure fault: it propagates so the
// queue redelivers the message and the saga resumes at the same phase. Any
// other error is a business-level failure and drives the saga to FAILED.
type phaseFunc func(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) (map[string]interface{}, string, *types.Error)

// ExecuteRecovery drives the recovery saga for an approved request. It is
// safe to call repeatedly for the same request: the start lock guarantees at
// most one execution per approval cycle, and an interrupted execution is
// resumed from its last checkpoint rather than restarted.
func (s *Services) ExecuteRecovery(ctx context.Context, requestId string) *types.Error {
	request, err := s.DbClient.FindRecoveryRequestById(ctx, requestId)
	if err != nil {
		if db.IsNotFoundError(err) {
			log.Ctx(ctx).Error().Str("requestId", requestId).Msg("received execution event for unknown recovery request")
			return types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "recovery request not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", requestId).Msg("error while fetching recovery request")
		return types.NewInternalServiceError(err)
	}

	if request.Status.IsTerminal() {
		log.Ctx(ctx).Debug().Str("requestId", requestId).Str("status", request.Status.ToString()).
			Msg("recovery request already in a terminal state, skipping execution event")
		return nil
	}
	if request.Status == types.RecoveryPending {
		log.Ctx(ctx).Error().Str("requestId", requestId).
			Msg("received execution event for a request below the approval threshold")
		return types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "recovery request has not reached the approval threshold")
	}

	execution, findErr := s.DbClient.FindActiveSagaExecutionByRequestId(ctx, requestId)
	if findErr != nil {
		if !db.IsNotFoundError(findErr) {
			log.Ctx(ctx).Error().Err(findErr).Str("requestId", requestId).Msg("error while looking up active saga execution")
			return types.NewInternalServiceError(findErr)
		}
		execution, findErr = s.startSagaExecution(ctx, request)
		if findErr != nil {
			return types.NewInternalServiceError(findErr)
		}
		if execution == nil {
			// The start lock was already consumed and no execution is
			// active: a previous run reached a terminal state.
			return nil
		}
	} else {
		log.Ctx(ctx).Info().Str("requestId", requestId).Str("executionId", execution.ExecutionId).
			Str("state", execution.State.ToString()).Msg("resuming interrupted saga execution")
	}

	return s.runSaga(ctx, request, execution)
}

func (s *Services) startSagaExecution(
	ctx context.Context, request *model.RecoveryRequestDocument,
) (*model.SagaExecutionDocument, error) {
	execution := &model.SagaExecutionDocument{
		ExecutionId:  uuid.NewString(),
		RequestId:    request.RequestId,
		State:        types.SagaInitiated,
		Active:       true,
		PhaseResults: make(map[string]model.PhaseResultDocument),
		Metadata: model.SagaMetadata{
			SettlementChain: s.cfg.Chains.Settlement,
		},
		StartedAt: time.Now().UTC(),
	}

	// The start lock and the execution record are written in one transaction:
	// a fault here leaves the lock unconsumed and the redelivered event
	// retries the start from scratch.
	if err := s.DbClient.CreateSagaExecution(ctx, execution); err != nil {
		if db.IsNotFoundError(err) {
			log.Ctx(ctx).Debug().Str("requestId", request.RequestId).
				Msg("saga start lock already consumed, skipping duplicate execution event")
			return nil, nil
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", request.RequestId).Msg("error while creating saga execution")
		return nil, err
	}

	err := s.DbClient.TransitionRecoveryStatus(
		ctx, request.RequestId, types.RecoveryExecuting, utils.QualifiedStatesToExecuting(),
	)
	if err != nil && !db.IsNotFoundError(err) {
		log.Ctx(ctx).Error().Err(err).Str("requestId", request.RequestId).
			Msg("error while transitioning recovery request to EXECUTING")
		return nil, err
	}

	log.Ctx(ctx).Info().Str("requestId", request.RequestId).Str("executionId", execution.ExecutionId).
		Msg("saga execution started")
	return execution, nil
}

func (s *Services) runSaga(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) *types.Error {
	if execution.State.IsTerminal() {
		return nil
	}

	steps := []struct {
		name types.PhaseName
		run  phaseFunc
	}{
		{types.PhaseFreezeWallet, s.freezeWalletPhase},
		{types.PhaseUnifyBalance, s.unifyBalancePhase},
		{types.PhaseMigrateFunds, s.migrateFundsPhase},
		{types.PhaseUpdateEns, s.updateEnsPhase},
		{types.PhaseFinalize, s.finalizePhase},
	}

	for _, step := range steps {
		if execution.IsPhaseCompleted(step.name) {
			log.Ctx(ctx).Debug().Str("executionId", execution.ExecutionId).Str("phase", step.name.ToString()).
				Msg("phase already checkpointed, skipping")
			continue
		}

		stopTimer := metrics.StartSagaPhaseDurationTimer(step.name.ToString())
		startedAt := time.Now().UTC()
		data, note, phaseErr := step.run(ctx, request, execution)
		completedAt := time.Now().UTC()

		if phaseErr != nil {
			stopTimer(metrics.Error)
			if phaseErr.ErrorCode == types.InternalServiceError {
				// Infrastructure fault: leave the phase unrecorded so a
				// redelivered event reruns it.
				log.Ctx(ctx).Error().Err(phaseErr).Str("executionId", execution.ExecutionId).
					Str("phase", step.name.ToString()).Msg("phase hit an infrastructure fault, deferring to redelivery")
				return phaseErr
			}
			return s.failSaga(ctx, request, execution, step.name, startedAt, phaseErr)
		}

		result := model.PhaseResultDocument{
			Status:      types.PhaseSuccess,
			StartedAt:   startedAt,
			CompletedAt: &completedAt,
			Note:        note,
			Data:        data,
		}
		if err := s.DbClient.SavePhaseResult(ctx, execution.ExecutionId, step.name, result); err != nil {
			stopTimer(metrics.Error)
			log.Ctx(ctx).Error().Err(err).Str("executionId", execution.ExecutionId).
				Str("phase", step.name.ToString()).Msg("error while checkpointing phase result")
			return types.NewInternalServiceError(err)
		}
		execution.PhaseResults[step.name.ToString()] = result

		nextState := utils.SagaStateForPhase(step.name)
		if nextState == types.SagaCompleted {
			if err := s.completeSaga(ctx, request, execution); err != nil {
				stopTimer(metrics.Error)
				return err
			}
		} else {
			err := s.DbClient.TransitionSagaState(
				ctx, execution.ExecutionId, nextState, utils.QualifiedStatesToSagaState(nextState),
			)
			if err != nil && !db.IsNotFoundError(err) {
				stopTimer(metrics.Error)
				log.Ctx(ctx).Error().Err(err).Str("executionId", execution.ExecutionId).
					Str("state", nextState.ToString()).Msg("error while advancing saga state")
				return types.NewInternalServiceError(err)
			}
			execution.State = nextState
		}
		stopTimer(metrics.Success)

		if note != "" {
			log.Ctx(ctx).Warn().Str("executionId", execution.ExecutionId).Str("phase", step.name.ToString()).
				Str("note", note).Msg("phase completed with a warning")
		}
	}

	return nil
}

func (s *Services) completeSaga(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
) *types.Error {
	if err := s.DbClient.MarkSagaCompleted(ctx, execution.ExecutionId); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("executionId", execution.ExecutionId).Msg("error while marking saga completed")
		return types.NewInternalServiceError(err)
	}
	execution.State = types.SagaCompleted
	execution.Active = false

	err := s.DbClient.TransitionRecoveryStatus(
		ctx, request.RequestId, types.RecoveryCompleted, utils.QualifiedStatesToCompleted(),
	)
	if err != nil && !db.IsNotFoundError(err) {
		log.Ctx(ctx).Error().Err(err).Str("requestId", request.RequestId).
			Msg("error while transitioning recovery request to COMPLETED")
		return types.NewInternalServiceError(err)
	}

	metrics.RecordSagaOutcome("completed")
	log.Ctx(ctx).Info().Str("requestId", request.RequestId).Str("executionId", execution.ExecutionId).
		Msg("recovery saga completed")
	return nil
}

// failSaga records the failed phase, drives the execution and the request to
// their FAILED states and clears the public transfer references. It returns
// nil: a business-level failure is a recorded terminal outcome, not a reason
// to redeliver the triggering event.
func (s *Services) failSaga(
	ctx context.Context, request *model.RecoveryRequestDocument, execution *model.SagaExecutionDocument,
	phase types.PhaseName, startedAt time.Time, phaseErr *types.Error,
) *types.Error {
	completedAt := time.Now().UTC()
	result := model.PhaseResultDocument{
		Status:      types.PhaseFailed,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Error:       phaseErr.Error(),
	}
	if err := s.DbClient.SavePhaseResult(ctx, execution.ExecutionId, phase, result); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("executionId", execution.ExecutionId).
			Str("phase", phase.ToString()).Msg("error while recording failed phase result")
		return types.NewInternalServiceError(err)
	}

	if err := s.DbClient.MarkSagaFailed(ctx, execution.ExecutionId, phaseErr.Error()); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("executionId", execution.ExecutionId).Msg("error while marking saga failed")
		return types.NewInternalServiceError(err)
	}
	execution.State = types.SagaFailed
	execution.Active = false

	err := s.DbClient.TransitionRecoveryStatus(
		ctx, request.RequestId, types.RecoveryFailed, utils.QualifiedStatesToFailed(),
	)
	if err != nil && !db.IsNotFoundError(err) {
		log.Ctx(ctx).Error().Err(err).Str("requestId", request.RequestId).
			Msg("error while transitioning recovery request to FAILED")
		return types.NewInternalServiceError(err)
	}

	metrics.RecordSagaOutcome("failed")
	log.Ctx(ctx).Error().Err(phaseErr).Str("requestId", request.RequestId).
		Str("executionId", execution.ExecutionId).Str("phase", phase.ToString()).
		Msg("recovery saga failed")
	return nil
}
