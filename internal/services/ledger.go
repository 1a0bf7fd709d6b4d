package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/novavault/recovery-orchestrator/internal/db"
	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/observability/metrics"
	queueClient "github.com/novavault/recovery-orchestrator/internal/queue/client"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/novavault/recovery-orchestrator/internal/utils"
)

const maxGuardians = 50

type RecoveryRequestPublic struct {
	RequestId         string   `json:"request_id"`
	Identity          string   `json:"identity"`
	OldWalletRef      string   `json:"old_wallet_ref"`
	NewOwnerAddress   string   `json:"new_owner_address"`
	Guardians         []string `json:"guardians"`
	Threshold         uint64   `json:"threshold"`
	ApprovalsReceived uint64   `json:"approvals_received"`
	ThresholdMet      bool     `json:"threshold_met"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"created_at"`
}

type ApprovalResultPublic struct {
	RequestId         string `json:"request_id"`
	ApprovalsReceived uint64 `json:"approvals_received"`
	Threshold         uint64 `json:"threshold"`
	ThresholdMet      bool   `json:"threshold_met"`
	Status            string `json:"status"`
}

type PhaseResultPublic struct {
	Phase       string                 `json:"phase"`
	Status      string                 `json:"status"`
	StartedAt   string                 `json:"started_at"`
	CompletedAt string                 `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Note        string                 `json:"note,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type SagaExecutionPublic struct {
	ExecutionId     string              `json:"execution_id"`
	State           string              `json:"state"`
	CurrentPhase    string              `json:"current_phase,omitempty"`
	TotalAmount     uint64              `json:"total_amount"`
	SettlementChain string              `json:"settlement_chain,omitempty"`
	TransferRefs    []string            `json:"transfer_refs"`
	PhaseResults    []PhaseResultPublic `json:"phase_results"`
	StartedAt       string              `json:"started_at"`
	CompletedAt     string              `json:"completed_at,omitempty"`
	Error           string              `json:"error,omitempty"`
}

type RecoveryStatusPublic struct {
	Request   *RecoveryRequestPublic `json:"request"`
	Execution *SagaExecutionPublic   `json:"execution,omitempty"`
}

// RegisterRecovery validates and persists a new recovery request in the
// PENDING state. The request id is derived deterministically from the
// identity, so a second registration for the same identity is rejected
// unless the previous attempt ended in FAILED.
func (s *Services) RegisterRecovery(
	ctx context.Context, identity, oldWalletRef, newOwnerAddress string,
	guardians []string, threshold uint64,
) (*RecoveryRequestPublic, *types.Error) {
	if identity == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "identity cannot be empty")
	}
	if oldWalletRef == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "old_wallet_ref cannot be empty")
	}
	if !utils.IsValidAddress(newOwnerAddress) {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "new_owner_address is not a valid address")
	}
	for _, guardian := range guardians {
		if !utils.IsValidAddress(guardian) {
			return nil, types.NewErrorWithMsg(
				http.StatusBadRequest, types.ValidationError,
				fmt.Sprintf("guardian %s is not a valid address", guardian),
			)
		}
	}

	normalized := make([]string, 0, len(guardians))
	for _, guardian := range guardians {
		normalized = append(normalized, utils.NormalizeAddress(guardian))
	}
	normalized = utils.Deduplicate(normalized)
	if len(normalized) == 0 {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "guardian set cannot be empty")
	}
	if len(normalized) > maxGuardians {
		return nil, types.NewErrorWithMsg(
			http.StatusBadRequest, types.ValidationError,
			fmt.Sprintf("guardian set cannot exceed %d addresses", maxGuardians),
		)
	}
	if threshold < 1 || threshold > uint64(len(normalized)) {
		return nil, types.NewErrorWithMsg(
			http.StatusBadRequest, types.ValidationError,
			"threshold must be between 1 and the number of distinct guardians",
		)
	}

	requestId := utils.DeriveRequestId(identity)
	newOwnerAddress = utils.NormalizeAddress(newOwnerAddress)

	err := s.DbClient.SaveRecoveryRequest(ctx, requestId, identity, oldWalletRef, newOwnerAddress, normalized, threshold)
	if err != nil {
		if db.IsDuplicateKeyError(err) {
			log.Ctx(ctx).Warn().Str("requestId", requestId).Msg("recovery request already registered for identity")
			return nil, types.NewErrorWithMsg(
				http.StatusConflict, types.AlreadyExists,
				"a recovery request for this identity is already in progress or completed",
			)
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", requestId).Msg("error while saving recovery request")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to register recovery request")
	}

	return &RecoveryRequestPublic{
		RequestId:       requestId,
		Identity:        identity,
		OldWalletRef:    oldWalletRef,
		NewOwnerAddress: newOwnerAddress,
		Guardians:       normalized,
		Threshold:       threshold,
		Status:          types.RecoveryPending.ToString(),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SubmitApproval records one guardian's approval. Approvals are idempotent
// per guardian; the guardian whose approval makes the count reach the
// threshold also flips the request to APPROVED and emits the execution
// event, exactly once across concurrent submissions.
func (s *Services) SubmitApproval(
	ctx context.Context, requestId, guardianAddress string,
) (*ApprovalResultPublic, *types.Error) {
	if !utils.IsValidAddress(guardianAddress) {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "guardian_address is not a valid address")
	}
	guardianAddress = utils.NormalizeAddress(guardianAddress)

	request, err := s.DbClient.FindRecoveryRequestById(ctx, requestId)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "recovery request not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", requestId).Msg("error while fetching recovery request")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to fetch recovery request")
	}

	if !utils.Contains(request.Guardians, guardianAddress) {
		metrics.RecordApproval("rejected_not_a_guardian")
		return nil, types.NewErrorWithMsg(
			http.StatusForbidden, types.NotAGuardian,
			"address is not a guardian for this recovery request",
		)
	}

	updated, err := s.DbClient.AddApproval(ctx, requestId, guardianAddress)
	if err != nil {
		if db.IsAlreadyApprovedError(err) {
			// Duplicate submission; report the current state unchanged.
			metrics.RecordApproval("duplicate")
			return &ApprovalResultPublic{
				RequestId:         request.RequestId,
				ApprovalsReceived: request.ApprovalCount(),
				Threshold:         request.Threshold,
				ThresholdMet:      request.ThresholdMet(),
				Status:            request.Status.ToString(),
			}, nil
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", requestId).Msg("error while recording approval")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to record approval")
	}

	result := &ApprovalResultPublic{
		RequestId:         updated.RequestId,
		ApprovalsReceived: updated.ApprovalCount(),
		Threshold:         updated.Threshold,
		ThresholdMet:      updated.ThresholdMet(),
		Status:            updated.Status.ToString(),
	}
	metrics.RecordApproval("accepted")

	// The append is serialized per document, so exactly one submission
	// observes the count land on the threshold.
	if updated.ApprovalCount() == updated.Threshold && updated.Status == types.RecoveryPending {
		s.handleThresholdCrossed(ctx, updated, result)
	}

	return result, nil
}

func (s *Services) handleThresholdCrossed(
	ctx context.Context, request *model.RecoveryRequestDocument, result *ApprovalResultPublic,
) {
	err := s.DbClient.TransitionRecoveryStatus(
		ctx, request.RequestId, types.RecoveryApproved, utils.QualifiedStatesToApproved(),
	)
	if err != nil {
		if db.IsNotFoundError(err) {
			// Already transitioned; nothing to emit.
			log.Ctx(ctx).Debug().Str("requestId", request.RequestId).Msg("recovery request already left PENDING")
			return
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", request.RequestId).
			Msg("error while transitioning recovery request to APPROVED")
		return
	}
	result.Status = types.RecoveryApproved.ToString()

	event := queueClient.NewRecoveryApprovedEvent(request.RequestId, request.Identity)
	if s.emitter == nil {
		log.Ctx(ctx).Error().Str("requestId", request.RequestId).
			Msg("no event emitter configured, recovery saga will not start automatically")
		s.parkApprovedEvent(ctx, event)
		return
	}
	if emitErr := s.emitter.EmitRecoveryApprovedEvent(ctx, event); emitErr != nil {
		// The request stays APPROVED with the event unsent; park it so the
		// replay tooling can publish it later.
		log.Ctx(ctx).Error().Err(emitErr).Str("requestId", request.RequestId).
			Msg("error while emitting recovery approved event")
		s.parkApprovedEvent(ctx, event)
		return
	}
	log.Ctx(ctx).Info().Str("requestId", request.RequestId).
		Msg("approval threshold crossed, recovery execution event emitted")
}

// parkApprovedEvent stores an execution event that could not be published
// into the unprocessable message buffer, where ReplayUnprocessableMessages
// picks it up.
func (s *Services) parkApprovedEvent(ctx context.Context, event queueClient.RecoveryApprovedEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("requestId", event.RequestId).
			Msg("error while marshalling unsent recovery approved event")
		return
	}
	if err := s.DbClient.SaveUnprocessableMessage(ctx, string(body), uuid.NewString()); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("requestId", event.RequestId).
			Msg("error while parking unsent recovery approved event")
	}
}

// GetRecoveryStatus returns the ledger view of a request joined with its most
// recent saga execution. Exactly one of requestId and identity must be set;
// identity lookups derive the request id deterministically.
func (s *Services) GetRecoveryStatus(
	ctx context.Context, requestId, identity string,
) (*RecoveryStatusPublic, *types.Error) {
	if requestId == "" && identity == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "either request_id or identity is required")
	}
	if requestId == "" {
		requestId = utils.DeriveRequestId(identity)
	}

	request, err := s.DbClient.FindRecoveryRequestById(ctx, requestId)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "recovery request not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", requestId).Msg("error while fetching recovery request")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to fetch recovery request")
	}

	status := &RecoveryStatusPublic{
		Request: &RecoveryRequestPublic{
			RequestId:         request.RequestId,
			Identity:          request.Identity,
			OldWalletRef:      request.OldWalletRef,
			NewOwnerAddress:   request.NewOwnerAddress,
			Guardians:         request.Guardians,
			Threshold:         request.Threshold,
			ApprovalsReceived: request.ApprovalCount(),
			ThresholdMet:      request.ThresholdMet(),
			Status:            request.Status.ToString(),
			CreatedAt:         request.CreatedAt.UTC().Format(time.RFC3339),
		},
	}

	execution, err := s.DbClient.FindLatestSagaExecutionByRequestId(ctx, requestId)
	if err != nil {
		if db.IsNotFoundError(err) {
			return status, nil
		}
		log.Ctx(ctx).Error().Err(err).Str("requestId", requestId).Msg("error while fetching saga execution")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to fetch saga execution")
	}
	status.Execution = toSagaExecutionPublic(execution)

	return status, nil
}

func toSagaExecutionPublic(execution *model.SagaExecutionDocument) *SagaExecutionPublic {
	public := &SagaExecutionPublic{
		ExecutionId:     execution.ExecutionId,
		State:           execution.State.ToString(),
		TotalAmount:     execution.Metadata.TotalAmount,
		SettlementChain: execution.Metadata.SettlementChain,
		TransferRefs:    execution.Metadata.TransferRefs,
		PhaseResults:    []PhaseResultPublic{},
		StartedAt:       execution.StartedAt.UTC().Format(time.RFC3339),
		Error:           execution.Error,
	}
	if public.TransferRefs == nil {
		public.TransferRefs = []string{}
	}
	if execution.CompletedAt != nil {
		public.CompletedAt = execution.CompletedAt.UTC().Format(time.RFC3339)
	}
	for _, phase := range types.PhaseOrder() {
		result, ok := execution.PhaseResult(phase)
		if !ok {
			if public.CurrentPhase == "" && !execution.State.IsTerminal() {
				public.CurrentPhase = phase.ToString()
			}
			continue
		}
		phasePublic := PhaseResultPublic{
			Phase:     phase.ToString(),
			Status:    result.Status.ToString(),
			StartedAt: result.StartedAt.UTC().Format(time.RFC3339),
			Error:     result.Error,
			Note:      result.Note,
			Data:      result.Data,
		}
		if result.CompletedAt != nil {
			phasePublic.CompletedAt = result.CompletedAt.UTC().Format(time.RFC3339)
		}
		public.PhaseResults = append(public.PhaseResults, phasePublic)
		if result.Status != types.PhaseSuccess && public.CurrentPhase == "" && !execution.State.IsTerminal() {
			public.CurrentPhase = phase.ToString()
		}
	}
	return public
}
