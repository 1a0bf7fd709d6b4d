package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/novavault/recovery-orchestrator/internal/utils"
)

type RegisterRecoveryRequestPayload struct {
	Identity        string   `json:"identity"`
	OldWalletRef    string   `json:"old_wallet_ref"`
	NewOwnerAddress string   `json:"new_owner_address"`
	Guardians       []string `json:"guardians"`
	Threshold       uint64   `json:"threshold"`
}

type SubmitApprovalRequestPayload struct {
	RequestId       string `json:"request_id"`
	GuardianAddress string `json:"guardian_address"`
}

func parseRegisterRecoveryPayload(request *http.Request) (*RegisterRecoveryRequestPayload, *types.Error) {
	payload := &RegisterRecoveryRequestPayload{}
	err := json.NewDecoder(request.Body).Decode(payload)
	if err != nil {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "invalid request payload")
	}
	return payload, nil
}

func parseSubmitApprovalPayload(request *http.Request) (*SubmitApprovalRequestPayload, *types.Error) {
	payload := &SubmitApprovalRequestPayload{}
	err := json.NewDecoder(request.Body).Decode(payload)
	if err != nil {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "invalid request payload")
	}
	if payload.RequestId == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "request_id is required")
	}
	if !utils.IsValidAddress(payload.GuardianAddress) {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "invalid guardian address")
	}
	return payload, nil
}

// RegisterRecovery registers a new guardian-threshold recovery request for an
// identity. The request id is derived from the identity; registering twice
// for the same identity returns 409 unless the earlier attempt failed.
func (h *Handler) RegisterRecovery(request *http.Request) (*Result, *types.Error) {
	payload, err := parseRegisterRecoveryPayload(request)
	if err != nil {
		return nil, err
	}
	recovery, registerErr := h.services.RegisterRecovery(
		request.Context(), payload.Identity, payload.OldWalletRef,
		payload.NewOwnerAddress, payload.Guardians, payload.Threshold,
	)
	if registerErr != nil {
		return nil, registerErr
	}

	return NewResultWithStatus(recovery, http.StatusCreated), nil
}

// SubmitApproval records one guardian's approval for a pending recovery.
// Duplicate approvals from the same guardian are accepted and do not change
// the count.
func (h *Handler) SubmitApproval(request *http.Request) (*Result, *types.Error) {
	payload, err := parseSubmitApprovalPayload(request)
	if err != nil {
		return nil, err
	}
	approval, approveErr := h.services.SubmitApproval(
		request.Context(), payload.RequestId, payload.GuardianAddress,
	)
	if approveErr != nil {
		return nil, approveErr
	}

	return NewResult(approval), nil
}

// GetRecoveryStatus returns the ledger view of a recovery request joined with
// its most recent saga execution. Lookup is by request_id or identity.
func (h *Handler) GetRecoveryStatus(request *http.Request) (*Result, *types.Error) {
	requestId := request.URL.Query().Get("request_id")
	identity := request.URL.Query().Get("identity")

	status, err := h.services.GetRecoveryStatus(request.Context(), requestId, identity)
	if err != nil {
		return nil, err
	}

	return NewResult(status), nil
}
