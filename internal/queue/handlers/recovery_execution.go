package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	queueClient "github.com/novavault/recovery-orchestrator/internal/queue/client"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/rs/zerolog/log"
)

// RecoveryApprovedHandler consumes a threshold-crossed signal and drives the
// recovery saga for the request. Saga-level failures are terminal states
// recorded in the execution store, not handler errors; only infrastructure
// faults propagate so the message is redelivered and the saga resumed.
func (h *QueueHandler) RecoveryApprovedHandler(ctx context.Context, messageBody string) *types.Error {
	var event queueClient.RecoveryApprovedEvent
	err := json.Unmarshal([]byte(messageBody), &event)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal the message body into RecoveryApprovedEvent")
		return types.NewError(http.StatusBadRequest, types.BadRequest, err)
	}

	if event.EventType != queueClient.RecoveryApprovedEventType {
		log.Ctx(ctx).Error().Str("eventType", event.EventType).Msg("unexpected event type on recovery execution queue")
		return types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "unexpected event type")
	}

	return h.Services.ExecuteRecovery(ctx, event.RequestId)
}
