package model

import (
	"time"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

// PhaseResultDocument is the checkpoint for a single saga phase. Data holds
// the phase-specific payload, e.g. collected transfer references. A synthetic
// reference recorded after a degraded transfer is tagged with
// Data["synthetic"] = true and must never be surfaced as a real transaction id.
type PhaseResultDocument struct {
	Status      types.PhaseStatus      `bson:"status"`
	StartedAt   time.Time              `bson:"started_at"`
	CompletedAt *time.Time             `bson:"completed_at,omitempty"`
	Error       string                 `bson:"error,omitempty"`
	Note        string                 `bson:"note,omitempty"`
	Data        map[string]interface{} `bson:"data,omitempty"`
}

// SagaMetadata carries the cross-phase execution context: the amount observed
// on the settlement chain after unification and the transfer references the
// saga has issued so far. TransferRefs is the public-facing list and is
// cleared on fatal failure; the per-phase audit data is retained.
type SagaMetadata struct {
	TotalAmount     uint64   `bson:"total_amount"`
	SettlementChain string   `bson:"settlement_chain"`
	TransferRefs    []string `bson:"transfer_refs,omitempty"`
}

// SagaExecutionDocument is the durable record of one saga run. At most one
// active (non-terminal) execution may exist per request id; executions are
// never deleted and serve as the audit trail.
type SagaExecutionDocument struct {
	ExecutionId  string                         `bson:"_id"` // Primary key, generated uuid
	RequestId    string                         `bson:"request_id"`
	State        types.SagaState                `bson:"state"`
	Active       bool                           `bson:"active"`
	PhaseResults map[string]PhaseResultDocument `bson:"phase_results"`
	Metadata     SagaMetadata                   `bson:"metadata"`
	StartedAt    time.Time                      `bson:"started_at"`
	CompletedAt  *time.Time                     `bson:"completed_at,omitempty"`
	Error        string                         `bson:"error,omitempty"`
}

// PhaseResult returns the recorded result for a phase, if any.
func (d *SagaExecutionDocument) PhaseResult(phase types.PhaseName) (PhaseResultDocument, bool) {
	result, ok := d.PhaseResults[phase.ToString()]
	return result, ok
}

// IsPhaseCompleted reports whether the phase already succeeded in a prior
// run, in which case the saga must not re-execute it.
func (d *SagaExecutionDocument) IsPhaseCompleted(phase types.PhaseName) bool {
	result, ok := d.PhaseResult(phase)
	return ok && result.Status == types.PhaseSuccess
}
