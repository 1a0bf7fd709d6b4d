package model

import (
	"time"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

// RecoveryRequestDocument is the durable record of one recovery request.
// The request id (namehash of the identity) is the primary key; a second
// attempt for the same identity therefore collides unless the first ended
// in FAILED. Approvals grow monotonically and never shrink.
type RecoveryRequestDocument struct {
	RequestId       string               `bson:"_id"` // Primary key, namehash of identity
	Identity        string               `bson:"identity"`
	OldWalletRef    string               `bson:"old_wallet_ref"`
	NewOwnerAddress string               `bson:"new_owner_address"`
	Guardians       []string             `bson:"guardians"`
	Threshold       uint64               `bson:"threshold"`
	Approvals       []string             `bson:"approvals"`
	Status          types.RecoveryStatus `bson:"status"`
	CreatedAt       time.Time            `bson:"created_at"`
}

func (d *RecoveryRequestDocument) ApprovalCount() uint64 {
	return uint64(len(d.Approvals))
}

func (d *RecoveryRequestDocument) ThresholdMet() bool {
	return d.ApprovalCount() >= d.Threshold
}
