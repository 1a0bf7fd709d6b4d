package router

import (
	"context"
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

type TransferState string

const (
	TransferPending   TransferState = "PENDING"
	TransferConfirmed TransferState = "CONFIRMED"
	TransferFailed    TransferState = "FAILED"
)

type RouterClientInterface interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() int
	GetHttpClient() *http.Client
	// Transfer moves amount from the wallet on fromChain to the recipient on
	// toChain and returns a transfer reference. fromChain == toChain with a
	// different recipient is a same-chain ownership transfer.
	Transfer(ctx context.Context, walletRef, recipient, fromChain, toChain string, amount uint64) (string, *types.Error)
	// GetTransferState reports the confirmation state of a transfer reference.
	GetTransferState(ctx context.Context, transferRef string) (TransferState, *types.Error)
}
