package balance

import (
	"context"
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

type BalanceClientInterface interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() int
	GetHttpClient() *http.Client
	// GetBalance returns the asset balance (in base units) held by the wallet
	// on the given chain.
	GetBalance(ctx context.Context, walletRef, chain string) (uint64, *types.Error)
}
