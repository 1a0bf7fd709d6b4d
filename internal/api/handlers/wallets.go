package handlers

import (
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/types"
)

// GetFrozenWallet reports whether a wallet is on the outbound blocklist.
func (h *Handler) GetFrozenWallet(request *http.Request) (*Result, *types.Error) {
	walletRef := request.URL.Query().Get("wallet_ref")
	frozen, err := h.services.GetFrozenWallet(request.Context(), walletRef)
	if err != nil {
		return nil, err
	}

	return NewResult(frozen), nil
}

// GetDeprecatedWallet resolves an old wallet reference to its replacement.
func (h *Handler) GetDeprecatedWallet(request *http.Request) (*Result, *types.Error) {
	oldWalletRef := request.URL.Query().Get("old_wallet_ref")
	deprecated, err := h.services.GetDeprecatedWallet(request.Context(), oldWalletRef)
	if err != nil {
		return nil, err
	}

	return NewResult(deprecated), nil
}

// GetRecoveredWallet resolves a new owner address to the wallet it recovered.
func (h *Handler) GetRecoveredWallet(request *http.Request) (*Result, *types.Error) {
	newOwnerAddress := request.URL.Query().Get("new_owner_address")
	recovered, err := h.services.GetRecoveredWallet(request.Context(), newOwnerAddress)
	if err != nil {
		return nil, err
	}

	return NewResult(recovered), nil
}
