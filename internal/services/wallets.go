package services

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/novavault/recovery-orchestrator/internal/db"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/novavault/recovery-orchestrator/internal/utils"
)

type FrozenWalletPublic struct {
	WalletRef string `json:"wallet_ref"`
	RequestId string `json:"request_id"`
	FrozenAt  string `json:"frozen_at"`
}

type DeprecatedWalletPublic struct {
	OldWalletRef    string `json:"old_wallet_ref"`
	NewOwnerAddress string `json:"new_owner_address"`
	ExecutionId     string `json:"execution_id"`
	DeprecatedAt    string `json:"deprecated_at"`
}

type RecoveredWalletPublic struct {
	NewOwnerAddress string `json:"new_owner_address"`
	OldWalletRef    string `json:"old_wallet_ref"`
	ExecutionId     string `json:"execution_id"`
	RecoveredAt     string `json:"recovered_at"`
}

// GetFrozenWallet reports whether a wallet is on the outbound blocklist.
// The surrounding product consults this before allowing a send.
func (s *Services) GetFrozenWallet(ctx context.Context, walletRef string) (*FrozenWalletPublic, *types.Error) {
	if walletRef == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "wallet_ref is required")
	}
	frozen, err := s.DbClient.FindFrozenWallet(ctx, walletRef)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "wallet is not frozen")
		}
		log.Ctx(ctx).Error().Err(err).Str("walletRef", walletRef).Msg("error while fetching frozen wallet")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to fetch frozen wallet")
	}
	return &FrozenWalletPublic{
		WalletRef: frozen.WalletRef,
		RequestId: frozen.RequestId,
		FrozenAt:  frozen.FrozenAt.UTC().Format(time.RFC3339),
	}, nil
}

// GetDeprecatedWallet resolves an old wallet reference to the owner that
// replaced it.
func (s *Services) GetDeprecatedWallet(ctx context.Context, oldWalletRef string) (*DeprecatedWalletPublic, *types.Error) {
	if oldWalletRef == "" {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "old_wallet_ref is required")
	}
	deprecated, err := s.DbClient.FindDeprecatedWallet(ctx, oldWalletRef)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "wallet has not been deprecated")
		}
		log.Ctx(ctx).Error().Err(err).Str("oldWalletRef", oldWalletRef).Msg("error while fetching deprecated wallet")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to fetch deprecated wallet")
	}
	return &DeprecatedWalletPublic{
		OldWalletRef:    deprecated.OldWalletRef,
		NewOwnerAddress: deprecated.NewOwnerAddress,
		ExecutionId:     deprecated.ExecutionId,
		DeprecatedAt:    deprecated.DeprecatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// GetRecoveredWallet resolves a new owner address to the wallet it recovered.
func (s *Services) GetRecoveredWallet(ctx context.Context, newOwnerAddress string) (*RecoveredWalletPublic, *types.Error) {
	if !utils.IsValidAddress(newOwnerAddress) {
		return nil, types.NewErrorWithMsg(http.StatusBadRequest, types.ValidationError, "new_owner_address is not a valid address")
	}
	recovered, err := s.DbClient.FindRecoveredWallet(ctx, utils.NormalizeAddress(newOwnerAddress))
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "no recovery recorded for this owner")
		}
		log.Ctx(ctx).Error().Err(err).Str("newOwnerAddress", newOwnerAddress).Msg("error while fetching recovered wallet")
		return nil, types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "failed to fetch recovered wallet")
	}
	return &RecoveredWalletPublic{
		NewOwnerAddress: recovered.NewOwnerAddress,
		OldWalletRef:    recovered.OldWalletRef,
		ExecutionId:     recovered.ExecutionId,
		RecoveredAt:     recovered.RecoveredAt.UTC().Format(time.RFC3339),
	}, nil
}
