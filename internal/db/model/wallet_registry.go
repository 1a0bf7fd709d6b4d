package model

import "time"

// FrozenWalletDocument marks a wallet as blocked for outbound operations.
// The freeze is a service-level blocklist: the surrounding product refuses
// sends from frozen wallets, while the recovery path itself stays privileged.
type FrozenWalletDocument struct {
	WalletRef string    `bson:"_id"`
	RequestId string    `bson:"request_id"`
	FrozenAt  time.Time `bson:"frozen_at"`
}

// DeprecatedWalletDocument and RecoveredWalletDocument are the two
// one-directional lookup tables written by the finalize phase. Keeping them
// separate instead of a mutable bidirectional link supports audit queries
// in either direction without ownership ambiguity.
type DeprecatedWalletDocument struct {
	OldWalletRef    string    `bson:"_id"`
	NewOwnerAddress string    `bson:"new_owner_address"`
	ExecutionId     string    `bson:"execution_id"`
	DeprecatedAt    time.Time `bson:"deprecated_at"`
}

type RecoveredWalletDocument struct {
	NewOwnerAddress string    `bson:"_id"`
	OldWalletRef    string    `bson:"old_wallet_ref"`
	ExecutionId     string    `bson:"execution_id"`
	RecoveredAt     time.Time `bson:"recovered_at"`
}
