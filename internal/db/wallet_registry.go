package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/novavault/recovery-orchestrator/internal/db/model"
)

// FreezeWallet records the wallet in the frozen blocklist. Re-freezing an
// already frozen wallet is a no-op, which makes the freeze phase safe to
// retry after a crash.
func (db *Database) FreezeWallet(ctx context.Context, walletRef, requestId string) error {
	client := db.Client.Database(db.DbName).Collection(model.FrozenWalletCollection)
	filter := bson.M{"_id": walletRef}
	update := bson.M{"$setOnInsert": model.FrozenWalletDocument{
		WalletRef: walletRef,
		RequestId: requestId,
		FrozenAt:  time.Now().UTC(),
	}}
	_, err := client.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// FindFrozenWallet returns a NotFoundError if the wallet is not frozen.
func (db *Database) FindFrozenWallet(ctx context.Context, walletRef string) (*model.FrozenWalletDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.FrozenWalletCollection)
	var frozen model.FrozenWalletDocument
	err := client.FindOne(ctx, bson.M{"_id": walletRef}).Decode(&frozen)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     walletRef,
				Message: "wallet is not frozen",
			}
		}
		return nil, err
	}
	return &frozen, nil
}

// FinalizeWalletRecovery writes both one-directional lookup tables in one
// transaction: deprecated[oldWallet] -> {newOwner, executionId} and
// recovered[newOwner] -> {oldWallet, executionId}. Re-running finalize for an
// already finalized pair is a no-op, not an error.
func (db *Database) FinalizeWalletRecovery(
	ctx context.Context, oldWalletRef, newOwnerAddress, executionId string,
) error {
	now := time.Now().UTC()

	transactionWork := func(sessCtx mongo.SessionContext) (interface{}, error) {
		deprecatedClient := db.Client.Database(db.DbName).Collection(model.DeprecatedWalletCollection)
		recoveredClient := db.Client.Database(db.DbName).Collection(model.RecoveredWalletCollection)

		deprecatedUpdate := bson.M{"$setOnInsert": model.DeprecatedWalletDocument{
			OldWalletRef:    oldWalletRef,
			NewOwnerAddress: newOwnerAddress,
			ExecutionId:     executionId,
			DeprecatedAt:    now,
		}}
		if _, err := deprecatedClient.UpdateOne(
			sessCtx, bson.M{"_id": oldWalletRef}, deprecatedUpdate, options.Update().SetUpsert(true),
		); err != nil {
			return nil, err
		}

		recoveredUpdate := bson.M{"$setOnInsert": model.RecoveredWalletDocument{
			NewOwnerAddress: newOwnerAddress,
			OldWalletRef:    oldWalletRef,
			ExecutionId:     executionId,
			RecoveredAt:     now,
		}}
		if _, err := recoveredClient.UpdateOne(
			sessCtx, bson.M{"_id": newOwnerAddress}, recoveredUpdate, options.Update().SetUpsert(true),
		); err != nil {
			return nil, err
		}
		return nil, nil
	}

	_, txErr := db.txWithRetries(ctx, transactionWork)
	return txErr
}

// FindDeprecatedWallet looks up the forward reference old wallet -> new owner.
func (db *Database) FindDeprecatedWallet(ctx context.Context, oldWalletRef string) (*model.DeprecatedWalletDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.DeprecatedWalletCollection)
	var deprecated model.DeprecatedWalletDocument
	err := client.FindOne(ctx, bson.M{"_id": oldWalletRef}).Decode(&deprecated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     oldWalletRef,
				Message: "wallet is not deprecated",
			}
		}
		return nil, err
	}
	return &deprecated, nil
}

// FindRecoveredWallet looks up the back reference new owner -> old wallet.
func (db *Database) FindRecoveredWallet(ctx context.Context, newOwnerAddress string) (*model.RecoveredWalletDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.RecoveredWalletCollection)
	var recovered model.RecoveredWalletDocument
	err := client.FindOne(ctx, bson.M{"_id": newOwnerAddress}).Decode(&recovered)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     newOwnerAddress,
				Message: "wallet is not recovered",
			}
		}
		return nil, err
	}
	return &recovered, nil
}
