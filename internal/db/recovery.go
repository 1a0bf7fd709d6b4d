package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

// SaveRecoveryRequest persists a new recovery request with PENDING status and
// an empty approval set. If a request with the same id already exists it is
// only overwritten when the previous attempt ended in FAILED; the execution
// lock is re-armed in the same transaction so a fresh saga may start.
// Returns a DuplicateKeyError when a non-FAILED request already exists.
func (db *Database) SaveRecoveryRequest(
	ctx context.Context, requestId, identity, oldWalletRef, newOwnerAddress string,
	guardians []string, threshold uint64,
) error {
	document := model.RecoveryRequestDocument{
		RequestId:       requestId,
		Identity:        identity,
		OldWalletRef:    oldWalletRef,
		NewOwnerAddress: newOwnerAddress,
		Guardians:       guardians,
		Threshold:       threshold,
		Approvals:       []string{},
		Status:          types.RecoveryPending,
		CreatedAt:       time.Now().UTC(),
	}

	transactionWork := func(sessCtx mongo.SessionContext) (interface{}, error) {
		requestClient := db.Client.Database(db.DbName).Collection(model.RecoveryRequestCollection)
		lockClient := db.Client.Database(db.DbName).Collection(model.ExecutionLockCollection)

		// Replace an existing document only if its prior attempt failed; the
		// upsert covers the first registration for the identity. An existing
		// non-FAILED request matches neither path and surfaces as a duplicate
		// key on the upsert insert.
		filter := bson.M{"_id": requestId, "status": types.RecoveryFailed}
		_, err := requestClient.ReplaceOne(sessCtx, filter, document, options.Replace().SetUpsert(true))
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, &DuplicateKeyError{
					Key:     requestId,
					Message: "recovery request already exists for this identity",
				}
			}
			return nil, err
		}

		// Re-arm the saga start lock for the new attempt.
		lockFilter := bson.M{"_id": requestId}
		lockUpdate := bson.M{"$set": bson.M{"saga_started": false}}
		if _, err := lockClient.UpdateOne(sessCtx, lockFilter, lockUpdate, options.Update().SetUpsert(true)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	_, txErr := db.txWithRetries(ctx, transactionWork)
	return txErr
}

// FindRecoveryRequestById returns a NotFoundError if no request exists.
func (db *Database) FindRecoveryRequestById(ctx context.Context, requestId string) (*model.RecoveryRequestDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.RecoveryRequestCollection)
	filter := bson.M{"_id": requestId}
	var request model.RecoveryRequestDocument
	err := client.FindOne(ctx, filter).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     requestId,
				Message: "recovery request not found",
			}
		}
		return nil, err
	}
	return &request, nil
}

// AddApproval appends a guardian address to the approval set in a single
// atomic update and returns the post-append document. The filter excludes
// documents already containing the address, so concurrent duplicate
// submissions collapse into one append; the loser receives an
// AlreadyApprovedError. Concurrent appends of distinct guardians serialize
// on the document, so each caller observes a distinct approval count and
// exactly one observes the count equal to the threshold.
func (db *Database) AddApproval(
	ctx context.Context, requestId, guardianAddress string,
) (*model.RecoveryRequestDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.RecoveryRequestCollection)
	filter := bson.M{
		"_id":       requestId,
		"approvals": bson.M{"$ne": guardianAddress},
	}
	update := bson.M{"$push": bson.M{"approvals": guardianAddress}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated model.RecoveryRequestDocument
	err := client.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// The request exists (callers check first), so a no-match means
			// the address is already in the approval set.
			return nil, &AlreadyApprovedError{
				Key:     guardianAddress,
				Message: "guardian has already approved this request",
			}
		}
		return nil, err
	}
	return &updated, nil
}

// TransitionRecoveryStatus updates the status of a recovery request.
// It returns a NotFoundError if the request is missing or not in an
// eligible state, which keeps status transitions monotonic forward.
func (db *Database) TransitionRecoveryStatus(
	ctx context.Context, requestId string, newStatus types.RecoveryStatus,
	eligiblePreviousStatuses []types.RecoveryStatus,
) error {
	client := db.Client.Database(db.DbName).Collection(model.RecoveryRequestCollection)
	eligible := make([]string, 0, len(eligiblePreviousStatuses))
	for _, status := range eligiblePreviousStatuses {
		eligible = append(eligible, status.ToString())
	}
	filter := bson.M{"_id": requestId, "status": bson.M{"$in": eligible}}
	update := bson.M{"$set": bson.M{"status": newStatus.ToString()}}
	result, err := client.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return &NotFoundError{
			Key:     requestId,
			Message: "recovery request not found or not in eligible status to transition",
		}
	}
	return nil
}
