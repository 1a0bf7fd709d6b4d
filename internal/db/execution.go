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

// CreateSagaExecution consumes the per-request start lock and inserts the
// execution record in one transaction, so a transient fault leaves either
// both writes or neither: a redelivered event then sees an unconsumed lock
// and retries the start instead of finding it half done. Only the first
// caller per request lifecycle succeeds; every other caller receives a
// NotFoundError. Executions are never deleted; they are the audit trail.
func (db *Database) CreateSagaExecution(ctx context.Context, execution *model.SagaExecutionDocument) error {
	transactionWork := func(sessCtx mongo.SessionContext) (interface{}, error) {
		lockClient := db.Client.Database(db.DbName).Collection(model.ExecutionLockCollection)
		executionClient := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)

		// Make sure the lock document exists, then flip it with a filtered
		// update.
		upsert := bson.M{"$setOnInsert": model.NewExecutionLockDocument(execution.RequestId)}
		opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
		var lock model.ExecutionLockDocument
		if err := lockClient.FindOneAndUpdate(sessCtx, bson.M{"_id": execution.RequestId}, upsert, opts).Decode(&lock); err != nil {
			return nil, err
		}

		filter := bson.M{"_id": execution.RequestId, "saga_started": false}
		update := bson.M{"$set": bson.M{"saga_started": true}}
		result, err := lockClient.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return nil, err
		}
		if result.MatchedCount == 0 {
			return nil, &NotFoundError{
				Key:     execution.RequestId,
				Message: "saga already started for this request",
			}
		}

		if _, err := executionClient.InsertOne(sessCtx, execution); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, &DuplicateKeyError{
					Key:     execution.ExecutionId,
					Message: "saga execution already exists",
				}
			}
			return nil, err
		}
		return nil, nil
	}

	_, txErr := db.txWithRetries(ctx, transactionWork)
	return txErr
}

// FindSagaExecutionById returns a NotFoundError if no execution exists.
func (db *Database) FindSagaExecutionById(ctx context.Context, executionId string) (*model.SagaExecutionDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	var execution model.SagaExecutionDocument
	err := client.FindOne(ctx, bson.M{"_id": executionId}).Decode(&execution)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     executionId,
				Message: "saga execution not found",
			}
		}
		return nil, err
	}
	return &execution, nil
}

// FindActiveSagaExecutionByRequestId returns the single active (non-terminal)
// execution for the request, or a NotFoundError when none is active.
func (db *Database) FindActiveSagaExecutionByRequestId(ctx context.Context, requestId string) (*model.SagaExecutionDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	filter := bson.M{"request_id": requestId, "active": true}
	var execution model.SagaExecutionDocument
	err := client.FindOne(ctx, filter).Decode(&execution)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     requestId,
				Message: "no active saga execution for this request",
			}
		}
		return nil, err
	}
	return &execution, nil
}

// FindLatestSagaExecutionByRequestId returns the most recently started
// execution for the request regardless of state, for status reads and audit.
func (db *Database) FindLatestSagaExecutionByRequestId(ctx context.Context, requestId string) (*model.SagaExecutionDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	filter := bson.M{"request_id": requestId}
	opts := options.FindOne().SetSort(bson.M{"started_at": -1})
	var execution model.SagaExecutionDocument
	err := client.FindOne(ctx, filter, opts).Decode(&execution)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     requestId,
				Message: "no saga execution for this request",
			}
		}
		return nil, err
	}
	return &execution, nil
}

// SavePhaseResult checkpoints the outcome of a single phase. The saga calls
// this before advancing state, so a restart resumes from the last successful
// phase instead of re-running the whole saga.
func (db *Database) SavePhaseResult(
	ctx context.Context, executionId string, phase types.PhaseName, result model.PhaseResultDocument,
) error {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	filter := bson.M{"_id": executionId}
	update := bson.M{"$set": bson.M{"phase_results." + phase.ToString(): result}}
	updateResult, err := client.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if updateResult.MatchedCount == 0 {
		return &NotFoundError{
			Key:     executionId,
			Message: "saga execution not found",
		}
	}
	return nil
}

// TransitionSagaState advances the saga state machine, enforcing the strict
// forward order through the eligible previous states filter.
func (db *Database) TransitionSagaState(
	ctx context.Context, executionId string, newState types.SagaState,
	eligiblePreviousStates []types.SagaState,
) error {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	eligible := make([]string, 0, len(eligiblePreviousStates))
	for _, state := range eligiblePreviousStates {
		eligible = append(eligible, state.ToString())
	}
	filter := bson.M{"_id": executionId, "state": bson.M{"$in": eligible}}
	update := bson.M{"$set": bson.M{"state": newState.ToString()}}
	result, err := client.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return &NotFoundError{
			Key:     executionId,
			Message: "saga execution not found or not in eligible state to transition",
		}
	}
	return nil
}

// UpdateSagaMetadata records the consolidated amount, settlement chain and
// collected transfer references after the unification phase.
func (db *Database) UpdateSagaMetadata(
	ctx context.Context, executionId string, metadata model.SagaMetadata,
) error {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	filter := bson.M{"_id": executionId}
	update := bson.M{"$set": bson.M{"metadata": metadata}}
	result, err := client.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return &NotFoundError{
			Key:     executionId,
			Message: "saga execution not found",
		}
	}
	return nil
}

// MarkSagaCompleted moves the execution into the COMPLETED terminal state.
func (db *Database) MarkSagaCompleted(ctx context.Context, executionId string) error {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	now := time.Now().UTC()
	filter := bson.M{"_id": executionId, "active": true}
	update := bson.M{"$set": bson.M{
		"state":        types.SagaCompleted.ToString(),
		"active":       false,
		"completed_at": now,
	}}
	result, err := client.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return &NotFoundError{
			Key:     executionId,
			Message: "active saga execution not found",
		}
	}
	return nil
}

// MarkSagaFailed moves the execution into the FAILED terminal state, records
// the triggering error and clears the public-facing transfer references so a
// half-completed saga cannot be mistaken for a successful one. Per-phase
// audit data is retained.
func (db *Database) MarkSagaFailed(ctx context.Context, executionId, errMsg string) error {
	client := db.Client.Database(db.DbName).Collection(model.SagaExecutionCollection)
	now := time.Now().UTC()
	filter := bson.M{"_id": executionId, "active": true}
	update := bson.M{"$set": bson.M{
		"state":                  types.SagaFailed.ToString(),
		"active":                 false,
		"completed_at":           now,
		"error":                  errMsg,
		"metadata.transfer_refs": []string{},
	}}
	result, err := client.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return &NotFoundError{
			Key:     executionId,
			Message: "active saga execution not found",
		}
	}
	return nil
}
