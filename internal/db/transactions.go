package db

import (
	"context"
	"time"

	"github.com/novavault/recovery-orchestrator/internal/utils"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultTxMaxAttempts    = 4 // max attempt INCLUDES the first execution
	defaultTxInitialBackoff = 100 * time.Millisecond
	defaultTxBackoffFactor  = 2.0
)

// txWithRetries runs the given work inside a mongo multi-document transaction,
// retrying transient failures (network errors, timeouts, write conflicts and
// aborted transactions) with exponential backoff.
func (db *Database) txWithRetries(
	ctx context.Context,
	txnFunc func(sessCtx mongo.SessionContext) (interface{}, error),
) (interface{}, error) {
	var (
		result  interface{}
		err     error
		backoff = defaultTxInitialBackoff
	)

	for attempt := 1; attempt <= defaultTxMaxAttempts; attempt++ {
		session, sessionErr := db.Client.StartSession()
		if sessionErr != nil {
			return nil, sessionErr
		}

		result, err = session.WithTransaction(ctx, txnFunc)
		session.EndSession(ctx)

		if err != nil {
			if shouldRetryTx(err) && attempt < defaultTxMaxAttempts {
				log.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).
					Msg("transaction failed with retryable error, retrying")
				utils.Sleep(backoff)
				backoff = time.Duration(float64(backoff) * defaultTxBackoffFactor)
				continue
			}
			return nil, err
		}
		break
	}
	return result, nil
}

// Check for network-related, timeout errors, write conflicts or transaction
// aborted, which are generally transient and should retry. Other errors such
// as duplicated keys are non-retryable.
func shouldRetryTx(err error) bool {
	if mongo.IsNetworkError(err) {
		return true
	}
	if mongo.IsTimeout(err) {
		return true
	}

	if IsWriteConflictError(err) {
		return true
	}

	if IsTransactionAbortedError(err) {
		return true
	}

	return false
}
