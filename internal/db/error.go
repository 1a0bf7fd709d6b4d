package db

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// DuplicateKeyError is an error type for duplicate key errors
type DuplicateKeyError struct {
	Key     string
	Message string
}

func (e *DuplicateKeyError) Error() string {
	return e.Message
}

func IsDuplicateKeyError(err error) bool {
	var duplicateErr *DuplicateKeyError
	return errors.As(err, &duplicateErr)
}

// Not found Error
type NotFoundError struct {
	Key     string
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func IsNotFoundError(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// AlreadyApprovedError signals that a guardian's approval is already in the
// approval set. It is surfaced to callers as an idempotent success, not a
// hard failure.
type AlreadyApprovedError struct {
	Key     string
	Message string
}

func (e *AlreadyApprovedError) Error() string {
	return e.Message
}

func IsAlreadyApprovedError(err error) bool {
	var approvedErr *AlreadyApprovedError
	return errors.As(err, &approvedErr)
}

// Error code references: https://www.mongodb.com/docs/manual/reference/error-codes/
func IsWriteConflictError(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr *mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr != nil && cmdErr.Code == 112
	}

	return false
}

func IsTransactionAbortedError(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr *mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr != nil && cmdErr.Code == 251
	}

	return false
}
