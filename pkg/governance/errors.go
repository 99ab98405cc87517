package governance

import "errors"

// Error kinds for the governance engine.
var (
	// ErrValidation is returned when an event or threshold is rejected
	// before any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a threshold or alert id does not
	// exist in any scope partition.
	ErrNotFound = errors.New("not found")

	// ErrStoreWrite is returned when an aggregate store write fails.
	// Bucket increment failures are logged and counted, never fatal.
	ErrStoreWrite = errors.New("store write failed")

	// ErrStoreRead is returned when an aggregate store read fails.
	// Callers treat it as empty data and degrade rather than fail.
	ErrStoreRead = errors.New("store read failed")

	// ErrActionExecution is returned when a remediation side effect
	// fails. It never aborts the threshold pass.
	ErrActionExecution = errors.New("remediation action failed")

	// ErrPredictionData is returned when a scope has insufficient
	// history; batch prediction converts it into a fallback result.
	ErrPredictionData = errors.New("insufficient prediction data")
)
