package model

import "fmt"

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps a document-store failure. The repository never retries;
// retry policy belongs to the adapter or the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotFoundError reports an operation against a missing document id. During a
// claim this means the item was already claimed by someone else.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.Collection, e.ID)
}

// PartialFailureError reports a claim that deleted the found item but could
// not insert the claimed record. The item id is recoverable through the
// reconciliation sweep; callers must surface this distinctly from a plain
// StoreError.
type PartialFailureError struct {
	ItemID string
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("claim %s: found item deleted but claimed insert failed: %v", e.ItemID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
