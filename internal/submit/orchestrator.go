// Package submit sequences found-item submission: optional photo upload
// first, document creation second, with a single observable status per
// operation. Mobile callers poll the status across their own lifecycle
// boundaries instead of holding a future.
package submit

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/LancemDev/LostLink/internal/blobstore"
	"github.com/LancemDev/LostLink/internal/model"
	"github.com/LancemDev/LostLink/internal/repository"
)

// Status is the transient per-operation state. It is owned by the calling
// session, never persisted, and reset explicitly by the caller.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Operation is a snapshot of one submission's progress. ItemID is set on
// success; Message carries the failure description on error.
type Operation struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	ItemID  string `json:"itemId,omitempty"`
	Message string `json:"message,omitempty"`
}

type operation struct {
	Operation
	done chan struct{}
}

// Orchestrator tracks submissions keyed by operation id.
type Orchestrator struct {
	repo  *repository.Items
	blobs blobstore.Store

	mu  sync.RWMutex
	ops map[string]*operation
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(repo *repository.Items, blobs blobstore.Store) *Orchestrator {
	return &Orchestrator{repo: repo, blobs: blobs, ops: make(map[string]*operation)}
}

// Submit starts an asynchronous submission and returns its operation id with
// status already at Loading. When asset is non-empty the photo upload must
// finish before the document is created; an upload failure means Error and no
// document at all. Work runs detached from the caller's cancellation: an
// abandoned request does not roll back writes already committed (at-least-once
// side effects).
func (o *Orchestrator) Submit(ctx context.Context, in repository.FoundItemInput, asset []byte, contentType string) string {
	op := &operation{
		Operation: Operation{ID: uuid.NewString(), Status: StatusLoading},
		done:      make(chan struct{}),
	}
	o.mu.Lock()
	o.ops[op.ID] = op
	o.mu.Unlock()

	go o.run(context.WithoutCancel(ctx), op, in, asset, contentType)
	return op.ID
}

func (o *Orchestrator) run(ctx context.Context, op *operation, in repository.FoundItemInput, asset []byte, contentType string) {
	defer close(op.done)

	img, err := o.uploadAsset(ctx, op.ID, asset, contentType)
	if err != nil {
		log.Printf("submit %s: photo upload failed: %v", op.ID, err)
		o.finish(op.ID, StatusError, "", "photo upload failed")
		return
	}
	id, err := o.repo.CreateFoundItem(ctx, in, img)
	if err != nil {
		log.Printf("submit %s: create found item failed: %v", op.ID, err)
		o.finish(op.ID, StatusError, "", err.Error())
		return
	}
	o.finish(op.ID, StatusSuccess, id, "")
}

func (o *Orchestrator) uploadAsset(ctx context.Context, opID string, asset []byte, contentType string) (*model.ImageRef, error) {
	if len(asset) == 0 {
		return nil, nil
	}
	key := fmt.Sprintf("photos/%s", opID)
	ref, err := o.blobs.Upload(ctx, key, asset, contentType)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (o *Orchestrator) finish(opID string, status Status, itemID, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	op, ok := o.ops[opID]
	if !ok {
		return
	}
	op.Status = status
	op.ItemID = itemID
	op.Message = message
}

// Status returns a snapshot of the operation. Unknown ids read as Idle, the
// same state a caller observes before ever submitting.
func (o *Orchestrator) Status(opID string) Operation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	op, ok := o.ops[opID]
	if !ok {
		return Operation{ID: opID, Status: StatusIdle}
	}
	return op.Operation
}

// Reset returns a terminal operation to Idle. Success and Error are sticky
// until the caller acknowledges them here; there is no auto-expiry.
func (o *Orchestrator) Reset(opID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	op, ok := o.ops[opID]
	if !ok {
		return
	}
	if op.Status == StatusLoading {
		return
	}
	delete(o.ops, opID)
}

// Wait blocks until the operation reaches a terminal state or the context
// ends. Primarily for tests and synchronous callers.
func (o *Orchestrator) Wait(ctx context.Context, opID string) (Operation, error) {
	o.mu.RLock()
	op, ok := o.ops[opID]
	o.mu.RUnlock()
	if !ok {
		return Operation{ID: opID, Status: StatusIdle}, nil
	}
	select {
	case <-op.done:
		return o.Status(opID), nil
	case <-ctx.Done():
		return o.Status(opID), ctx.Err()
	}
}
