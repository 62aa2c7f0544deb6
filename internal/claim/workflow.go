// Package claim moves an item from the found collection to the claimed
// collection. The backing store has no cross-document transactions, so the
// move is a sequenced delete-then-insert with a durable intent record that
// makes the gap recoverable: if the insert fails after the delete succeeded,
// the intent still knows what the item looked like.
package claim

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/model"
	"github.com/LancemDev/LostLink/internal/repository"
)

// intent is the durable record of an in-flight claim, keyed by the found
// item's id. It survives until the claimed insert is confirmed.
type intent struct {
	ID        string          `json:"id"`
	Item      model.FoundItem `json:"item"`
	StartedAt time.Time       `json:"startedAt"`
}

// Workflow executes and repairs claims.
type Workflow struct {
	repo  *repository.Items
	store docstore.Store
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(repo *repository.Items, store docstore.Store) *Workflow {
	return &Workflow{repo: repo, store: store}
}

// Claim moves the found item with the given id into the claimed collection.
// The delete is the concurrency gate: when two claims race, exactly one
// observes the delete succeeding and the other gets a NotFoundError meaning
// "already claimed". A failure after the delete returns PartialFailureError;
// the item is then recoverable via Finalize or the reconciliation sweep.
func (w *Workflow) Claim(ctx context.Context, foundItemID string) (*model.ClaimedItem, error) {
	item, err := w.repo.GetFoundItem(ctx, foundItemID)
	if err != nil {
		return nil, err
	}

	// Record the intent before touching the found item, so a crash between
	// delete and insert leaves a trace the sweep can act on.
	rec := intent{ID: item.ID, Item: *item, StartedAt: time.Now().UTC()}
	doc, err := docstore.Encode(rec)
	if err != nil {
		return nil, err
	}
	if _, err := w.store.Insert(ctx, docstore.CollectionClaimIntents, doc); err != nil {
		return nil, &model.StoreError{Op: "record claim intent", Err: err}
	}

	if err := w.repo.DeleteFoundItem(ctx, foundItemID); err != nil {
		// Leave the intent in place. Intents are keyed by the found-item id,
		// so on NotFound a concurrent claim won the gate and the record may
		// be the winner's, still in flight; dropping it here would destroy
		// their recovery path. The sweep discards it once the claimed
		// document lands. On any other failure the item is still in the
		// found collection and the sweep discards the intent as stale.
		return nil, err
	}

	claimed := model.ClaimedItem{FoundItem: *item, ClaimedAt: time.Now().UTC()}
	claimed.Status = model.ItemClaimed
	if err := w.repo.InsertClaimedItem(ctx, claimed); err != nil {
		// The item now exists in neither collection. The intent stays so
		// Finalize can complete the move; never swallow this.
		return nil, &model.PartialFailureError{ItemID: foundItemID, Err: err}
	}

	w.dropIntent(ctx, foundItemID)
	return &claimed, nil
}

// Finalize completes a claim whose insert step failed, working from the
// intent snapshot. It is idempotent: the claimed insert is a no-op when the
// document already exists, and a missing intent means nothing is pending.
func (w *Workflow) Finalize(ctx context.Context, foundItemID string) error {
	doc, err := w.store.Get(ctx, docstore.CollectionClaimIntents, foundItemID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return &model.StoreError{Op: "load claim intent", Err: err}
	}
	var rec intent
	if err := docstore.Decode(doc, &rec); err != nil {
		return err
	}
	// A found document still present means the move never passed the delete
	// gate; the intent is stale, not a half-finished claim. Inserting the
	// claimed copy here would duplicate the item across both collections.
	if _, err := w.repo.GetFoundItem(ctx, foundItemID); err == nil {
		w.dropIntent(ctx, foundItemID)
		return nil
	}
	claimed := model.ClaimedItem{FoundItem: rec.Item, ClaimedAt: time.Now().UTC()}
	claimed.Status = model.ItemClaimed
	if err := w.repo.InsertClaimedItem(ctx, claimed); err != nil {
		return &model.PartialFailureError{ItemID: foundItemID, Err: err}
	}
	w.dropIntent(ctx, foundItemID)
	return nil
}

// Unreconciled lists found-item ids referenced by in-flight claims that are
// not yet confirmed in the claimed collection. This is the operator-facing
// sweep input.
func (w *Workflow) Unreconciled(ctx context.Context) ([]string, error) {
	docs, err := w.store.List(ctx, docstore.CollectionClaimIntents)
	if err != nil {
		return nil, &model.StoreError{Op: "list claim intents", Err: err}
	}
	var ids []string
	for _, doc := range docs {
		id := doc.ID()
		if _, err := w.repo.GetClaimedItem(ctx, id); err == nil {
			// Already landed; the stale intent just needs cleanup.
			w.dropIntent(ctx, id)
			continue
		}
		if _, err := w.repo.GetFoundItem(ctx, id); err == nil {
			// Still in the found collection, so the claim never passed the
			// delete gate. Nothing to repair.
			w.dropIntent(ctx, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Reconcile finalizes every unreconciled intent. Returns the ids repaired and
// the first error encountered, if any.
func (w *Workflow) Reconcile(ctx context.Context) ([]string, error) {
	ids, err := w.Unreconciled(ctx)
	if err != nil {
		return nil, err
	}
	var repaired []string
	for _, id := range ids {
		if err := w.Finalize(ctx, id); err != nil {
			return repaired, err
		}
		repaired = append(repaired, id)
	}
	return repaired, nil
}

func (w *Workflow) dropIntent(ctx context.Context, id string) {
	if err := w.store.Delete(ctx, docstore.CollectionClaimIntents, id); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		// A leftover intent is harmless: the sweep sees the claimed doc and
		// cleans it up.
		log.Printf("claim: drop intent %s: %v", id, err)
	}
}
