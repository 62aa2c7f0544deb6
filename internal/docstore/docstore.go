// Package docstore is the narrow adapter over the backing document database.
// The registry never talks to the database directly; everything goes through
// this interface so the production Postgres adapter and the in-memory adapter
// stay interchangeable.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names shared by every adapter. These are the physical collection
// identifiers the admin tooling also reads.
const (
	CollectionLostReports  = "lost_reports"
	CollectionFoundItems   = "found_items"
	CollectionClaimedItems = "claimed_items"
	CollectionClaimIntents = "claim_intents"
)

// ErrNotFound is returned when an id does not exist in a collection. Callers
// compare with errors.Is; during a claim this is the concurrency gate that
// turns a second delete into "already claimed".
var ErrNotFound = errors.New("document not found")

// Doc is a schemaless document. Field names follow the wire schema defined in
// the model package.
type Doc map[string]any

// ID returns the document id field, or "" when unset.
func (d Doc) ID() string {
	s, _ := d["id"].(string)
	return s
}

// Encode converts a struct to a Doc via its JSON field names, which are the
// wire schema.
func Encode(v any) (Doc, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Doc back into a typed struct.
func Decode(doc Doc, out any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Store is the adapter contract. The backing database provides per-document
// atomic writes but no cross-document transactions; multi-document workflows
// sequence individual calls and compensate on failure.
type Store interface {
	// Insert stores the document and returns its id. When doc carries an
	// "id" field that id is preserved; otherwise one is assigned. Inserting
	// an id that already exists is a no-op returning the existing id, which
	// makes retried inserts idempotent.
	Insert(ctx context.Context, collection string, doc Doc) (string, error)

	// Update merges patch fields into an existing document.
	// Returns ErrNotFound when the id does not exist.
	Update(ctx context.Context, collection, id string, patch Doc) error

	// Delete removes a document. Returns ErrNotFound when the id does not
	// exist, so concurrent deleters observe exactly one success.
	Delete(ctx context.Context, collection, id string) error

	// Get fetches a single document by id.
	Get(ctx context.Context, collection, id string) (Doc, error)

	// QueryEquals returns documents whose field equals value, in the store's
	// natural order. Ordering beyond that is unspecified.
	QueryEquals(ctx context.Context, collection, field, value string) ([]Doc, error)

	// List returns every document in a collection, natural order.
	List(ctx context.Context, collection string) ([]Doc, error)

	// Subscribe returns a change feed: the current contents of the collection
	// followed by a fresh snapshot after each observed change. The returned
	// cancel func releases the subscription; the channel closes when the
	// context ends or cancel is called.
	Subscribe(ctx context.Context, collection string) (<-chan []Doc, func(), error)
}
