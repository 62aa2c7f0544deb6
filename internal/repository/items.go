// Package repository provides typed CRUD over the three logical collections:
// lost reports, found items, and claimed items. It validates input, stamps
// defaults, and translates between structs and schemaless documents. It never
// retries; retry policy belongs to the store adapter or the caller.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/model"
)

// ReportInput carries the caller-supplied fields for a new lost report.
type ReportInput struct {
	UserID              string
	Category            model.ItemCategory
	ItemName            string
	Description         string
	LocationDescription string
	DateLost            time.Time
}

// FoundItemInput carries the caller-supplied fields for a new found item.
type FoundItemInput struct {
	AddedBy             string
	Category            model.ItemCategory
	ItemName            string
	Description         string
	LocationDescription string
	DateFound           time.Time

	// Status optionally selects the entry-point workflow: "pending" for
	// submissions that need admin confirmation, empty for the default
	// immediately-claimable "available".
	Status model.ItemStatus
}

// Items is the repository over the document store.
type Items struct {
	store docstore.Store
}

// NewItems constructs the repository.
func NewItems(store docstore.Store) *Items {
	return &Items{store: store}
}

// CreateLostReport validates and persists a report, returning its id. The
// report starts pending with no matches; the match engine is triggered by the
// caller as a separate best-effort task, never as part of this write.
func (r *Items) CreateLostReport(ctx context.Context, in ReportInput) (string, error) {
	if err := validateCommon(string(in.Category), in.ItemName); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	report := model.LostReport{
		// A missing user id degrades to the empty string rather than
		// rejecting; anonymous filings were always accepted upstream.
		UserID:              in.UserID,
		Category:            in.Category,
		ItemName:            in.ItemName,
		Description:         in.Description,
		LocationDescription: in.LocationDescription,
		DateLost:            in.DateLost,
		Status:              model.ReportPending,
		MatchedItemIDs:      []string{},
		CreatedAt:           now,
	}
	if report.DateLost.IsZero() {
		report.DateLost = now
	}
	doc, err := docstore.Encode(report)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	id, err := r.store.Insert(ctx, docstore.CollectionLostReports, doc)
	if err != nil {
		return "", &model.StoreError{Op: "create lost report", Err: err}
	}
	return id, nil
}

// CreateFoundItem validates and persists a found item, optionally carrying an
// image reference produced by the blob store beforehand. The document is never
// created with a dangling reference: img must already be final.
func (r *Items) CreateFoundItem(ctx context.Context, in FoundItemInput, img *model.ImageRef) (string, error) {
	if err := validateCommon(string(in.Category), in.ItemName); err != nil {
		return "", err
	}
	if img != nil && !img.Valid() {
		return "", &model.ValidationError{Field: "image", Reason: "both inline data and URL set"}
	}
	status := in.Status
	switch status {
	case "":
		status = model.ItemAvailable
	case model.ItemPending, model.ItemAvailable:
	default:
		return "", &model.ValidationError{Field: "status", Reason: fmt.Sprintf("invalid initial status %q", status)}
	}
	now := time.Now().UTC()
	item := model.FoundItem{
		AddedBy:             in.AddedBy,
		Category:            in.Category,
		ItemName:            in.ItemName,
		Description:         in.Description,
		LocationDescription: in.LocationDescription,
		DateFound:           in.DateFound,
		Image:               img,
		Status:              status,
		CreatedAt:           now,
	}
	if item.DateFound.IsZero() {
		item.DateFound = now
	}
	doc, err := docstore.Encode(item)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	id, err := r.store.Insert(ctx, docstore.CollectionFoundItems, doc)
	if err != nil {
		return "", &model.StoreError{Op: "create found item", Err: err}
	}
	return id, nil
}

// FetchReportsForUser returns the user's report history. A store failure
// degrades to an empty slice: the user sees "no history" rather than an error
// dialog. The failure is logged, not lost.
func (r *Items) FetchReportsForUser(ctx context.Context, userID string) []model.LostReport {
	docs, err := r.store.QueryEquals(ctx, docstore.CollectionLostReports, "userId", userID)
	if err != nil {
		log.Printf("fetch reports for %q failed, returning empty history: %v", userID, err)
		return nil
	}
	reports := make([]model.LostReport, 0, len(docs))
	for _, doc := range docs {
		var report model.LostReport
		if err := docstore.Decode(doc, &report); err != nil {
			log.Printf("skip malformed report %s: %v", doc.ID(), err)
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

// GetReport fetches a single lost report.
func (r *Items) GetReport(ctx context.Context, id string) (*model.LostReport, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionLostReports, id)
	if err != nil {
		return nil, wrapGet(docstore.CollectionLostReports, id, err)
	}
	var report model.LostReport
	if err := docstore.Decode(doc, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetFoundItem fetches a single found item.
func (r *Items) GetFoundItem(ctx context.Context, id string) (*model.FoundItem, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionFoundItems, id)
	if err != nil {
		return nil, wrapGet(docstore.CollectionFoundItems, id, err)
	}
	var item model.FoundItem
	if err := docstore.Decode(doc, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetClaimedItem fetches a single claimed item.
func (r *Items) GetClaimedItem(ctx context.Context, id string) (*model.ClaimedItem, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionClaimedItems, id)
	if err != nil {
		return nil, wrapGet(docstore.CollectionClaimedItems, id, err)
	}
	var item model.ClaimedItem
	if err := docstore.Decode(doc, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteFoundItem removes a found item. NotFoundError means another claim got
// there first.
func (r *Items) DeleteFoundItem(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.CollectionFoundItems, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return &model.NotFoundError{Collection: docstore.CollectionFoundItems, ID: id}
		}
		return &model.StoreError{Op: "delete found item", Err: err}
	}
	return nil
}

// InsertClaimedItem persists a claimed item under its preserved id. The
// underlying insert is idempotent, so finalize retries are safe.
func (r *Items) InsertClaimedItem(ctx context.Context, item model.ClaimedItem) error {
	if item.ID == "" {
		return &model.ValidationError{Field: "id", Reason: "claimed item must preserve the found item id"}
	}
	item.Status = model.ItemClaimed
	doc, err := docstore.Encode(item)
	if err != nil {
		return err
	}
	if _, err := r.store.Insert(ctx, docstore.CollectionClaimedItems, doc); err != nil {
		return &model.StoreError{Op: "insert claimed item", Err: err}
	}
	return nil
}

// UpdateReportMatches attaches candidate ids to a report and promotes pending
// reports to matched. Called only by the match engine.
func (r *Items) UpdateReportMatches(ctx context.Context, reportID string, matchedIDs []string) error {
	report, err := r.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	patch := docstore.Doc{"matchedItemIds": matchedIDs}
	if report.Status == model.ReportPending {
		patch["status"] = string(model.ReportMatched)
	}
	if err := r.store.Update(ctx, docstore.CollectionLostReports, reportID, patch); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return &model.NotFoundError{Collection: docstore.CollectionLostReports, ID: reportID}
		}
		return &model.StoreError{Op: "update report matches", Err: err}
	}
	return nil
}

// ListFoundByCategory returns found items in a category, store order.
func (r *Items) ListFoundByCategory(ctx context.Context, category model.ItemCategory) ([]model.FoundItem, error) {
	docs, err := r.store.QueryEquals(ctx, docstore.CollectionFoundItems, "category", string(category))
	if err != nil {
		return nil, &model.StoreError{Op: "query found items", Err: err}
	}
	items := make([]model.FoundItem, 0, len(docs))
	for _, doc := range docs {
		var item model.FoundItem
		if err := docstore.Decode(doc, &item); err != nil {
			log.Printf("skip malformed found item %s: %v", doc.ID(), err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// ListFound returns every found item, for the admin dashboard.
func (r *Items) ListFound(ctx context.Context) ([]model.FoundItem, error) {
	docs, err := r.store.List(ctx, docstore.CollectionFoundItems)
	if err != nil {
		return nil, &model.StoreError{Op: "list found items", Err: err}
	}
	items := make([]model.FoundItem, 0, len(docs))
	for _, doc := range docs {
		var item model.FoundItem
		if err := docstore.Decode(doc, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// ListClaimed returns every claimed item, for the admin dashboard.
func (r *Items) ListClaimed(ctx context.Context) ([]model.ClaimedItem, error) {
	docs, err := r.store.List(ctx, docstore.CollectionClaimedItems)
	if err != nil {
		return nil, &model.StoreError{Op: "list claimed items", Err: err}
	}
	items := make([]model.ClaimedItem, 0, len(docs))
	for _, doc := range docs {
		var item model.ClaimedItem
		if err := docstore.Decode(doc, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func validateCommon(category, itemName string) error {
	if itemName == "" {
		return &model.ValidationError{Field: "itemName", Reason: "required"}
	}
	if _, err := model.ParseCategory(category); err != nil {
		return &model.ValidationError{Field: "category", Reason: err.Error()}
	}
	return nil
}

func wrapGet(collection, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return &model.NotFoundError{Collection: collection, ID: id}
	}
	return &model.StoreError{Op: "get " + collection, Err: err}
}

