// Package model contains the document shapes shared across packages. The JSON
// field names are the de facto wire schema: other consumers of the document
// store (the mobile clients, the admin dashboard) read these exact fields.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ItemCategory is the closed set of categories users can file under. Values
// are stored by canonical name, never free text.
type ItemCategory string

const (
	CategoryElectronics    ItemCategory = "ELECTRONICS"
	CategoryClothing       ItemCategory = "CLOTHING"
	CategoryAccessories    ItemCategory = "ACCESSORIES"
	CategoryDocuments      ItemCategory = "DOCUMENTS"
	CategoryKeys           ItemCategory = "KEYS"
	CategoryWallet         ItemCategory = "WALLET"
	CategoryBag            ItemCategory = "BAG"
	CategorySchoolSupplies ItemCategory = "SCHOOL_SUPPLIES"
	CategorySports         ItemCategory = "SPORTS"
	CategoryIdentification ItemCategory = "IDENTIFICATION"
	CategoryOther          ItemCategory = "OTHER"
)

// Categories lists every valid category in display order.
func Categories() []ItemCategory {
	return []ItemCategory{
		CategoryElectronics,
		CategoryClothing,
		CategoryAccessories,
		CategoryDocuments,
		CategoryKeys,
		CategoryWallet,
		CategoryBag,
		CategorySchoolSupplies,
		CategorySports,
		CategoryIdentification,
		CategoryOther,
	}
}

// ParseCategory converts free text into an ItemCategory, rejecting unknown
// values.
func ParseCategory(s string) (ItemCategory, error) {
	c := ItemCategory(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CategoryOrDefault parses leniently, falling back to OTHER. Used when reading
// documents written by older clients with unrecognized values.
func CategoryOrDefault(s string) ItemCategory {
	if c, err := ParseCategory(s); err == nil {
		return c
	}
	return CategoryOther
}

// ReportStatus describes a lost report's lifecycle.
type ReportStatus string

const (
	ReportPending ReportStatus = "pending"
	ReportMatched ReportStatus = "matched"
	ReportClosed  ReportStatus = "closed"
)

// ItemStatus describes a found item's lifecycle.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemAvailable ItemStatus = "available"
	ItemClaimed   ItemStatus = "claimed"
)

// ImageRef references an item photo. Exactly one of URL or Inline is set when
// the reference exists: URL points at an uploaded blob, Inline carries the
// base64-encoded bytes directly in the document. Never both. Key is adjunct
// metadata of the URL form, recording the object key so the API can mint
// presigned links.
type ImageRef struct {
	URL    string `json:"url,omitempty"`
	Key    string `json:"key,omitempty"`
	Inline string `json:"inline,omitempty"`
}

// IsZero reports whether no image is referenced.
func (r ImageRef) IsZero() bool {
	return r.URL == "" && r.Inline == ""
}

// Valid reports whether the mutual-exclusion invariant holds.
func (r ImageRef) Valid() bool {
	return r.URL == "" || r.Inline == ""
}

// LostReport is a user's filing describing an item they lost.
type LostReport struct {
	ID                  string       `json:"id"`
	UserID              string       `json:"userId"`
	Category            ItemCategory `json:"category"`
	ItemName            string       `json:"itemName"`
	Description         string       `json:"description"`
	LocationDescription string       `json:"locationDescription"`
	DateLost            time.Time    `json:"dateLost"`
	Status              ReportStatus `json:"status"`
	MatchedItemIDs      []string     `json:"matchedItemIds"`
	CreatedAt           time.Time    `json:"createdAt"`
}

// FoundItem is an item reported as discovered, pending or available for claim.
type FoundItem struct {
	ID                  string       `json:"id"`
	AddedBy             string       `json:"addedBy"`
	Category            ItemCategory `json:"category"`
	ItemName            string       `json:"itemName"`
	Description         string       `json:"description"`
	LocationDescription string       `json:"locationDescription"`
	DateFound           time.Time    `json:"dateFound"`
	Image               *ImageRef    `json:"image,omitempty"`
	Status              ItemStatus   `json:"status"`
	CreatedAt           time.Time    `json:"createdAt"`
}

// ClaimedItem has the same shape as FoundItem; the id is preserved from the
// originating found item so the two collections stay traceable.
type ClaimedItem struct {
	FoundItem
	ClaimedAt time.Time `json:"claimedAt"`
}
