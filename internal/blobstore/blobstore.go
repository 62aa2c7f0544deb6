// Package blobstore stores item photos. Two modes exist and the deployment
// picks one explicitly: "upload" puts bytes in an S3 bucket and references
// them by URL, "inline" base64-encodes the bytes straight into the document.
package blobstore

import (
	"context"

	"github.com/LancemDev/LostLink/internal/model"
)

// Store uploads an asset and returns the reference to embed in the item
// document. Exactly one of the ImageRef fields is populated, matching the
// model invariant.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (model.ImageRef, error)
}
