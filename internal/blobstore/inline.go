package blobstore

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/LancemDev/LostLink/internal/model"
)

// InlineStore encodes photo bytes as base64 directly into the document,
// avoiding a separate blob service at the cost of document size. The cap
// keeps oversized photos from bloating the store.
type InlineStore struct {
	maxBytes int64
}

// NewInlineStore creates an inline encoder with the given byte cap.
func NewInlineStore(maxBytes int64) *InlineStore {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &InlineStore{maxBytes: maxBytes}
}

// Upload encodes the bytes; the key and contentType are ignored because no
// external object is created.
func (s *InlineStore) Upload(_ context.Context, _ string, data []byte, _ string) (model.ImageRef, error) {
	if int64(len(data)) > s.maxBytes {
		return model.ImageRef{}, fmt.Errorf("photo exceeds inline limit (%d bytes)", s.maxBytes)
	}
	return model.ImageRef{Inline: base64.StdEncoding.EncodeToString(data)}, nil
}
