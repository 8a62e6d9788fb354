// Package media copies remote images into a durable store and rewrites the
// references inside a record.
package media

import (
	"context"
)

// Store is a durable image host.
type Store interface {
	// Upload stores data and returns the store's image ID.
	Upload(ctx context.Context, data []byte, filename string) (string, error)
	// DeliveryURL is the public URL for an uploaded image.
	DeliveryURL(id, variant string) string
	// IsDurable reports whether url already points into the store.
	IsDurable(url string) bool
}

// MediaItem is one gallery entry after materialization.
type MediaItem struct {
	URL       string `json:"url"`
	SourceURL string `json:"sourceUrl"`
	StoreID   string `json:"storeId,omitempty"`
	SortOrder int    `json:"sortOrder"`
}

// Durable reports whether the item was copied into the store.
func (m MediaItem) Durable() bool {
	return m.StoreID != ""
}
