package entity

import "time"

// CacheEntry mirrors the `product_cache` table: one row per (store, reference).
// Empty Link or Name means the value could not be recovered from the page.
type CacheEntry struct {
	Store     string    `json:"store"`
	Reference string    `json:"reference"`
	Link      string    `json:"link,omitempty"`
	Name      string    `json:"name,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// IsFresh reports whether the entry is younger than ttl at now.
func (e *CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	if e == nil {
		return false
	}
	return now.Sub(e.FetchedAt) < ttl
}
