package entity

const (
	ReferenceFresh   = "fresh"
	ReferenceStale   = "stale"
	ReferenceFailed  = "failed"
	ReferenceUnknown = "unknown"
)

// ReferenceStatus is what the service currently knows about one reference.
type ReferenceStatus struct {
	Store         string
	Reference     string
	CurrentStatus string // "fresh", "stale", "failed", "unknown"
	Entry         *CacheEntry
	LastFailure   *FailedResolution
}
