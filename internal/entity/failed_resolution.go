package entity

import "time"

// FailedResolution mirrors the `resolution_failures` PostgreSQL table schema.
type FailedResolution struct {
	Store                string
	Reference            string
	FailureReason        string
	Attempts             int
	FailureCount         int
	LastAttemptTimestamp time.Time
}
