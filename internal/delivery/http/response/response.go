package response

import (
	"time"

	"github.com/user/photo-resolver/internal/entity"
)

// ResolutionResult is one entry of the results list. Successful entries carry
// link and name, the others carry error.
type ResolutionResult struct {
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	Link      *string `json:"link,omitempty"`
	Name      *string `json:"name,omitempty"`
	Error     string  `json:"error,omitempty"`
	Attempts  int     `json:"attempts,omitempty"`
	Cached    bool    `json:"cached,omitempty"`
}

type ResolveResponse struct {
	Store   string             `json:"store"`
	Results []ResolutionResult `json:"results"`
}

// LegacyPhotosResponse lists one image link per reference, null when unresolved.
type LegacyPhotosResponse struct {
	Links []*string `json:"links"`
}

// ReferenceStatusResponse is a DTO for entity.ReferenceStatus.
type ReferenceStatusResponse struct {
	Store                string     `json:"store"`
	Reference            string     `json:"reference"`
	CurrentStatus        string     `json:"current_status"` // "fresh", "stale", "failed"
	Link                 string     `json:"link,omitempty"`
	Name                 string     `json:"name,omitempty"`
	FetchedAt            *time.Time `json:"fetched_at,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	FailureCount         int        `json:"failure_count,omitempty"`
	LastAttemptTimestamp *time.Time `json:"last_attempt_timestamp,omitempty"`
}

func FromResult(r entity.ResolutionResult) ResolutionResult {
	out := ResolutionResult{
		Reference: r.Reference,
		Status:    string(r.Status),
		Attempts:  r.Attempts,
		Cached:    r.Cached,
	}
	if r.Status != entity.StatusSuccess {
		out.Error = r.Reason
		return out
	}
	out.Link = optional(r.Link)
	out.Name = optional(r.Name)
	return out
}

func FromStatus(s *entity.ReferenceStatus) ReferenceStatusResponse {
	out := ReferenceStatusResponse{
		Store:         s.Store,
		Reference:     s.Reference,
		CurrentStatus: s.CurrentStatus,
	}
	if e := s.Entry; e != nil {
		out.Link = e.Link
		out.Name = e.Name
		fetched := e.FetchedAt
		out.FetchedAt = &fetched
	}
	if f := s.LastFailure; f != nil {
		out.FailureReason = f.FailureReason
		out.FailureCount = f.FailureCount
		last := f.LastAttemptTimestamp
		out.LastAttemptTimestamp = &last
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
