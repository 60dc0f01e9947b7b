package entity

// ResolutionRequest is the unit of work handed to the resolver.
type ResolutionRequest struct {
	Store     string
	Reference string
}

type ResolutionStatus string

const (
	StatusSuccess  ResolutionStatus = "success"
	StatusNotFound ResolutionStatus = "not_found"
	StatusFailed   ResolutionStatus = "failed"
)

// ResolutionResult is the outcome for a single reference. Link and Name are
// only meaningful when Status is StatusSuccess; Reason only when StatusFailed.
type ResolutionResult struct {
	Reference string
	Status    ResolutionStatus
	Link      string
	Name      string
	Reason    string
	Attempts  int
	Cached    bool
}

func Success(reference, link, name string) ResolutionResult {
	return ResolutionResult{Reference: reference, Status: StatusSuccess, Link: link, Name: name}
}

func NotFound(reference string) ResolutionResult {
	return ResolutionResult{Reference: reference, Status: StatusNotFound, Reason: "not found"}
}

func Failed(reference, reason string) ResolutionResult {
	return ResolutionResult{Reference: reference, Status: StatusFailed, Reason: reason}
}
