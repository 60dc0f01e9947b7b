package repository

import (
	"context"
	"time"

	"github.com/user/photo-resolver/internal/entity"
)

// NavigationResponse carries what the renderer learned from the main document load.
type NavigationResponse struct {
	Status int
	URL    string
}

// Renderer opens isolated browsing sessions. A nil proxy means direct egress.
type Renderer interface {
	OpenSession(ctx context.Context, proxy *entity.ProxyCredential) (Session, error)
}

// Session is a single rendered tab. Close must be safe to call more than once.
type Session interface {
	Navigate(ctx context.Context, url string) (*NavigationResponse, error)
	// WaitFor blocks until selector is visible or timeout elapses (ErrRenderTimeout).
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// ReadText returns the text of the first match, or ErrElementNotFound.
	ReadText(ctx context.Context, selector string) (string, error)
	// ReadAttribute returns attr of the first match, or ErrElementNotFound.
	ReadAttribute(ctx context.Context, selector, attr string) (string, error)
	// ReadAllMatching returns attr of every match in document order.
	ReadAllMatching(ctx context.Context, selector, attr string) ([]string, error)
	Close() error
}
