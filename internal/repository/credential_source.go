package repository

import (
	"context"

	"github.com/user/photo-resolver/internal/entity"
)

// CredentialPage is one page of a paginated proxy listing.
type CredentialPage struct {
	Credentials []entity.ProxyCredential
	HasNext     bool
}

// CredentialSource lists egress credentials. Pages are numbered from 1.
type CredentialSource interface {
	ListCredentials(ctx context.Context, page int) (*CredentialPage, error)
}
