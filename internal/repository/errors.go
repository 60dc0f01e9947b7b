package repository

import "errors"

var (
	ErrCacheUnavailable     = errors.New("cache store unavailable")
	ErrProxyPoolUnavailable = errors.New("proxy pool unavailable")
	ErrNotFound             = errors.New("product not found")
	ErrRenderTimeout        = errors.New("timed out waiting for page content")
	ErrNavigationFailed     = errors.New("navigation failed")
	ErrExtractionFailed     = errors.New("could not extract name or link")
	ErrElementNotFound      = errors.New("element not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRendererClosed       = errors.New("renderer is shut down")
)
