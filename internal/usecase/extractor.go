package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/utils"
)

const (
	bodySelector    = "body"
	ogTitleSelector = `meta[property="og:title"]`
	titleSelector   = "title"
	anyImage        = "img"
)

// ExtractorConfig names the well-known elements of a product page.
type ExtractorConfig struct {
	TitleSelector   string
	ImageSelector   string
	NoResultsPhrase string
}

// Extraction is what could be recovered from a product page.
type Extraction struct {
	Name string
	Link string
}

// Extractor turns a rendered product page into a name and an image link.
type Extractor struct {
	cfg ExtractorConfig
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// ContentMarker is the selector that signals the product has rendered.
func (e *Extractor) ContentMarker() string {
	return e.cfg.TitleSelector + ", " + e.cfg.ImageSelector
}

// IsNoResults reports whether the page body carries the "no results" phrase.
func (e *Extractor) IsNoResults(ctx context.Context, s repository.Session) (bool, error) {
	if e.cfg.NoResultsPhrase == "" {
		return false, nil
	}
	body, err := s.ReadText(ctx, bodySelector)
	if errors.Is(err, repository.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(body), strings.ToLower(e.cfg.NoResultsPhrase)), nil
}

// Extract applies the primary selectors first, then the fallbacks, for each
// field independently. It returns ErrExtractionFailed when neither field
// could be recovered; other errors come from the session.
func (e *Extractor) Extract(ctx context.Context, s repository.Session, pageURL, reference string) (Extraction, error) {
	name, err := e.name(ctx, s)
	if err != nil {
		return Extraction{}, err
	}
	link, err := e.link(ctx, s, reference)
	if err != nil {
		return Extraction{}, err
	}
	if link != "" {
		if abs, err := utils.ToAbsoluteURL(pageURL, link); err == nil {
			link = abs
		}
	}
	if name == "" && link == "" {
		return Extraction{}, repository.ErrExtractionFailed
	}
	return Extraction{Name: name, Link: link}, nil
}

func (e *Extractor) name(ctx context.Context, s repository.Session) (string, error) {
	name, err := readOptional(s.ReadText(ctx, e.cfg.TitleSelector))
	if err != nil || name != "" {
		return name, err
	}
	name, err = readOptional(s.ReadAttribute(ctx, ogTitleSelector, "content"))
	if err != nil || name != "" {
		return name, err
	}
	return readOptional(s.ReadText(ctx, titleSelector))
}

func (e *Extractor) link(ctx context.Context, s repository.Session, reference string) (string, error) {
	link, err := readOptional(s.ReadAttribute(ctx, e.cfg.ImageSelector, "src"))
	if err != nil || link != "" {
		return link, err
	}
	srcs, err := s.ReadAllMatching(ctx, anyImage, "src")
	if err != nil {
		return "", err
	}
	for _, src := range srcs {
		if strings.Contains(src, reference) {
			return src, nil
		}
	}
	return "", nil
}

// readOptional folds ErrElementNotFound into an empty value.
func readOptional(v string, err error) (string, error) {
	if errors.Is(err, repository.ErrElementNotFound) {
		return "", nil
	}
	return strings.TrimSpace(v), err
}
