package driven

import (
	"context"
	"io"
	"time"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
)

// ListOptions bound a listing pass.
type ListOptions struct {
	// StartPage is the first page to request; pages are 1-based.
	StartPage int

	// PageSize is the number of items per page.
	PageSize int

	// MaxResults caps the total items returned across pages. Zero means
	// unbounded (list until the provider reports the last page).
	MaxResults int
}

// MediaProvider is the upstream cloud service holding the source media.
// Implementations translate HTTP status codes into domain errors:
// 401/403 -> domain.ErrTokenExpired, 429 -> domain.RateLimitError,
// systemic missing fields on 200 -> domain.ErrAPIStructureChanged.
type MediaProvider interface {
	// Name returns the provider identifier used in keys and metrics.
	Name() string

	// Probe performs the cheapest authenticated call possible with the
	// given cookie header and returns the HTTP status code. Used by the
	// token validator and the rotation verifier.
	Probe(ctx context.Context, cookieHeader, userAgent string) (int, error)

	// List fetches media pages until the provider reports the last page or
	// opts.MaxResults is reached. Malformed items are skipped and logged;
	// a page where every item is malformed yields ErrAPIStructureChanged.
	List(ctx context.Context, creds *domain.Credentials, opts ListOptions) ([]*domain.MediaItem, *domain.PageInfo, error)

	// ResolveDownloadURL returns a short-lived URL for the item at the
	// best available quality at or below the requested one. Returns
	// domain.ErrQualityUnavailable when no acceptable variant exists and
	// domain.ErrSourceDeleted when the item is gone upstream.
	ResolveDownloadURL(ctx context.Context, creds *domain.Credentials, mediaID, quality string) (string, error)

	// Download opens the media stream. ttfb measures request start to
	// first response byte. contentLength is -1 when the server does not
	// declare one. Returns domain.ErrSourceDeleted on 404.
	Download(ctx context.Context, url string) (body io.ReadCloser, contentLength int64, ttfb time.Duration, err error)

	// Refresh exchanges the stored refresh token for new credential
	// material without mutating the store. The rotator persists the
	// result only after verifying it.
	Refresh(ctx context.Context, creds *domain.Credentials) (*domain.Credentials, error)
}
