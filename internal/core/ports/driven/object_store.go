package driven

import (
	"context"
	"io"
)

// ObjectInfo describes a stored object's identity-relevant attributes.
type ObjectInfo struct {
	Key      string
	Size     int64
	Metadata map[string]string
}

// ObjectStore is the destination archive for transferred media. Keys are
// opaque to implementations; layout is the transfer engine's concern.
type ObjectStore interface {
	// Head fetches object attributes without the body.
	// Returns domain.ErrNotFound when no object exists at key.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Put streams body to key in a single request. Used below the
	// multipart threshold where the size is known up front.
	Put(ctx context.Context, key string, body io.Reader, size int64, metadata map[string]string) error

	// CreateMultipart begins a multipart upload and returns its ID.
	CreateMultipart(ctx context.Context, key string, metadata map[string]string) (uploadID string, err error)

	// UploadPart uploads one part. partNumber starts at 1. The returned
	// tag is passed back to CompleteMultipart in part order.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (etag string, err error)

	// CompleteMultipart assembles the uploaded parts into the final object.
	CompleteMultipart(ctx context.Context, key, uploadID string, etags []string) error

	// AbortMultipart discards a partial upload so the backend reclaims the
	// parts. Best effort; callers log but do not fail on abort errors.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}
