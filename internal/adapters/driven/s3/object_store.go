// Package s3 implements the object store port on AWS S3.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ObjectStore = (*ObjectStore)(nil)

// ObjectStore implements driven.ObjectStore against one S3 bucket.
type ObjectStore struct {
	client *s3.Client
	bucket string
}

// NewObjectStore creates an S3-backed ObjectStore.
func NewObjectStore(client *s3.Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket}
}

// Head fetches object attributes without the body.
func (s *ObjectStore) Head(ctx context.Context, key string) (*driven.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("head %s: %w", key, err)
	}
	return &driven.ObjectInfo{
		Key:      key,
		Size:     aws.ToInt64(out.ContentLength),
		Metadata: out.Metadata,
	}, nil
}

// Put writes the object in a single request.
func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// CreateMultipart begins a multipart upload.
func (s *ObjectStore) CreateMultipart(ctx context.Context, key string, metadata map[string]string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload for %s: %w", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part and returns its ETag.
func (s *ObjectStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("upload part %d of %s: %w", partNumber, key, err)
	}
	return aws.ToString(out.ETag), nil
}

// CompleteMultipart assembles the uploaded parts. etags must be in part
// order starting at part 1.
func (s *ObjectStore) CompleteMultipart(ctx context.Context, key, uploadID string, etags []string) error {
	parts := make([]types.CompletedPart, len(etags))
	for i, etag := range etags {
		parts[i] = types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(int32(i + 1)),
		}
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload for %s: %w", key, err)
	}
	return nil
}

// AbortMultipart discards a partial upload.
func (s *ObjectStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload for %s: %w", key, err)
	}
	return nil
}
