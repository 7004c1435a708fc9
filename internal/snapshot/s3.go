package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores the collection as one JSON object. It gives serverless
// deployments, which have no writable disk, the same durability as File.
type S3[T any] struct {
	client s3API
	bucket string
	key    string
}

// NewS3 builds an S3 snapshotter for bucket/key.
func NewS3[T any](client s3API, bucket, key string) *S3[T] {
	if client == nil {
		panic("snapshot: s3 client cannot be nil")
	}
	if bucket == "" || key == "" {
		panic("snapshot: s3 bucket and key are required")
	}
	return &S3[T]{client: client, bucket: bucket, key: key}
}

// Load returns an empty map when the object does not exist yet.
func (s *S3[T]) Load(ctx context.Context) (map[string]T, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return map[string]T{}, nil
		}
		return nil, fmt.Errorf("snapshot: get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read s3 body: %w", err)
	}
	return decode[T](data)
}

func (s *S3[T]) Save(ctx context.Context, items map[string]T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("snapshot: put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
