// Package storage is the remote object store used for s3 refs, manifests and the
// uploaded result.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config contains minimal configuration for creating an S3 client. Empty values fall
// back to the standard AWS config and credential chain.
type S3Config struct {
	Region  string
	Profile string
	// Endpoint points the client at an S3-compatible service.
	Endpoint     string
	UsePathStyle bool
}

// ObjectStore is the part of S3 the renderer needs.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// S3 wraps the AWS SDK v2 client behind ObjectStore.
type S3 struct {
	client *s3.Client
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: c}, nil
}

// Get fetches an object and returns its streaming body. Caller must Close it.
func (s *S3) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Put uploads body to bucket/key. contentType is optional.
func (s *S3) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Exists reports whether bucket/key exists. A 404 or NotFound is not an error.
func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// IsNotFound recognizes missing-object responses from S3 and compatible services.
func IsNotFound(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// Location names one object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// ParseURI reads "s3://bucket/key" or "s3:key"; the short form uses defaultBucket.
func ParseURI(ref, defaultBucket string) (Location, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		rest := strings.TrimPrefix(ref, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("malformed s3 uri %q", ref)
		}
		return Location{Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(ref, "s3:"):
		key := strings.TrimLeft(strings.TrimPrefix(ref, "s3:"), "/")
		if key == "" {
			return Location{}, fmt.Errorf("malformed s3 ref %q", ref)
		}
		if defaultBucket == "" {
			return Location{}, fmt.Errorf("s3 ref %q needs a bucket; set S3_BUCKET", ref)
		}
		return Location{Bucket: defaultBucket, Key: key}, nil
	default:
		return Location{}, fmt.Errorf("not an s3 ref: %q", ref)
	}
}

// IsS3 reports whether ref addresses the object store.
func IsS3(ref string) bool {
	return strings.HasPrefix(ref, "s3:")
}

// SegmentKey is where a separately rendered segment of a project is uploaded.
func SegmentKey(projectID, segmentID string) string {
	return fmt.Sprintf("segments/%s/%s_segment.mp4", projectID, segmentID)
}

// VideoKey is where the final video of a project is uploaded.
func VideoKey(projectID string) string {
	return fmt.Sprintf("videos/%s_final_video.mp4", projectID)
}
