package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store writes objects to a single S3 bucket and builds the URLs they are served from.
type Store struct {
	client       *s3.Client
	bucket       string
	region       string
	distribution string
}

// New loads the default AWS credential chain for region. distribution may be
// empty, in which case URLs point at the bucket directly.
func New(ctx context.Context, bucket, region, distribution string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, region, distribution), nil
}

func NewWithClient(client *s3.Client, bucket, region, distribution string) *Store {
	return &Store{
		client:       client,
		bucket:       bucket,
		region:       region,
		distribution: strings.TrimSuffix(distribution, "/"),
	}
}

// Put uploads body under key. Seekable bodies such as *os.File let the SDK
// compute the payload checksum without buffering.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// URL is the public address of key: through the CDN distribution when one is
// configured, otherwise the virtual-hosted bucket URL.
func (s *Store) URL(key string) string {
	if s.distribution != "" {
		base := s.distribution
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		return fmt.Sprintf("%s/%s", base, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// PresignGet returns a time-limited GET URL for key.
func (s *Store) PresignGet(ctx context.Context, key string, expireTime time.Duration) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("s3 client is not configured")
	}
	req, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expireTime))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// SignURL rewrites a stored URL into a presigned one when it points straight at
// this store's bucket and no CDN fronts it. Any other URL is returned unchanged.
func (s *Store) SignURL(ctx context.Context, raw string, expireTime time.Duration) (string, error) {
	if s.distribution != "" {
		return raw, nil
	}
	bucket, key, ok := ParseBucketKey(raw)
	if !ok || bucket != s.bucket {
		return raw, nil
	}
	return s.PresignGet(ctx, key, expireTime)
}
