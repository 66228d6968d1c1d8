// Package storage locates objects in S3, produces time-limited access URLs,
// and copies shop images from the private upload bucket to the public live
// bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
)

// ErrNotStorageURL is returned when a string cannot be parsed as an S3 URL
var ErrNotStorageURL = errors.New("not a storage URL")

// DefaultPresignExpiry is how long presigned access URLs stay valid
const DefaultPresignExpiry = 15 * time.Minute

// API is the subset of the S3 client used for object relocation
type API interface {
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// PresignAPI is the subset of the S3 presign client used for access URLs
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var _ API = (*s3.Client)(nil)
var _ PresignAPI = (*s3.PresignClient)(nil)

// Locator parses storage URLs, presigns reads, and relocates objects from
// the private upload bucket to the public live bucket.
type Locator struct {
	client       API
	presigner    PresignAPI
	region       string
	publicBucket string
	expiry       time.Duration
}

// New creates a Locator
func New(client API, presigner PresignAPI, region, publicBucket string) *Locator {
	return &Locator{
		client:       client,
		presigner:    presigner,
		region:       region,
		publicBucket: publicBucket,
		expiry:       DefaultPresignExpiry,
	}
}

// NewClient builds an S3 client and presign client from application configuration
func NewClient(ctx context.Context, cfg *config.AWSConfig) (*s3.Client, *s3.PresignClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, s3.NewPresignClient(client), nil
}

// ParseURL splits an S3 object URL into bucket and key. Both virtual-hosted
// (bucket.s3.region.amazonaws.com/key) and path-style
// (s3.region.amazonaws.com/bucket/key) forms are accepted.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", ErrNotStorageURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", ErrNotStorageURL
	}

	host := u.Hostname()
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-"):
		// Path-style: first path segment is the bucket
		bucket, key, _ = strings.Cut(path, "/")
	case strings.Contains(host, ".s3."), strings.HasSuffix(host, ".s3.amazonaws.com"):
		// Virtual-hosted: bucket is the host prefix
		bucket = host[:strings.Index(host, ".s3")]
		key = path
	default:
		return "", "", ErrNotStorageURL
	}

	if bucket == "" || key == "" {
		return "", "", ErrNotStorageURL
	}
	return bucket, key, nil
}

// Presign converts a storage URL into a time-limited access URL
func (l *Locator) Presign(ctx context.Context, raw string) (string, error) {
	bucket, key, err := ParseURL(raw)
	if err != nil {
		return "", err
	}

	req, err := l.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = l.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}

	monitoring.RecordPresignedURL()
	return req.URL, nil
}

// PublicURL returns the public URL of an object in the live bucket
func (l *Locator) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", l.publicBucket, l.region, key)
}

// Relocate copies the object behind srcURL into the public bucket under
// destKey and returns its public URL. A missing source falls back to the
// destination: a prior successful copy counts as a cache hit. When the
// object exists in neither bucket the result is an empty URL and no error,
// so callers proceed without the image.
func (l *Locator) Relocate(ctx context.Context, srcURL, destKey string) (string, error) {
	srcBucket, srcKey, err := ParseURL(srcURL)
	if err != nil {
		return "", err
	}

	_, err = l.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(l.publicBucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(srcBucket + "/" + srcKey),
	})
	if err == nil {
		monitoring.RecordImageRelocation("copied")
		return l.PublicURL(destKey), nil
	}
	if !isMissingObject(err) {
		monitoring.RecordImageRelocation("error")
		return "", fmt.Errorf("copy %s/%s: %w", srcBucket, srcKey, err)
	}

	// Source gone; the destination may hold an earlier copy
	_, headErr := l.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(l.publicBucket),
		Key:    aws.String(destKey),
	})
	if headErr == nil {
		monitoring.RecordImageRelocation("cached")
		return l.PublicURL(destKey), nil
	}
	if isMissingObject(headErr) {
		monitoring.RecordImageRelocation("missing")
		return "", nil
	}

	monitoring.RecordImageRelocation("error")
	return "", fmt.Errorf("head %s/%s: %w", l.publicBucket, destKey, headErr)
}

// isMissingObject reports whether err means the object does not exist
func isMissingObject(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
