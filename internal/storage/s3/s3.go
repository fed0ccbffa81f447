// Package s3 fetches release artifacts from s3://bucket/key URLs.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/adamancini/upkeep/internal/storage"
)

// Scheme is the URL scheme served by this transport.
const Scheme = "s3"

// ErrObjectNotFound indicates the bucket or key does not exist.
var ErrObjectNotFound = errors.New("s3: object not found")

// Options configures the S3 client.
type Options struct {
	// Region where the bucket lives
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack, ...)
	Endpoint string
	// ForcePathStyle addresses buckets as <endpoint>/<bucket>
	ForcePathStyle bool
}

func (opts Options) toS3Options() func(*s3.Options) {
	return func(o *s3.Options) {
		if opts.Region != "" {
			o.Region = opts.Region
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}
}

// GetObjectAPI is the part of the S3 client the transport needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Transport opens s3:// artifact URLs.
type Transport struct {
	client GetObjectAPI
}

// New creates a transport using the default AWS credential chain.
func New(ctx context.Context, opts Options) (*Transport, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg, opts.toS3Options())), nil
}

// NewWithClient creates a transport over an existing client.
func NewWithClient(client GetObjectAPI) *Transport {
	return &Transport{client: client}
}

// Open streams the object named by u.
func (t *Transport) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket, key, err := storage.SplitObjectURL(u, Scheme)
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("s3: get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}
