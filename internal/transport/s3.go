package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Reader reads byte ranges from objects named by "s3://bucket/key" URIs,
// built on aws-sdk-go-v2's default credential chain and GetObject's Range
// header - the same client construction this corpus uses for S3 access,
// extended here from a ListBuckets smoke test to ranged GetObject reads.
type S3Reader struct {
	client *s3.Client
}

// NewS3Reader loads the default AWS configuration (environment, shared
// config/credentials files, or EC2/ECS role) and builds an S3 client from it.
func NewS3Reader(ctx context.Context, region string) (*S3Reader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return &S3Reader{client: s3.NewFromConfig(cfg)}, nil
}

func (r *S3Reader) OpenRange(ctx context.Context, uri string, offset uint64, size uint32) (io.ReadCloser, int64, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, 0, err
	}

	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if size > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(size)-1))
	} else if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := r.client.GetObject(ctx, input)
	if err != nil {
		return nil, 0, fmt.Errorf("GetObject %s: %w", uri, err)
	}

	total := int64(0)
	if out.ContentRange != nil {
		if _, totalLen, ok := parseContentRangeTotal(*out.ContentRange); ok {
			total = totalLen
		}
	} else if out.ContentLength != nil {
		total = *out.ContentLength
	}
	return out.Body, total, nil
}

func (r *S3Reader) Stat(ctx context.Context, uri string) (int64, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return 0, err
	}
	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, fmt.Errorf("HeadObject %s: %w", uri, err)
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("HeadObject %s: no ContentLength returned", uri)
	}
	return *out.ContentLength, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("not an s3:// uri: %q", uri)
	}
	rest := uri[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", fmt.Errorf("s3 uri %q has no key component", uri)
	}
	return rest[:idx], rest[idx+1:], nil
}

// parseContentRangeTotal extracts the total size from a "bytes a-b/total"
// Content-Range header value.
func parseContentRangeTotal(headerValue string) (start int64, total int64, ok bool) {
	const prefix = "bytes "
	if !strings.HasPrefix(headerValue, prefix) {
		return 0, 0, false
	}
	slashIdx := strings.IndexByte(headerValue, '/')
	if slashIdx < 0 {
		return 0, 0, false
	}
	var t int64
	if _, err := fmt.Sscanf(headerValue[slashIdx+1:], "%d", &t); err != nil {
		return 0, 0, false
	}
	return 0, t, true
}
