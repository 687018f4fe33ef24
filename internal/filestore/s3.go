package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rendis/actiondesk/pkg/schema"
)

// S3Config holds configuration for the S3 store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string // Optional key prefix, e.g. "invoices/"
	// Static keys; when empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores files as objects in a bucket. Paths are s3://bucket/key URIs.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "s3 bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load AWS config").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Write uploads data under prefix+name. A single PutObject is atomic.
func (s *S3) Write(ctx context.Context, name string, data []byte) (string, error) {
	n, err := cleanName(name)
	if err != nil {
		return "", err
	}
	key := s.prefix + n
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(n)),
	})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "s3 put %s", key).WithCause(err)
	}
	return s.uri(key), nil
}

// Read downloads the object at p.
func (s *S3) Read(ctx context.Context, p string) ([]byte, error) {
	key, err := s.key(p)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "object %s not found", key).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "s3 get %s", key).WithCause(err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// Exists checks for the object at p with a HEAD request.
func (s *S3) Exists(ctx context.Context, p string) (bool, error) {
	key, err := s.key(p)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, schema.NewErrorf(schema.ErrCodeStore, "s3 head %s", key).WithCause(err)
	}
	return true, nil
}

func (s *S3) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// key accepts s3://bucket/key URIs for this bucket or bare keys.
func (s *S3) key(p string) (string, error) {
	if rest, ok := strings.CutPrefix(p, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket != s.bucket || key == "" {
			return "", schema.NewErrorf(schema.ErrCodeValidation, "path %s is outside the file store", p)
		}
		return key, nil
	}
	n, err := cleanName(p)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(n, s.prefix) {
		return n, nil
	}
	return s.prefix + n, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

var _ Store = (*S3)(nil)
