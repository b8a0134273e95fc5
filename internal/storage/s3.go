package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ Storage = (*S3Storage)(nil)

// S3Config describes the bucket rendered videos are delivered to.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint points at an S3-compatible service such as MinIO. Requests
	// and returned URLs then use path-style addressing.
	Endpoint string
	// AccessKeyID and SecretAccessKey are optional; without them the
	// default AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectURL returns the URL a stored object is reachable at.
func (c S3Config) ObjectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/") + "/" + c.Bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.Bucket, c.Region, escaped)
}

// S3Storage keeps workspaces on local disk and uploads outputs to S3.
type S3Storage struct {
	*LocalStorage
	cfg    S3Config
	client *s3.Client
}

// NewS3Storage creates workspaces under tempDir and uploads to cfg.Bucket.
func NewS3Storage(tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &S3Storage{LocalStorage: local, cfg: cfg, client: client}, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(static))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Upload stores data under key and returns the object URL.
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader) (string, error) {
	if s.cfg.Bucket == "" {
		return "", ErrS3NotConfigured
	}
	key = strings.TrimLeft(key, "/")

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType(key)),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return s.cfg.ObjectURL(key), nil
}

// contentType maps the extension of a rendered file to its MIME type.
func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".toml":
		return "application/toml"
	default:
		return "application/octet-stream"
	}
}
