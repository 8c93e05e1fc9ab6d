// Package blobsink uploads original file bytes to durable object storage.
package blobsink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/docingest/internal/common"
)

// Sink stores bytes under key and returns a locator for them.
type Sink interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	Enabled() bool
}

// Key partitions objects by environment and ingestion date:
// <env>/<YYYY>/<MM>/<DD>/<storedName>.
func Key(env string, t time.Time, storedName string) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s", env, t.Year(), int(t.Month()), t.Day(), storedName)
}

// Disabled is used when no object storage is configured. Put stores nothing.
type Disabled struct{}

func (Disabled) Put(context.Context, string, io.Reader, int64) (string, error) { return "", nil }
func (Disabled) Enabled() bool                                                 { return false }

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Config holds the settings for an S3-compatible backend such as MinIO.
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Sink writes objects with path-style addressing so that MinIO endpoints
// work without bucket DNS.
type S3Sink struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

func NewS3Sink(ctx context.Context, c S3Config) (*S3Sink, error) {
	if c.Bucket == "" || c.BaseEndpoint == "" {
		return nil, fmt.Errorf("%w: bucket and endpoint are required", common.ErrBlobSinkUnavailable)
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.RootUser,     // MINIO_ROOT_USER
			c.RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrBlobSinkUnavailable, err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Sink{client: client, bucket: c.Bucket, endpoint: strings.TrimRight(c.BaseEndpoint, "/")}, nil
}

func (s *S3Sink) Enabled() bool { return true }

// Put uploads r and returns <endpoint>/<bucket>/<key>. r should be seekable
// when the endpoint is plain HTTP.
func (s *S3Sink) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := putObject(s.client, ctx, in); err != nil {
		return "", fmt.Errorf("%w: put %s: %w", common.ErrBlobSinkUnavailable, key, err)
	}
	return s.endpoint + "/" + s.bucket + "/" + key, nil
}
