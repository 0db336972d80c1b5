// Package objectstore persists job artifacts (status snapshots and
// generated text files) to S3-compatible object storage, using
// aws-sdk-go-v2 the way the pack's examples wire it: a thin client
// wrapper around config.LoadDefaultConfig plus the s3 service client,
// with an Endpoint override for S3-compatible providers (e.g. MinIO).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the S3 client.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible providers
	AccessKeyID     string
	SecretAccessKey string
}

// Store is a thin wrapper over an S3 client scoped to one bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a Store from Options. When AccessKeyID/SecretAccessKey
// are both empty, the default AWS credential chain is used.
func New(ctx context.Context, opts Options) (*Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = &opts.Endpoint
			o.UsePathStyle = true
		}
	})

	return &Store{client: client, bucket: opts.Bucket}, nil
}

// Put uploads data under key with the given content type.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	return data, nil
}

// StatusKey returns the object key for a job's status snapshot.
func StatusKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/status.json", jobID)
}

// ArtifactKey returns the object key for one of a job's generated
// files ("llm.txt" or "llms-full.txt").
func ArtifactKey(jobID, filename string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, filename)
}
