package refund

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// EvidenceStore holds refund proof files in a private bucket.
type EvidenceStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// S3Config holds object storage settings. Endpoint is set for R2-compatible
// providers and left empty for plain AWS.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3EvidenceStore implements EvidenceStore on S3-compatible storage.
type S3EvidenceStore struct {
	client *s3.Client
	bucket string
}

// NewS3Client builds an S3 client from config.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3EvidenceStore creates an evidence store on the given bucket.
func NewS3EvidenceStore(client *s3.Client, bucket string) *S3EvidenceStore {
	return &S3EvidenceStore{client: client, bucket: bucket}
}

// Bucket returns the bucket evidence is written to.
func (s *S3EvidenceStore) Bucket() string {
	return s.bucket
}

func (s *S3EvidenceStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload evidence %s: %w", key, err)
	}
	return nil
}

func (s *S3EvidenceStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete evidence %s: %w", key, err)
	}
	return nil
}

// EvidenceKey builds the storage key for a proof file, namespaced by payment
// id and upload time so re-submissions never collide.
func EvidenceKey(paymentID uuid.UUID, at time.Time, filename string) string {
	return fmt.Sprintf("refund-proofs/%s/%d-%s", paymentID, at.UnixMilli(), filename)
}
