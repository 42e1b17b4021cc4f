// Package storage generates presigned upload URLs against the
// S3-compatible object store backing folder content.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// uploadURLTTL bounds how long a worker can use an issued upload URL.
const uploadURLTTL = time.Hour

// Presigner issues time-boxed PUT URLs for object uploads.
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key, contentType string) (string, error)
}

// S3Config configures the object-store client. Endpoint is set for
// S3-compatible stores (MinIO, Ceph); empty means AWS S3 proper.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Presigner presigns against S3 or an S3-compatible endpoint.
type S3Presigner struct {
	presign *s3.PresignClient
}

// NewS3Presigner builds a presigner. Static credentials take precedence;
// otherwise the SDK's default chain (env, shared config, instance role)
// applies.
func NewS3Presigner(ctx context.Context, cfg S3Config) (*S3Presigner, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Presigner{presign: s3.NewPresignClient(client)}, nil
}

// PresignPut issues a one-hour presigned PUT URL for the object.
func (p *S3Presigner) PresignPut(ctx context.Context, bucket, key, contentType string) (string, error) {
	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadURLTTL))
	if err != nil {
		return "", fmt.Errorf("presign put %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
