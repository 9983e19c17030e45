package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// S3Config describes the bucket behind the workspace blob store.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3BlobStore is a tablesmasher.BlobStore over an S3-compatible bucket.
// Path-style addressing is used so MinIO-style endpoints work.
type S3BlobStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3BlobStore builds a blob store per the config. Empty credential
// fields fall back to the default AWS credential chain.
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, tablesmasher.NewInternalError("loading AWS config failed", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3BlobStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// NewS3BlobStoreWithClient wraps an existing client, for tests.
func NewS3BlobStoreWithClient(client *s3.Client, bucket string) *S3BlobStore {
	return &S3BlobStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// ListObjects returns every object under the prefix, in listing order.
func (b *S3BlobStore) ListObjects(ctx context.Context, prefix string) ([]tablesmasher.BlobObject, error) {
	var objects []tablesmasher.BlobObject
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("listing bucket objects failed", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			objects = append(objects, tablesmasher.BlobObject{
				Key:  key,
				URL:  fmt.Sprintf("s3://%s/%s", b.bucket, key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	zap.S().Debugw("listed bucket objects", "bucket", b.bucket, "prefix", prefix, "count", len(objects))
	return objects, nil
}

// PutObject writes one object.
func (b *S3BlobStore) PutObject(ctx context.Context, key string, body []byte) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return classifyS3Error("writing bucket object failed", err)
	}
	return nil
}

// classifyS3Error keeps server-side failures retryable while surfacing
// bucket misconfiguration immediately.
func classifyS3Error(message string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return tablesmasher.NewInternalError(message, err).WithDetail("code", apiErr.ErrorCode())
		}
	}
	return tablesmasher.NewTransientStoreError(message, err)
}
