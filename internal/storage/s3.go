package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"morgonpodd/internal/config"
	"morgonpodd/internal/services"
	"morgonpodd/internal/stage"
)

// S3Client abstracts the S3 API operations used by S3Store.
// The s3.Client type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store uploads to an S3-compatible bucket.
type S3Store struct {
	client       S3Client
	bucket       string
	publicBase   string
	cacheControl string
}

// NewS3 creates an S3-backed uploader around a configured client.
func NewS3(client S3Client, bucket, publicBase, cacheControl string) *S3Store {
	return &S3Store{client: client, bucket: bucket, publicBase: publicBase, cacheControl: cacheControl}
}

// NewS3FromConfig builds an s3.Client for the configured endpoint with
// static credentials. Path-style addressing keeps R2 and MinIO happy.
func NewS3FromConfig(cfg config.Storage) *S3Store {
	accessKey, secretKey := cfg.AccessKeyID, cfg.SecretAccessKey
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: true,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			if accessKey == "" || secretKey == "" {
				return aws.Credentials{}, errors.New("storage credentials are not configured")
			}
			return aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey, Source: "morgonpodd"}, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return NewS3(s3.New(opts), cfg.Bucket, cfg.PublicBaseURL, cfg.CacheControl)
}

// Upload puts the file at key and confirms the stored size with HeadObject.
func (s *S3Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "open", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "stat", localPath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentType(localPath)),
	}
	if s.cacheControl != "" {
		input.CacheControl = aws.String(s.cacheControl)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "put", key, err)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isS3NotFound(err) {
			return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "verify", key+" missing after upload", err)
		}
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "verify", key, err)
	}
	if head.ContentLength != nil && *head.ContentLength != info.Size() {
		return "", services.Wrap(services.ErrPublish, stage.PublishAudio, "verify",
			fmt.Sprintf("%s stored %d bytes, uploaded %d", key, *head.ContentLength, info.Size()), nil)
	}
	return s.PublicURL(key), nil
}

// PublicURL maps key onto the public base URL.
func (s *S3Store) PublicURL(key string) string {
	return joinURL(s.publicBase, key)
}

// HealthCheck confirms the bucket is reachable with the configured credentials.
func (s *S3Store) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return stage.Unhealthy("storage", fmt.Sprintf("bucket %s: %v", s.bucket, err))
	}
	return stage.Healthy("storage")
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ Uploader = (*S3Store)(nil)
