package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// s3API is the subset of *s3.Client used by S3Storage.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage implements Gateway with the AWS SDK against any S3-compatible
// endpoint, using path-style addressing.
type S3Storage struct {
	client     s3API
	bucket     string
	region     string
	stagingDir string
	guard      bucketGuard
	log        zerolog.Logger
}

// NewS3Storage builds an S3 client for opts. No network call is made.
func NewS3Storage(opts Options, log zerolog.Logger) *S3Storage {
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(endpointURL(opts.Endpoint, opts.UseSSL)),
		Region:       opts.region(),
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "",
		)),
		UsePathStyle: true,
	})
	return newS3Storage(client, opts, log)
}

func newS3Storage(client s3API, opts Options, log zerolog.Logger) *S3Storage {
	return &S3Storage{
		client:     client,
		bucket:     opts.Bucket,
		region:     opts.region(),
		stagingDir: opts.StagingDir,
		log:        log.With().Str("component", "storage").Str("driver", "s3").Logger(),
	}
}

// Bucket returns the bucket all objects are stored in.
func (s *S3Storage) Bucket() string { return s.bucket }

// EnsureBucket creates name in the configured region when it is missing.
func (s *S3Storage) EnsureBucket(ctx context.Context, name string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		return nil
	}
	if code := apiErrorCode(err); code != "NotFound" && code != "NoSuchBucket" {
		return fmt.Errorf("%w: check bucket %q: %v", ErrUnavailable, name, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 is the implicit location and must not be sent explicitly.
	if s.region != DefaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err = s.client.CreateBucket(ctx, in)
	if err == nil {
		s.log.Info().Str("bucket", name).Str("region", s.region).Msg("created bucket")
		return nil
	}

	var owned *types.BucketAlreadyOwnedByYou
	var taken *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &taken) {
		return nil
	}
	return fmt.Errorf("%w: create bucket %q: %v", ErrUnavailable, name, err)
}

func (s *S3Storage) ready(ctx context.Context) error {
	return s.guard.do(ctx, func(ctx context.Context) error {
		return s.EnsureBucket(ctx, s.bucket)
	})
}

// Put uploads r under key, staging it on disk first when a staging
// directory is configured.
func (s *S3Storage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	body := r
	if s.stagingDir != "" {
		path, release, err := stageFile(s.stagingDir, key, r)
		if err != nil {
			return fmt.Errorf("stage %q: %w", key, err)
		}
		defer release()

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open staged %q: %w", key, err)
		}
		defer f.Close()
		body = f
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentTypeFor(key)),
	})
	if err != nil {
		return fmt.Errorf("%w: put object %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get opens the object under key.
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get object %q: %v", ErrUnavailable, key, err)
	}
	return out.Body, nil
}

// Remove deletes the object under key. A missing key is not an error.
func (s *S3Storage) Remove(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("%w: remove object %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
