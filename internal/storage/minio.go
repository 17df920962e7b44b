package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Options holds the connection parameters shared by both drivers.
type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	StagingDir string // when set, payloads are written here before upload
}

func (o Options) region() string {
	if o.Region == "" {
		return DefaultRegion
	}
	return o.Region
}

// minioAPI is the subset of *minio.Client used by MinioStorage.
type minioAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FPutObject(ctx context.Context, bucket, key, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
}

// minioClient adapts *minio.Client. GetObject is lazy, so OpenObject stats
// the object up front to surface a missing key before any bytes are read.
type minioClient struct {
	*minio.Client
}

func (c minioClient) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

// MinioStorage implements Gateway on a MinIO (or any S3-compatible) backend
// through minio-go.
type MinioStorage struct {
	client     minioAPI
	bucket     string
	region     string
	stagingDir string
	guard      bucketGuard
	log        zerolog.Logger
}

// NewMinioStorage creates a MinIO client for opts. No network call is made;
// the bucket is ensured on first use or by an explicit EnsureBucket.
func NewMinioStorage(opts Options, log zerolog.Logger) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.region(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newMinioStorage(minioClient{client}, opts, log), nil
}

func newMinioStorage(client minioAPI, opts Options, log zerolog.Logger) *MinioStorage {
	return &MinioStorage{
		client:     client,
		bucket:     opts.Bucket,
		region:     opts.region(),
		stagingDir: opts.StagingDir,
		log:        log.With().Str("component", "storage").Str("driver", "minio").Logger(),
	}
}

// Bucket returns the bucket all objects are stored in.
func (s *MinioStorage) Bucket() string { return s.bucket }

// EnsureBucket creates name in the configured region when it is missing.
func (s *MinioStorage) EnsureBucket(ctx context.Context, name string) error {
	exists, err := s.client.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: check bucket %q: %v", ErrUnavailable, name, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.region})
	if err == nil {
		s.log.Info().Str("bucket", name).Str("region", s.region).Msg("created bucket")
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return nil
	}
	// Another writer may have created it between our check and create.
	if exists, recheck := s.client.BucketExists(ctx, name); recheck == nil && exists {
		return nil
	}
	return fmt.Errorf("%w: create bucket %q: %v", ErrUnavailable, name, err)
}

func (s *MinioStorage) ready(ctx context.Context) error {
	return s.guard.do(ctx, func(ctx context.Context) error {
		return s.EnsureBucket(ctx, s.bucket)
	})
}

// Put uploads r under key, staging it on disk first when a staging
// directory is configured.
func (s *MinioStorage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: contentTypeFor(key)}

	if s.stagingDir != "" {
		path, release, err := stageFile(s.stagingDir, key, r)
		if err != nil {
			return fmt.Errorf("stage %q: %w", key, err)
		}
		defer release()

		if _, err := s.client.FPutObject(ctx, s.bucket, key, path, opts); err != nil {
			return fmt.Errorf("%w: put object %q: %v", ErrUnavailable, key, err)
		}
		return nil
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("%w: put object %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get opens the object under key.
func (s *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rc, err := s.client.OpenObject(ctx, s.bucket, key)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get object %q: %v", ErrUnavailable, key, err)
	}
	return rc, nil
}

// Remove deletes the object under key. A missing key is not an error.
func (s *MinioStorage) Remove(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("%w: remove object %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
