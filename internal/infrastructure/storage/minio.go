package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/encoding"
)

// objectAPI is the part of *minio.Client the asset store calls.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ClientConfig holds configuration for the MinIO client.
type ClientConfig struct {
	Endpoint string
	// PublicEndpoint, when set, is the host download URLs are signed for.
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

// AssetStore keeps converted videos in a MinIO bucket and implements
// repository.AssetStorage.
type AssetStore struct {
	objects objectAPI
	signer  objectAPI
	bucket  string
}

var _ repository.AssetStorage = (*AssetStore)(nil)

// NewAssetStore connects to MinIO and fails if the bucket is missing.
func NewAssetStore(ctx context.Context, cfg ClientConfig) (*AssetStore, error) {
	objects, err := dial(cfg.Endpoint, cfg)
	if err != nil {
		return nil, err
	}
	signer := objects
	if cfg.PublicEndpoint != "" {
		if signer, err = dial(cfg.PublicEndpoint, cfg); err != nil {
			return nil, err
		}
	}
	return newAssetStore(ctx, objects, signer, cfg.Bucket)
}

func dial(endpoint string, cfg ClientConfig) (*minio.Client, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", endpoint, err)
	}
	return c, nil
}

func newAssetStore(ctx context.Context, objects, signer objectAPI, bucket string) (*AssetStore, error) {
	exists, err := objects.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	}
	return &AssetStore{objects: objects, signer: signer, bucket: bucket}, nil
}

// PutAsset uploads a converted video. The key's extension must name a
// supported output format; its content type is stored with the object
// together with the owning tenant and document.
func (s *AssetStore) PutAsset(ctx context.Context, key model.AssetKey, reader io.Reader, size int64) error {
	format, err := encoding.LookupFormat(key.Extension())
	if err != nil {
		return fmt.Errorf("asset %s: %w", key, err)
	}
	_, err = s.objects.PutObject(ctx, s.bucket, key.String(), reader, size, minio.PutObjectOptions{
		ContentType: format.ContentType,
		UserMetadata: map[string]string{
			"tenant-id":   key.TenantID,
			"document-id": key.DocumentID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload asset %s: %w", key, err)
	}
	return nil
}

// AssetURL signs a download URL that saves the video under its asset name.
func (s *AssetStore) AssetURL(ctx context.Context, key model.AssetKey, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", key.Name))
	u, err := s.signer.PresignedGetObject(ctx, s.bucket, key.String(), expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to sign asset URL %s: %w", key, err)
	}
	return u.String(), nil
}

// Ping checks that the bucket is still reachable.
func (s *AssetStore) Ping(ctx context.Context) error {
	if _, err := s.objects.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (s *AssetStore) Bucket() string {
	return s.bucket
}
