package repository

import (
	"context"
	"io"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// AssetStorage stores converted videos under their asset keys.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type AssetStorage interface {
	// PutAsset stores a converted video. The content type follows the key's
	// extension; size may be -1 when unknown.
	PutAsset(ctx context.Context, key model.AssetKey, reader io.Reader, size int64) error

	// AssetURL creates a presigned download URL valid for expiry.
	AssetURL(ctx context.Context, key model.AssetKey, expiry time.Duration) (string, error)
}
