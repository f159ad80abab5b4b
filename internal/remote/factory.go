package remote

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"drivesync/internal/config"
	"drivesync/internal/ds"
)

// NewStoreFromConfig creates a RemoteStore implementation based on the remote config type.
// ts is only used, and then required, for type=drive.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, ts oauth2.TokenSource) (ds.RemoteStore, error) {
	switch cfg.Remote.Type {
	case "memory":
		return NewMemoryStore(ds.RealClock{}, ds.UUIDGenerator{}), nil
	case "drive":
		if ts == nil {
			return nil, errors.New("drive remote requires credentials; run 'drivesync auth login'")
		}
		store, err := NewDriveStore(ctx, ts, int(cfg.Transfer.ChunkSize))
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		if cfg.Remote.S3Bucket == "" {
			return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
		}
		store, err := NewS3Store(ctx, S3Options{
			Bucket:          cfg.Remote.S3Bucket,
			Prefix:          cfg.Remote.S3Prefix,
			Region:          cfg.Remote.S3Region,
			Endpoint:        cfg.Remote.S3Endpoint,
			AccessKeyID:     cfg.Remote.S3AccessKeyID,
			SecretAccessKey: cfg.Remote.S3SecretAccessKey,
			RootID:          cfg.RootFolderID,
			PartSize:        cfg.Transfer.ChunkSize,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Remote.Type)
	}
}
