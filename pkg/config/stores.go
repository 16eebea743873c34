package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dsserver/pkg/blobstore"
	blobfs "github.com/marmos91/dsserver/pkg/blobstore/fs"
	blobmemory "github.com/marmos91/dsserver/pkg/blobstore/memory"
	blobs3 "github.com/marmos91/dsserver/pkg/blobstore/s3"
	"github.com/mitchellh/mapstructure"
)

// s3YAMLConfig represents S3 configuration loaded from YAML files.
type s3YAMLConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// CreateBlobStore builds the blob store selected by cfg.Type.
func CreateBlobStore(ctx context.Context, cfg *StoreConfig) (blobstore.Store, error) {
	switch cfg.Type {
	case "memory":
		return blobmemory.New(), nil
	case "filesystem":
		return createFilesystemStore(ctx, cfg)
	case "s3":
		return createS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}

// createFilesystemStore creates a filesystem-backed blob store.
func createFilesystemStore(ctx context.Context, cfg *StoreConfig) (blobstore.Store, error) {
	var fsCfg struct {
		Path string `mapstructure:"path"`
	}
	if err := mapstructure.Decode(cfg.Filesystem, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid filesystem config: %w", err)
	}

	if fsCfg.Path == "" {
		return nil, fmt.Errorf("filesystem path is required")
	}

	store, err := blobfs.New(ctx, fsCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem store: %w", err)
	}
	return store, nil
}

// createS3Store creates an S3-backed blob store.
func createS3Store(ctx context.Context, cfg *StoreConfig) (blobstore.Store, error) {
	var s3Cfg s3YAMLConfig
	if err := mapstructure.Decode(cfg.S3, &s3Cfg); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}

	if s3Cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	client, err := blobs3.NewClient(ctx, blobs3.ClientConfig{
		Region:          s3Cfg.Region,
		Endpoint:        s3Cfg.Endpoint,
		AccessKeyID:     s3Cfg.AccessKeyID,
		SecretAccessKey: s3Cfg.SecretAccessKey,
		MaxRetries:      s3Cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	store, err := blobs3.New(ctx, blobs3.Config{
		Client:    client,
		Bucket:    s3Cfg.Bucket,
		KeyPrefix: s3Cfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 store: %w", err)
	}
	return store, nil
}
