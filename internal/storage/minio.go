package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tradelens/backend/internal/config"
)

// Uploader copies a local backup file to durable object storage.
type Uploader interface {
	UploadBackup(ctx context.Context, localPath string) (string, error)
}

// MinioStore uploads backups to one bucket.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinio connects and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	cli, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
	}

	return &MinioStore{client: cli, bucketName: cfg.MinioBucket, region: cfg.MinioRegion}, nil
}

// UploadBackup stores the file under backups/<basename> and returns its URL.
func (s *MinioStore) UploadBackup(ctx context.Context, localPath string) (string, error) {
	key := ObjectKey(localPath)
	_, err := s.client.FPutObject(ctx, s.bucketName, key, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key)
	return url, nil
}

func ObjectKey(localPath string) string {
	return "backups/" + filepath.Base(localPath)
}

func ContentType(localPath string) string {
	switch filepath.Ext(localPath) {
	case ".json":
		return "application/json"
	case ".db":
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}
