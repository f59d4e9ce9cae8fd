package authored

import (
	"context"
	"fmt"
	"io"
	"os"

	"fanfrenzy/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Bucket serves authored documents from an S3-compatible bucket.
type Bucket struct {
	client *minio.Client
	cfg    S3Config
}

func NewBucket(cfg S3Config) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &Bucket{client: client, cfg: cfg}, nil
}

func (b *Bucket) Fetch(ctx context.Context, key string) ([]byte, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := b.client.GetObject(ctx, b.cfg.Bucket, b.cfg.Prefix+clean, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.wrap(clean, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.wrap(clean, err)
	}
	return data, nil
}

func (b *Bucket) wrap(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", domain.ErrContentNotFound, key)
	}
	return fmt.Errorf("fetch %s: %w", key, err)
}

// EnsureBucket creates the bucket when missing.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Upload copies a local JSON document to key.
func (b *Bucket) Upload(ctx context.Context, key, file string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, b.cfg.Bucket, b.cfg.Prefix+clean, f, info.Size(), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", clean, err)
	}
	return nil
}
