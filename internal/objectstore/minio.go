package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// MinIOConfig описывает подключение к S3-совместимому хранилищу.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL задаётся, если бакет раздаётся публично (CDN, anonymous read).
	// Иначе возвращается presigned ссылка со сроком PresignExpiry.
	PublicBaseURL string
	PresignExpiry time.Duration
}

// MinIO загружает чеки в S3-совместимое хранилище.
type MinIO struct {
	client *minio.Client
	cfg    MinIOConfig
	logger *log.Entry
}

// NewMinIO создаёт клиента и убеждается, что бакет существует.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 7 * 24 * time.Hour
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIO{
		client: client,
		cfg:    cfg,
		logger: log.WithFields(log.Fields{"component": "objectstore", "bucket": cfg.Bucket}),
	}, nil
}

// Upload кладёт объект в бакет и возвращает ссылку на скачивание.
func (s *MinIO) Upload(ctx context.Context, obj domain.Object) (string, error) {
	key, err := cleanKey(obj.Key)
	if err != nil {
		return "", err
	}

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(obj.Body), int64(len(obj.Body)), minio.PutObjectOptions{
		ContentType: obj.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.WithFields(log.Fields{"key": key, "size": info.Size}).Debug("object uploaded")

	if s.cfg.PublicBaseURL != "" {
		return publicURL(s.cfg.PublicBaseURL, key), nil
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return presigned.String(), nil
}

// Ping проверяет доступность бакета (readiness).
func (s *MinIO) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	return err
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

var _ domain.ObjectStore = (*MinIO)(nil)
