package stagecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sigilum/internal/config"
	"sigilum/internal/faults"
	"sigilum/internal/logging"
)

// MinioBackend stores entries as objects in an S3-compatible bucket.
type MinioBackend struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinioBackend connects to the configured endpoint and ensures the bucket
// exists.
func NewMinioBackend(ctx context.Context, cfg config.Minio, logger *slog.Logger) (*MinioBackend, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, faults.Configf("cache.minio.endpoint is required")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return nil, faults.Configf("cache.minio.endpoint must not include scheme: %q", cfg.Endpoint)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "stagecache", "minio client", cfg.Endpoint, err)
	}
	b := &MinioBackend{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logging.NewComponentLogger(logger, "stagecache"),
	}
	if err := b.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MinioBackend) Name() string { return "minio" }

func (b *MinioBackend) ensureBucket(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "stagecache", "bucket exists", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return faults.Wrap(faults.ErrStorage, "stagecache", "make bucket", b.bucket, err)
	}
	b.logger.InfoContext(ctx, "created stage cache bucket", logging.String("bucket", b.bucket))
	return nil
}

func (b *MinioBackend) objectKey(key Key) string {
	return objectKey(b.prefix, key)
}

func objectKey(prefix string, key Key) string {
	name := entryName(key) + entryExt
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (b *MinioBackend) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, faults.Wrap(faults.ErrStorage, "stagecache", "get object", string(key), err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, faults.Wrap(faults.ErrStorage, "stagecache", "read object", string(key), err)
	}
	return data, true, nil
}

func (b *MinioBackend) Put(ctx context.Context, key Key, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.objectKey(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "stagecache", "put object", string(key), err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (b *MinioBackend) String() string {
	return fmt.Sprintf("minio://%s/%s", b.bucket, b.prefix)
}
