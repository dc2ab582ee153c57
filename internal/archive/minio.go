package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"legacy2norm/internal/source"
)

// Config contains archive target configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string
}

// MinioArchiver writes each fetched batch as a JSONL object to an
// S3-compatible bucket before the batch is processed, giving a raw
// pre-migration backup of every document the engine read. Archiving is
// skipped entirely in dry-run mode by the caller.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
	seq    atomic.Int64
}

// NewMinioArchiver creates an archiver and ensures the bucket exists.
func NewMinioArchiver(ctx context.Context, cfg Config, logger *zap.Logger) (*MinioArchiver, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid archive endpoint")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating archive client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "checking archive bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "creating archive bucket %s", cfg.Bucket)
		}
	}

	return &MinioArchiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// cleanEndpoint reduces an endpoint URL to host:port form.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", errors.New("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parsing endpoint URL")
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", errors.Errorf("endpoint URL cannot have a path (got %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

// ArchiveBatch uploads batch as one JSONL object under the step's prefix.
// Documents are encoded as relaxed extended JSON, one per line.
func (a *MinioArchiver) ArchiveBatch(ctx context.Context, step string, batch []source.Document) error {
	var buf bytes.Buffer
	for _, doc := range batch {
		line, err := bson.MarshalExtJSON(doc.Raw, false, false)
		if err != nil {
			return errors.Wrapf(err, "encoding document %v for archive", doc.ID)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	key := fmt.Sprintf("%s/batch-%08d.jsonl", step, a.seq.Add(1))
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	_, err := a.client.PutObject(ctx, a.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return errors.Wrapf(err, "uploading archive object %s", key)
	}

	a.logger.Debug("Archived batch",
		zap.String("step", step),
		zap.String("key", key),
		zap.Int("documents", len(batch)),
	)
	return nil
}
