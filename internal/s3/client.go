package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Inbox prefixes. Uploads live at PendingPrefix + "<user>/<file>.xlsx".
const (
	PendingPrefix = "imports/pending/"
	DonePrefix    = "imports/done/"
	FailedPrefix  = "imports/failed/"
)

// Config holds the settings needed to connect to an S3-compatible store.
type Config struct {
	Endpoint  string // custom endpoint URL (e.g. http://localhost:3900)
	Region    string // "garage" for GarageFS, "us-east-1" for real S3
	Bucket    string // "analytiqa"
	AccessKey string
	SecretKey string
}

// Client wraps an S3 client scoped to a single bucket.
type Client struct {
	s3     *s3.Client
	bucket string
	logger *slog.Logger
}

// New creates an S3 Client from the given Config.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Upload is a worksheet waiting in the inbox.
type Upload struct {
	Key          string
	User         string
	Name         string
	LastModified time.Time
}

// ParseUploadKey splits an inbox key into user and file name. Keys that
// are not "<pending>/<user>/<file>.xlsx" are rejected.
func ParseUploadKey(key string) (Upload, bool) {
	rest, ok := strings.CutPrefix(key, PendingPrefix)
	if !ok {
		return Upload{}, false
	}
	user, name, ok := strings.Cut(rest, "/")
	if !ok || user == "" || name == "" || strings.Contains(name, "/") {
		return Upload{}, false
	}
	if !strings.EqualFold(path.Ext(name), ".xlsx") {
		return Upload{}, false
	}
	return Upload{Key: key, User: user, Name: name}, true
}

// ListPending returns the uploads in the inbox, oldest first as S3
// lists them (lexical key order).
func (c *Client) ListPending(ctx context.Context) ([]Upload, error) {
	prefix := PendingPrefix
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: &prefix,
	})

	var uploads []Upload
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list pending uploads: %w", err)
		}
		for _, obj := range page.Contents {
			u, ok := ParseUploadKey(aws.ToString(obj.Key))
			if !ok {
				c.logger.Debug("ignoring inbox object", "key", aws.ToString(obj.Key))
				continue
			}
			u.LastModified = aws.ToTime(obj.LastModified)
			uploads = append(uploads, u)
		}
	}
	return uploads, nil
}

// Get fetches the body of key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// Put stores data at key.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Move copies src to dst and deletes src.
func (c *Client) Move(ctx context.Context, src, dst string) error {
	_, err := c.s3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &c.bucket,
		Key:        &dst,
		CopySource: aws.String(c.bucket + "/" + src),
	})
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if _, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &src,
	}); err != nil {
		return fmt.Errorf("delete %s: %w", src, err)
	}
	return nil
}

// ArchiveKey is where a processed upload is moved to.
func ArchiveKey(u Upload, ok bool, at time.Time) string {
	prefix := FailedPrefix
	if ok {
		prefix = DonePrefix
	}
	return fmt.Sprintf("%s%s/%s-%s", prefix, u.User, at.UTC().Format("20060102T150405Z"), u.Name)
}
