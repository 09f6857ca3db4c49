package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/receiptqa/receiptqa/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucket is one S3 bucket. Keys are absolute within the bucket.
type bucket interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Ensure(ctx context.Context, region string) error
}

// Store keeps extract archives in an S3-compatible bucket, optionally under a key prefix.
type Store struct {
	bucket bucket
	keys   keyspace
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	b := &minioBucket{client: client, name: name}
	if cfg.AutoCreateBucket {
		if err := b.Ensure(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", name, err)
		}
	}
	return newStore(b, cfg.Prefix), nil
}

func newStore(b bucket, prefix string) *Store {
	return &Store{bucket: b, keys: newKeyspace(prefix)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.Put(ctx, full, body, size, opts)
	if err != nil {
		return storage.ObjectInfo{}, wrap("put", full, err)
	}
	info.Key = s.keys.relative(info.Key)
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.Get(ctx, full)
	if err != nil {
		return nil, wrap("get", full, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.Stat(ctx, full)
	if err != nil {
		return storage.ObjectInfo{}, wrap("stat", full, err)
	}
	info.Key = s.keys.relative(info.Key)
	return info, nil
}

// List returns the objects under prefix, ordered by key. Keys are reported
// relative to the store prefix so they can be passed back to Get.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	full, err := s.keys.listPrefix(prefix)
	if err != nil {
		return nil, err
	}
	objects, err := s.bucket.List(ctx, full)
	if err != nil {
		return nil, wrap("list", full, err)
	}
	for i := range objects {
		objects[i].Key = s.keys.relative(objects[i].Key)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func wrap(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%s object %q: %w", op, key, storage.ErrObjectNotFound)
	}
	return fmt.Errorf("%s object %q: %w", op, key, err)
}

// keyspace maps store keys to bucket keys under an optional prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" || path.Clean(prefix) == "." {
		return keyspace{}
	}
	return keyspace{prefix: path.Clean(prefix)}
}

func (k keyspace) resolve(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if k.prefix == "" {
		return cleaned, nil
	}
	return k.prefix + "/" + cleaned, nil
}

// listPrefix keeps a trailing slash so "extracts/" does not match "extracts-old/".
func (k keyspace) listPrefix(prefix string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		if k.prefix == "" {
			return "", nil
		}
		return k.prefix + "/", nil
	}
	full, err := k.resolve(trimmed)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(trimmed, "/") {
		full += "/"
	}
	return full, nil
}

func (k keyspace) relative(full string) string {
	if k.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, k.prefix+"/")
}

// parseEndpoint accepts host[:port] or a URL. An https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	uploaded, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, translate(err)
	}
	return storage.ObjectInfo{
		Key:          uploaded.Key,
		Size:         uploaded.Size,
		ETag:         uploaded.ETag,
		LastModified: uploaded.LastModified,
		Metadata:     opts.Metadata,
	}, nil
}

// Get stats the object first; minio defers the not-found error to the first read.
func (b *minioBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, translate(err)
	}
	return object, nil
}

func (b *minioBucket) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	stat, err := b.client.StatObject(ctx, b.name, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translate(err)
	}
	return objectInfo(stat), nil
}

func (b *minioBucket) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	for listed := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if listed.Err != nil {
			return nil, translate(listed.Err)
		}
		objects = append(objects, objectInfo(listed))
	}
	return objects, nil
}

func (b *minioBucket) Ensure(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return translate(err)
	}
	if exists {
		return nil
	}
	return translate(b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region}))
}

func objectInfo(object minio.ObjectInfo) storage.ObjectInfo {
	info := storage.ObjectInfo{
		Key:          object.Key,
		Size:         object.Size,
		ETag:         object.ETag,
		LastModified: object.LastModified,
	}
	if len(object.UserMetadata) > 0 {
		info.Metadata = make(map[string]string, len(object.UserMetadata))
		for key, value := range object.UserMetadata {
			info.Metadata[strings.ToLower(key)] = value
		}
	}
	return info
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
