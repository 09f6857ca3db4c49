package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// MetadataPeriod tags an uploaded extract archive with its YYYY-MM period.
const MetadataPeriod = "period"

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is where published extract archives live.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// IsExtractArchive reports whether key names a zip archive.
func IsExtractArchive(key string) bool {
	return strings.EqualFold(path.Ext(key), ".zip")
}

// LatestExtract picks the archive with the greatest key. Period partitions
// sort chronologically, so this is the newest extract.
func LatestExtract(objects []ObjectInfo) (ObjectInfo, bool) {
	var latest ObjectInfo
	found := false
	for _, object := range objects {
		if !IsExtractArchive(object.Key) {
			continue
		}
		if !found || object.Key > latest.Key {
			latest = object
			found = true
		}
	}
	return latest, found
}
