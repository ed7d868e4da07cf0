// Package blobstore wraps the MinIO client used for raw edition blobs
// and the browser session state. Keys follow the layout
// <edition-date>/<publication-slug>/raw/<sha256(url)>.<ext> for page
// blobs and auth/<publication-slug>/storage_state.json for sessions.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is a bucket-scoped object store client.
type Store struct {
	client *minio.Client
	bucket string
}

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string // user metadata attached at upload
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg config.Minio) (*Store, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, core.E(core.KindConfig, "minio client", err)
	}

	s := &Store{client: client, bucket: cfg.Bucket}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, core.E(core.KindUpstream, "check bucket %q", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, core.E(core.KindUpstream, "create bucket %q", cfg.Bucket, err)
		}
	}
	return s, nil
}

// RawKey builds the object key for a downloaded page blob.
func RawKey(editionDate, slug, pageURL, ext string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return fmt.Sprintf("%s/%s/raw/%s.%s", editionDate, slug, hex.EncodeToString(sum[:]), ext)
}

// RawPrefix is the key prefix holding one edition's raw blobs.
func RawPrefix(editionDate, slug string) string {
	return fmt.Sprintf("%s/%s/raw/", editionDate, slug)
}

// SessionKey is the object key of a publication's browser session blob.
func SessionKey(slug string) string {
	return fmt.Sprintf("auth/%s/storage_state.json", slug)
}

// Put stores a blob with its provenance metadata.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return core.E(core.KindUpstream, "put %s", key, err)
	}
	return nil
}

// Get fetches a blob. Missing keys report KindNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, core.E(core.KindUpstream, "get %s", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, core.E(core.KindNotFound, "blob %s not found", key)
		}
		return nil, core.E(core.KindUpstream, "read %s", key, err)
	}
	return data, nil
}

// Exists reports whether a key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, core.E(core.KindUpstream, "stat %s", key, err)
	}
	return true, nil
}

// Stat returns blob info, KindNotFound when missing.
func (s *Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, core.E(core.KindNotFound, "blob %s not found", key)
		}
		return ObjectInfo{}, core.E(core.KindUpstream, "stat %s", key, err)
	}
	return ObjectInfo{Key: info.Key, Size: info.Size, LastModified: info.LastModified,
		ContentType: info.ContentType, Metadata: normalizeMeta(info.UserMetadata)}, nil
}

// List returns all keys under a prefix in lexicographic order.
func (s *Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true, WithMetadata: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, core.E(core.KindUpstream, "list %s", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified,
			ContentType: obj.ContentType, Metadata: normalizeMeta(obj.UserMetadata)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Remove deletes a blob. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return core.E(core.KindUpstream, "remove %s", key, err)
	}
	return nil
}

// CleanupOlderThan deletes raw edition blobs whose leading date segment
// is older than the cutoff. Session blobs under auth/ are never touched.
// Returns the number of removed objects.
func (s *Store) CleanupOlderThan(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	removed := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return removed, core.E(core.KindUpstream, "list bucket", obj.Err)
		}
		datePart, _, ok := strings.Cut(obj.Key, "/")
		if !ok || len(datePart) != len("2006-01-02") {
			continue
		}
		if _, err := time.Parse("2006-01-02", datePart); err != nil {
			continue
		}
		if datePart >= cutoff {
			continue
		}
		if err := s.Remove(ctx, obj.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// normalizeMeta lowercases metadata keys and strips the S3 header
// prefix, so callers see the keys they uploaded with.
func normalizeMeta(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(k, "X-Amz-Meta-"), "x-amz-meta-"))
		out[k] = v
	}
	return out
}

// SaveSession uploads a storage_state.json for a publication.
func (s *Store) SaveSession(ctx context.Context, slug string, state []byte) error {
	return s.Put(ctx, SessionKey(slug), state, "application/json", map[string]string{
		"saved-at": time.Now().UTC().Format(time.RFC3339),
	})
}

// LoadSession fetches the storage_state.json for a publication.
func (s *Store) LoadSession(ctx context.Context, slug string) ([]byte, error) {
	return s.Get(ctx, SessionKey(slug))
}
