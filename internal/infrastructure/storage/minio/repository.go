package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/pkg/errors"
)

const contentTypeJSON = "application/json"

// ErrSnapshotNotFound is returned when no object exists under a key.
var ErrSnapshotNotFound = errors.New(errors.ErrCodeSnapshotNotFound, "projection snapshot not found")

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// SnapshotStore reads and publishes projection fetch results.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*projection.FetchResult, error)
	Save(ctx context.Context, key string, result *projection.FetchResult) (*SnapshotInfo, error)
	Stat(ctx context.Context, key string) (*SnapshotInfo, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Delete(ctx context.Context, key string) error
}

type snapshotStore struct {
	client *Client
	logger logging.Logger
}

// NewSnapshotStore builds a SnapshotStore over client.
func NewSnapshotStore(client *Client, log logging.Logger) SnapshotStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &snapshotStore{client: client, logger: log.Named("snapshots")}
}

func (s *snapshotStore) objectName(key string) string {
	if s.client.Prefix() == "" {
		return key
	}
	return path.Join(s.client.Prefix(), key)
}

func (s *snapshotStore) Load(ctx context.Context, key string) (*projection.FetchResult, error) {
	if key == "" {
		return nil, errors.InvalidParam("snapshot key is required")
	}
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}
	obj, err := api.GetObject(ctx, s.client.Bucket(), s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(err, key)
	}
	defer obj.Close()

	var res projection.FetchResult
	if err := json.NewDecoder(obj).Decode(&res); err != nil {
		// minio-go surfaces missing objects on first read
		if isNotFound(err) {
			return nil, ErrSnapshotNotFound.WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode snapshot").WithDetail(key)
	}
	s.logger.Debug("snapshot loaded", logging.String("key", key), logging.Int("points", len(res.Coordinates)))
	return &res, nil
}

func (s *snapshotStore) Save(ctx context.Context, key string, result *projection.FetchResult) (*SnapshotInfo, error) {
	if key == "" || result == nil {
		return nil, errors.InvalidParam("snapshot key and result are required")
	}
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode snapshot").WithDetail(key)
	}
	info, err := api.PutObject(ctx, s.client.Bucket(), s.objectName(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeJSON})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload snapshot").WithDetail(key)
	}
	s.logger.Info("snapshot saved", logging.String("key", key), logging.Int64("size", info.Size))
	return &SnapshotInfo{Key: key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (s *snapshotStore) Stat(ctx context.Context, key string) (*SnapshotInfo, error) {
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}
	oi, err := api.StatObject(ctx, s.client.Bucket(), s.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		return nil, s.mapError(err, key)
	}
	return &SnapshotInfo{Key: key, Size: oi.Size, ETag: oi.ETag, LastModified: oi.LastModified}, nil
}

// List returns snapshots under the prefix, newest first.
func (s *snapshotStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	api, err := s.client.API()
	if err != nil {
		return nil, err
	}
	prefix := s.client.Prefix()
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []SnapshotInfo
	for oi := range api.ListObjects(ctx, s.client.Bucket(), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if oi.Err != nil {
			return nil, errors.Wrap(oi.Err, errors.ErrCodeStorageError, "failed to list snapshots")
		}
		out = append(out, SnapshotInfo{
			Key:          strings.TrimPrefix(oi.Key, prefix),
			Size:         oi.Size,
			ETag:         oi.ETag,
			LastModified: oi.LastModified,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

func (s *snapshotStore) Delete(ctx context.Context, key string) error {
	api, err := s.client.API()
	if err != nil {
		return err
	}
	if err := api.RemoveObject(ctx, s.client.Bucket(), s.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return s.mapError(err, key)
	}
	return nil
}

func (s *snapshotStore) mapError(err error, key string) error {
	if isNotFound(err) {
		return ErrSnapshotNotFound.WithDetail(key)
	}
	return errors.Wrap(err, errors.ErrCodeStorageError, "snapshot storage failed").WithDetail(key)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
