package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/FeatureScope/pkg/errors"
)

type SnapshotStoreTestSuite struct {
	suite.Suite
	api   *MockMinIOAPI
	store SnapshotStore
}

func (s *SnapshotStoreTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	s.api.On("BucketExists", mock.Anything, "snaps").Return(true, nil)
	c, err := NewClientWithAPI(context.Background(), s.api, config.MinIOConfig{Bucket: "snaps", Prefix: "sae"}, logging.NewNopLogger())
	s.Require().NoError(err)
	s.store = NewSnapshotStore(c, logging.NewNopLogger())
}

func sampleResult() *projection.FetchResult {
	return &projection.FetchResult{
		Coordinates:  [][2]float64{{0, 0}, {1, 1}},
		Indices:      []projection.FeatureID{"7", "8"},
		Descriptions: []string{"a", "b"},
		HierarchicalClusters: map[string]projection.ClusterPayload{
			"10": {Labels: []int{0, 0}, Colors: []string{"#1f77b4", "#1f77b4"}},
		},
	}
}

func (s *SnapshotStoreTestSuite) TestLoad_Success() {
	body, _ := json.Marshal(sampleResult())
	s.api.On("GetObject", mock.Anything, "snaps", "sae/latest.json", mock.Anything).
		Return(io.NopCloser(bytes.NewReader(body)), nil)

	res, err := s.store.Load(context.Background(), "latest.json")
	s.Require().NoError(err)
	s.Equal([]projection.FeatureID{"7", "8"}, res.Indices)
	s.Contains(res.HierarchicalClusters, "10")
}

func (s *SnapshotStoreTestSuite) TestLoad_NotFound() {
	s.api.On("GetObject", mock.Anything, "snaps", "sae/missing.json", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound})

	_, err := s.store.Load(context.Background(), "missing.json")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSnapshotNotFound))
	s.True(pkgerrors.IsNotFound(err))
}

func (s *SnapshotStoreTestSuite) TestLoad_Corrupt() {
	s.api.On("GetObject", mock.Anything, "snaps", "sae/bad.json", mock.Anything).
		Return(io.NopCloser(bytes.NewReader([]byte("{"))), nil)

	_, err := s.store.Load(context.Background(), "bad.json")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *SnapshotStoreTestSuite) TestLoad_EmptyKey() {
	_, err := s.store.Load(context.Background(), "")
	s.True(pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
}

func (s *SnapshotStoreTestSuite) TestSave() {
	s.api.On("PutObject", mock.Anything, "snaps", "sae/v1.json", mock.Anything, mock.AnythingOfType("int64"),
		minio.PutObjectOptions{ContentType: contentTypeJSON}).
		Return(minio.UploadInfo{Bucket: "snaps", Key: "sae/v1.json", ETag: "etag", Size: 42}, nil)

	info, err := s.store.Save(context.Background(), "v1.json", sampleResult())
	s.Require().NoError(err)
	s.Equal("v1.json", info.Key)
	s.Equal("etag", info.ETag)
	s.EqualValues(42, info.Size)
}

func (s *SnapshotStoreTestSuite) TestSave_UploadFails() {
	s.api.On("PutObject", mock.Anything, "snaps", "sae/v1.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("disk full"))

	_, err := s.store.Save(context.Background(), "v1.json", sampleResult())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func (s *SnapshotStoreTestSuite) TestList_NewestFirst() {
	now := time.Now()
	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "sae/old.json", Size: 1, LastModified: now.Add(-time.Hour)}
	ch <- minio.ObjectInfo{Key: "sae/new.json", Size: 2, LastModified: now}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "snaps", minio.ListObjectsOptions{Prefix: "sae/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	got, err := s.store.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("new.json", got[0].Key)
	s.Equal("old.json", got[1].Key)
}

func (s *SnapshotStoreTestSuite) TestStatAndDelete() {
	s.api.On("StatObject", mock.Anything, "snaps", "sae/v1.json", mock.Anything).
		Return(minio.ObjectInfo{Key: "sae/v1.json", Size: 9, ETag: "e"}, nil)
	s.api.On("RemoveObject", mock.Anything, "snaps", "sae/v1.json", mock.Anything).Return(nil)

	info, err := s.store.Stat(context.Background(), "v1.json")
	s.Require().NoError(err)
	s.EqualValues(9, info.Size)
	s.NoError(s.store.Delete(context.Background(), "v1.json"))
}

func TestSnapshotStoreSuite(t *testing.T) {
	suite.Run(t, new(SnapshotStoreTestSuite))
}
