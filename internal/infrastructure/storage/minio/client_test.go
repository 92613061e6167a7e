package minio

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/config"
	pkgerrors "github.com/turtacn/FeatureScope/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.Called(ctx, bucketName, opts).Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockMinIOAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

func TestNewClientWithAPI_CreatesMissingBucket(t *testing.T) {
	api := new(MockMinIOAPI)
	api.On("BucketExists", mock.Anything, "snaps").Return(false, nil)
	api.On("MakeBucket", mock.Anything, "snaps", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)

	c, err := NewClientWithAPI(context.Background(), api, config.MinIOConfig{Bucket: "snaps"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "snaps", c.Bucket())
	api.AssertExpectations(t)
}

func TestNewClientWithAPI_ExistingBucket(t *testing.T) {
	api := new(MockMinIOAPI)
	api.On("BucketExists", mock.Anything, config.DefaultMinIOBucket).Return(true, nil)

	c, err := NewClientWithAPI(context.Background(), api, config.MinIOConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMinIOBucket, c.Bucket())
	api.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewClientWithAPI_BucketCheckFails(t *testing.T) {
	api := new(MockMinIOAPI)
	api.On("BucketExists", mock.Anything, "snaps").Return(false, errors.New("denied"))

	_, err := NewClientWithAPI(context.Background(), api, config.MinIOConfig{Bucket: "snaps"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func TestClient_CloseAndHealth(t *testing.T) {
	api := new(MockMinIOAPI)
	api.On("BucketExists", mock.Anything, "snaps").Return(true, nil)
	api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{{Name: "snaps"}}, nil)

	c, err := NewClientWithAPI(context.Background(), api, config.MinIOConfig{Bucket: "snaps"}, nil)
	require.NoError(t, err)

	st, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Healthy)
	assert.True(t, st.BucketExists)

	require.NoError(t, c.Close())
	_, err = c.API()
	assert.Equal(t, ErrClientClosed, err)
	_, err = c.HealthCheck(context.Background())
	assert.Error(t, err)
}
