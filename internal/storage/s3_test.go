package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestNewS3Publisher(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	publisher, err := NewS3Publisher(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Bucket, publisher.bucket)
	assert.Equal(t, cfg.Region, publisher.region)
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestS3Publisher_Publish(t *testing.T) {
	client := &mockS3{}
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "logos" &&
			aws.ToString(in.Key) == "logomotion/s1/image.png" &&
			aws.ToString(in.ContentType) == "image/png" &&
			aws.ToInt64(in.ContentLength) == 3 &&
			string(body) == "png"
	})).Return(&s3.PutObjectOutput{}, nil)

	publisher := NewS3PublisherWithClient(client, S3Config{Bucket: "logos", Region: "eu-west-1"})

	url, err := publisher.Publish(context.Background(), "logomotion/s1/image.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://logos.s3.eu-west-1.amazonaws.com/logomotion/s1/image.png", url)
	client.AssertExpectations(t)
}

func TestS3Publisher_Publish_Error(t *testing.T) {
	client := &mockS3{}
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	publisher := NewS3PublisherWithClient(client, S3Config{Bucket: "logos", Region: "eu-west-1"})

	_, err := publisher.Publish(context.Background(), "k", "video/mp4", []byte("mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Publisher_Publish_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/test-bucket/logomotion/s1/video.mp4"), r.URL.Path)
		assert.Equal(t, "video/mp4", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "test content", string(body))

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	publisher, err := NewS3Publisher(context.Background(), cfg)
	require.NoError(t, err)

	url, err := publisher.Publish(context.Background(), "logomotion/s1/video.mp4", "video/mp4", []byte("test content"))
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/test-bucket/logomotion/s1/video.mp4", url)
}

func TestDisabled_Publish(t *testing.T) {
	_, err := Disabled{}.Publish(context.Background(), "k", "image/png", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		kind        Kind
		contentType string
		wantExt     string
	}{
		{KindImage, "image/png", ".png"},
		{KindImage, "image/jpeg", ".jpg"},
		{KindVideo, "video/mp4", ".mp4"},
		{KindVideo, "video/mp4; codecs=avc1", ".mp4"},
		{KindImage, "", ".bin"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+" "+tt.contentType, func(t *testing.T) {
			key := ObjectKey("session-1", tt.kind, tt.contentType)
			assert.True(t, strings.HasPrefix(key, "logomotion/session-1/"+string(tt.kind)+"-"), key)
			assert.True(t, strings.HasSuffix(key, tt.wantExt), key)
		})
	}

	assert.NotEqual(t, ObjectKey("s", KindImage, "image/png"), ObjectKey("s", KindImage, "image/png"))
}

func TestKind_IsValid(t *testing.T) {
	assert.True(t, KindImage.IsValid())
	assert.True(t, KindVideo.IsValid())
	assert.False(t, Kind("audio").IsValid())
}
