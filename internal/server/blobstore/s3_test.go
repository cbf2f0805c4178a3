package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects   map[string][]byte
	failWith  error
	headCalls int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.headCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.failWith
}

func TestS3Store_RoundTrip(t *testing.T) {
	api := newFakeS3()
	s := &S3Store{api: api, bucket: "zkshare"}
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "blobs/a", []byte("cipher")))

	ok, err := s.Exists(ctx, "blobs/a")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "blobs/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), got)

	require.NoError(t, s.Delete(ctx, "blobs/a"))
	_, err = s.Get(ctx, "blobs/a")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "blobs/a"), ErrBlobNotFound)

	ok, err = s.Exists(ctx, "blobs/a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Ping(ctx))
}

func TestS3Store_ErrorsAreWrapped(t *testing.T) {
	boom := errors.New("boom")
	api := newFakeS3()
	api.failWith = boom
	s := &S3Store{api: api, bucket: "zkshare"}
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("x")), boom)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrBlobNotFound)
	_, err = s.Exists(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Ping(ctx), boom)
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-central-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "minio", creds.AccessKeyID)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		require.NotNil(t, c)
		return &s3.PresignClient{}
	}

	s, err := NewS3Store(context.Background(), S3Config{
		Region:    "eu-central-1",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "zkshare",
		Endpoint:  "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	require.NotNil(t, s.presign)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_Errors(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	require.Error(t, err)

	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3Store(context.Background(), S3Config{Bucket: "b"})
	require.ErrorContains(t, err, "load-fail")
}

func TestS3Store_PresignGet(t *testing.T) {
	origPresign := presignGetObject
	t.Cleanup(func() { presignGetObject = origPresign })

	var gotKey string
	var gotExpires time.Duration
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotKey = *in.Key
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		gotExpires = po.Expires
		return &v4.PresignedHTTPRequest{URL: "https://minio/zkshare/" + gotKey, Method: http.MethodGet}, nil
	}

	s := &S3Store{api: newFakeS3(), presign: &s3.PresignClient{}, bucket: "zkshare"}
	url, err := s.PresignGet(context.Background(), "blobs/x", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://minio/zkshare/blobs/x", url)
	assert.Equal(t, "blobs/x", gotKey)
	assert.Equal(t, 5*time.Minute, gotExpires)

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-fail")
	}
	_, err = s.PresignGet(context.Background(), "blobs/x", time.Minute)
	require.EqualError(t, err, "presign-fail")

	_, err = (&S3Store{}).PresignGet(context.Background(), "k", time.Minute)
	require.Error(t, err)
}
