package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/ideaftp/pkg/profile"
)

type fakeAPI struct {
	buckets map[string]map[string][]byte
	creates int
	headErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{buckets: make(map[string]map[string][]byte)}
}

func (f *fakeAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeAPI) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.creates++
	name := aws.ToString(in.Bucket)
	if _, ok := f.buckets[name]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	f.buckets[name] = make(map[string][]byte)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.buckets[aws.ToString(in.Bucket)][aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.buckets[aws.ToString(in.Bucket)][aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.buckets[aws.ToString(in.Bucket)] {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestEnsureBucket(t *testing.T) {
	api := newFakeAPI()
	c := NewWithAPI(api, "backups")
	ctx := context.Background()

	require.NoError(t, c.EnsureBucket(ctx))
	require.NoError(t, c.EnsureBucket(ctx))
	assert.Equal(t, 1, api.creates)

	api.headErr = errors.New("access denied")
	assert.Error(t, c.EnsureBucket(ctx))
}

func TestPushAndPullLatest(t *testing.T) {
	api := newFakeAPI()
	c := NewWithAPI(api, "backups")
	ctx := context.Background()

	_, _, err := c.PullLatest(ctx)
	assert.ErrorIs(t, err, ErrNoBackups)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key1, err := c.Push(ctx, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, "profiles-20260301-100000.enc", key1)

	now = now.Add(time.Hour)
	key2, err := c.Push(ctx, []byte("second"))
	require.NoError(t, err)

	api.buckets["backups"]["unrelated.txt"] = []byte("ignored")

	key, data, err := c.PullLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, key2, key)
	assert.Equal(t, "second", string(data))
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	_, err := FromSettings(context.Background(), profile.DefaultSettings())
	assert.Error(t, err)

	_, err = NewClient(context.Background(), "http://localhost:9000", "key", "secret", "")
	assert.Error(t, err)
}
