package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/banditpipe/rewardcore/internal/compression"
	"github.com/banditpipe/rewardcore/internal/secrets"
)

type mockS3API struct {
	putBody  []byte
	putKey   string
	objects  map[string][]byte
	deleted  []string
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	m.putKey = *params.Key
	m.putBody = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := m.objects[*params.Key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *mockS3API) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for k, v := range m.objects {
		k, v := k, v
		size := int64(len(v))
		contents = append(contents, types.Object{Key: &k, Size: &size})
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (m *mockS3API) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range params.Delete.Objects {
		m.deleted = append(m.deleted, *obj.Key)
		delete(m.objects, *obj.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func newTestS3Store(t *testing.T) (*S3Store, *mockS3API) {
	t.Helper()
	mock := &mockS3API{objects: map[string][]byte{}}
	store, err := NewS3Store(S3Config{Bucket: "b", Region: "us-west-2", Compression: "gzip"}, secrets.SetupTestStore(t))
	require.NoError(t, err)
	store.Client = mock
	return store, mock
}

func TestS3Store_PutAndGet(t *testing.T) {
	store, mock := newTestS3Store(t)
	ctx := context.Background()

	require.NoError(t, store.PutLines(ctx, "history/proj/shard/2026-01-01/obj.jsonl.gz", [][]byte{
		[]byte(`{"a":1}`), []byte(`{"a":2}`),
	}))
	require.Equal(t, "history/proj/shard/2026-01-01/obj.jsonl.gz", mock.putKey)

	mock.objects[mock.putKey] = mock.putBody

	r, err := store.Get(ctx, mock.putKey)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}

func TestS3Store_ListAndDelete(t *testing.T) {
	store, mock := newTestS3Store(t)
	ctx := context.Background()
	mock.objects["history/p/s/d/a.jsonl.gz"] = []byte("x")
	mock.objects["history/p/s/d/b.jsonl.gz"] = []byte("yy")

	metas, err := store.List(ctx, "history/p/s/d/")
	require.NoError(t, err)
	require.Len(t, metas, 2)

	require.NoError(t, store.Delete(ctx, []string{"history/p/s/d/a.jsonl.gz"}))
	require.ElementsMatch(t, []string{"history/p/s/d/a.jsonl.gz"}, mock.deleted)
	require.NotContains(t, mock.objects, "history/p/s/d/a.jsonl.gz")
}

func TestS3Store_CompressionRoundTrip(t *testing.T) {
	store, mock := newTestS3Store(t)
	ctx := context.Background()
	require.NoError(t, store.PutLines(ctx, "k", [][]byte{[]byte("line")}))
	r, err := compression.NewReader(bytes.NewReader(mock.putBody), "gzip")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "line\n", string(data))
}
