package payload_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/diet-digest/backend/internal/logger"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
)

type stubObjects struct {
	objects map[string][]byte
	err     error
	calls   []string
}

func (s *stubObjects) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	s.calls = append(s.calls, bucket+"/"+key)
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, payload.ErrObjectNotFound
	}
	return data, nil
}

// slowObjects never answers before the context ends.
type slowObjects struct{}

func (slowObjects) GetObject(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		bucket  string
		want    string
		wantErr bool
	}{
		{name: "virtual hosted regional", url: "https://article-payloads.s3.ap-northeast-1.amazonaws.com/articles/issue-002.json", bucket: "article-payloads", want: "articles/issue-002.json"},
		{name: "virtual hosted global", url: "https://article-payloads.s3.amazonaws.com/issue-002.json", bucket: "article-payloads", want: "issue-002.json"},
		{name: "path style", url: "https://s3.ap-northeast-1.amazonaws.com/article-payloads/articles/issue-002.json", bucket: "article-payloads", want: "articles/issue-002.json"},
		{name: "custom endpoint", url: "http://localhost:4566/article-payloads/articles/issue-002.json", bucket: "article-payloads", want: "articles/issue-002.json"},
		{name: "other bucket kept", url: "http://localhost:4566/other/issue-002.json", bucket: "article-payloads", want: "other/issue-002.json"},
		{name: "s3 scheme", url: "s3://article-payloads/articles/issue-002.json", bucket: "article-payloads", want: "articles/issue-002.json"},
		{name: "percent encoded", url: "https://article-payloads.s3.amazonaws.com/articles/%E7%B5%A6%E9%A3%9F.json", bucket: "article-payloads", want: "articles/給食.json"},
		{name: "bucket only", url: "https://s3.amazonaws.com/article-payloads/", bucket: "article-payloads", wantErr: true},
		{name: "empty", url: " ", bucket: "article-payloads", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payload.KeyFromURL(tt.url, tt.bucket)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoaderLoad(t *testing.T) {
	objects := &stubObjects{objects: map[string][]byte{
		"bucket/articles/ok.json":  []byte(`{"summary":"要約","dialogs":[{"order":1,"summary":"開会"},{"summary":"no order"}],"key_points":["a"]}`),
		"bucket/articles/bad.json": []byte(`{not json`),
		"bucket/articles/arr.json": []byte(`null`),
	}}
	loader := payload.NewLoader(objects, "bucket", time.Second, logger.Discard())
	ctx := context.Background()

	p, ok := loader.Load(ctx, payload.Reference{Key: "articles/ok.json"})
	require.True(t, ok)
	require.Equal(t, "要約", p.Summary.Summary)
	require.Len(t, p.Dialogs, 1)
	require.Equal(t, []string{"a"}, p.KeyPoints)

	p, ok = loader.Load(ctx, payload.Reference{URL: "https://bucket.s3.amazonaws.com/articles/ok.json"})
	require.True(t, ok)
	require.Equal(t, "要約", p.Summary.Summary)

	_, ok = loader.Load(ctx, payload.Reference{})
	require.False(t, ok)
	_, ok = loader.Load(ctx, payload.Reference{Key: "articles/missing.json"})
	require.False(t, ok)
	_, ok = loader.Load(ctx, payload.Reference{Key: "articles/bad.json"})
	require.False(t, ok)
	_, ok = loader.Load(ctx, payload.Reference{Key: "articles/arr.json"})
	require.False(t, ok)
	_, ok = loader.Load(ctx, payload.Reference{URL: "::bad::"})
	require.False(t, ok)

	failing := payload.NewLoader(&stubObjects{err: errors.New("access denied")}, "bucket", 0, nil)
	_, ok = failing.Load(ctx, payload.Reference{Key: "articles/ok.json"})
	require.False(t, ok)

	var nilLoader *payload.Loader
	_, ok = nilLoader.Load(ctx, payload.Reference{Key: "x"})
	require.False(t, ok)
}

func TestDirGetter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bucket", "articles"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bucket", "articles", "a.json"), []byte(`{}`), 0o600))

	g := payload.NewDirGetter(root)
	data, err := g.GetObject(context.Background(), "bucket", "articles/a.json")
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))

	_, err = g.GetObject(context.Background(), "bucket", "articles/b.json")
	require.ErrorIs(t, err, payload.ErrObjectNotFound)

	_, err = g.GetObject(context.Background(), "bucket", "../../etc/passwd")
	require.Error(t, err)
	require.NotErrorIs(t, err, payload.ErrObjectNotFound)
}

type stubS3 struct {
	body string
	err  error
}

func (s *stubS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s.body))}, nil
}

func TestS3Getter(t *testing.T) {
	g := payload.NewS3Getter(&stubS3{body: `{"summary":"x"}`})
	data, err := g.GetObject(context.Background(), "bucket", "k.json")
	require.NoError(t, err)
	require.Equal(t, `{"summary":"x"}`, string(data))

	missing := payload.NewS3Getter(&stubS3{err: &types.NoSuchKey{}})
	_, err = missing.GetObject(context.Background(), "bucket", "k.json")
	require.ErrorIs(t, err, payload.ErrObjectNotFound)

	broken := payload.NewS3Getter(&stubS3{err: errors.New("dial tcp: refused")})
	_, err = broken.GetObject(context.Background(), "bucket", "k.json")
	require.Error(t, err)
	require.NotErrorIs(t, err, payload.ErrObjectNotFound)
}

func TestDirGetterPutObject(t *testing.T) {
	g := payload.NewDirGetter(t.TempDir())
	ctx := context.Background()

	require.NoError(t, g.PutObject(ctx, "bucket", "articles/issue-002.json", []byte(`{"summary":"s"}`)))
	data, err := g.GetObject(ctx, "bucket", "articles/issue-002.json")
	require.NoError(t, err)
	require.Equal(t, `{"summary":"s"}`, string(data))

	require.Error(t, g.PutObject(ctx, "bucket", "../escape.json", []byte(`{}`)))
}

type stubS3Put struct {
	inputs []*s3.PutObjectInput
	bodies []string
}

func (s *stubS3Put) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.inputs = append(s.inputs, in)
	s.bodies = append(s.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Putter(t *testing.T) {
	client := &stubS3Put{}
	p := payload.NewS3Putter(client)

	require.NoError(t, p.PutObject(context.Background(), "article-payloads", "articles/a.json", []byte(`{}`)))
	require.Len(t, client.inputs, 1)
	require.Equal(t, "article-payloads", *client.inputs[0].Bucket)
	require.Equal(t, "articles/a.json", *client.inputs[0].Key)
	require.Equal(t, "application/json", *client.inputs[0].ContentType)
	require.Equal(t, `{}`, client.bodies[0])
}

func TestLoaderTimeout(t *testing.T) {
	loader := payload.NewLoader(slowObjects{}, "bucket", 20*time.Millisecond, logger.Discard())

	start := time.Now()
	p, ok := loader.Load(context.Background(), payload.Reference{Key: "articles/slow.json"})
	require.False(t, ok)
	require.Nil(t, p)
	require.Less(t, time.Since(start), time.Second)
}
