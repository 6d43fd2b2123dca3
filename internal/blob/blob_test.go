package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{
		"classes/7B/Bob/2_face.png",
		"classes/7A/Alice/1_face.jpg",
		"classes/7A/Alice/notes.txt",
	} {
		_, err := store.Put(ctx, key, []byte(key), "")
		require.NoError(t, err)
	}

	keys, err := store.List(ctx, "classes/7A/")
	require.NoError(t, err)
	assert.Equal(t, []string{"classes/7A/Alice/1_face.jpg", "classes/7A/Alice/notes.txt"}, keys)

	all, err := store.List(ctx, "classes/")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	data, err := store.Get(ctx, "classes/7B/Bob/2_face.png")
	require.NoError(t, err)
	assert.Equal(t, "classes/7B/Bob/2_face.png", string(data))

	_, err = store.Get(ctx, "classes/7B/Nobody/x.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.jpg", []byte("x"), "")
	assert.Error(t, err)
	_, err = store.Get(context.Background(), "classes/../../etc/passwd")
	assert.Error(t, err)
}

type s3Stub struct {
	objects map[string][]byte
	pages   [][]string
	listed  int
	lastPut *s3.PutObjectInput
	headErr error
	headed  string
}

func (s *s3Stub) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	s.headed = aws.ToString(in.Bucket)
	return &s3.HeadBucketOutput{}, s.headErr
}

func (s *s3Stub) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.lastPut = in
	data, _ := io.ReadAll(in.Body)
	s.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (s *s3Stub) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := s.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (s *s3Stub) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := s.pages[s.listed]
	s.listed++
	out := &s3.ListObjectsV2Output{}
	for _, k := range page {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if s.listed < len(s.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func TestS3Ping(t *testing.T) {
	stub := &s3Stub{}
	store := NewS3(stub, "faces")

	require.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "faces", stub.headed)

	stub.headErr = &types.NotFound{Message: aws.String("no bucket")}
	err := store.Ping(context.Background())
	var nf *types.NotFound
	assert.ErrorAs(t, err, &nf)
}

func TestS3PutGet(t *testing.T) {
	stub := &s3Stub{objects: map[string][]byte{}}
	store := NewS3(stub, "faces")
	ctx := context.Background()

	loc, err := store.Put(ctx, "classes/7A/Alice/1_face.jpg", []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "s3://faces/classes/7A/Alice/1_face.jpg", loc)
	assert.Equal(t, "image/jpeg", aws.ToString(stub.lastPut.ContentType))
	assert.Equal(t, "faces", aws.ToString(stub.lastPut.Bucket))

	data, err := store.Get(ctx, "classes/7A/Alice/1_face.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	_, err = store.Get(ctx, "classes/7A/Bob/1_face.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3ListFollowsContinuation(t *testing.T) {
	stub := &s3Stub{pages: [][]string{
		{"classes/7A/Alice/1.jpg"},
		{"classes/7A/Bob/2.jpg", "classes/7A/Bob/3.png"},
	}}
	store := NewS3(stub, "faces")

	keys, err := store.List(context.Background(), "classes/7A/")
	require.NoError(t, err)
	assert.Equal(t, []string{"classes/7A/Alice/1.jpg", "classes/7A/Bob/2.jpg", "classes/7A/Bob/3.png"}, keys)
	assert.Equal(t, 2, stub.listed)
}

func newCloudinaryTest(t *testing.T, handler http.HandlerFunc) *Cloudinary {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewCloudinary("demo", "key", "secret")
	c.APIBase = srv.URL
	c.DeliveryBase = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestCloudinaryPutSignsPublicID(t *testing.T) {
	c := newCloudinaryTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/image/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "classes/7A/Alice/1_face", r.FormValue("public_id"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "e49f40b09428a30a5d4241a8f68865b281fee1d4", r.FormValue("signature"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "img", string(data))

		_, _ = io.WriteString(w, `{"public_id":"classes/7A/Alice/1_face","secure_url":"https://cdn/x.jpg","format":"jpg"}`)
	})

	loc, err := c.Put(context.Background(), "classes/7A/Alice/1_face.jpg", []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", loc)
}

func TestCloudinaryPutFailure(t *testing.T) {
	c := newCloudinaryTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	})

	_, err := c.Put(context.Background(), "classes/7A/Alice/1_face.jpg", []byte("img"), "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCloudinaryListPages(t *testing.T) {
	calls := 0
	c := newCloudinaryTest(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/v1_1/demo/resources/image/upload", r.URL.Path)
		assert.Equal(t, "classes/7A/", r.URL.Query().Get("prefix"))

		if r.URL.Query().Get("next_cursor") == "" {
			_, _ = io.WriteString(w, `{"resources":[{"public_id":"classes/7A/Alice/1_face","format":"jpg"}],"next_cursor":"abc"}`)
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("next_cursor"))
		_, _ = io.WriteString(w, `{"resources":[{"public_id":"classes/7A/Bob/2_face","format":"png"}]}`)
	})

	keys, err := c.List(context.Background(), "classes/7A/")
	require.NoError(t, err)
	assert.Equal(t, []string{"classes/7A/Alice/1_face.jpg", "classes/7A/Bob/2_face.png"}, keys)
	assert.Equal(t, 2, calls)
}

func TestCloudinaryGet(t *testing.T) {
	c := newCloudinaryTest(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/demo/image/upload/classes/7A/Alice/1_face.jpg") {
			_, _ = io.WriteString(w, "img")
			return
		}
		http.NotFound(w, r)
	})

	data, err := c.Get(context.Background(), "classes/7A/Alice/1_face.jpg")
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	_, err = c.Get(context.Background(), "classes/7A/Alice/missing.jpg")
	assert.True(t, errors.Is(err, ErrNotFound))
}
