package faceclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refStub map[string][]byte

func (r refStub) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := r[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func compareServer(t *testing.T, similarity float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/compare":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			probe, _, err := r.FormFile("image_1")
			require.NoError(t, err)
			ref, hdr, err := r.FormFile("image_2")
			require.NoError(t, err)
			p, _ := io.ReadAll(probe)
			q, _ := io.ReadAll(ref)
			assert.Equal(t, "probe-bytes", string(p))
			assert.Equal(t, "ref-bytes", string(q))
			assert.Equal(t, "1_face.jpg", hdr.Filename)
			_, _ = io.WriteString(w, `{"similarity":`+strconv.FormatFloat(similarity, 'f', -1, 64)+`,"match":true,"threshold":0.5}`)
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompareAppliesThreshold(t *testing.T) {
	refs := refStub{"classes/7A/Alice/1_face.jpg": []byte("ref-bytes")}

	c := New(compareServer(t, 0.95).URL, false, refs)
	ok, err := c.Compare(context.Background(), []byte("probe-bytes"), "classes/7A/Alice/1_face.jpg", 90)
	require.NoError(t, err)
	assert.True(t, ok)

	c = New(compareServer(t, 0.42).URL, false, refs)
	ok, err = c.Compare(context.Background(), []byte("probe-bytes"), "classes/7A/Alice/1_face.jpg", 90)
	require.NoError(t, err)
	assert.False(t, ok, "service match flag is ignored below our threshold")
}

func TestCompareMissingReference(t *testing.T) {
	c := New("http://unused", false, refStub{})
	_, err := c.Compare(context.Background(), []byte("probe"), "classes/7A/Alice/1_face.jpg", 90)
	assert.Error(t, err)
}

func TestCompareServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no face detected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(srv.URL, false, refStub{"k.jpg": []byte("x")})
	_, err := c.Compare(context.Background(), []byte("probe"), "k.jpg", 90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no face detected")
}

func TestSkipModeAlwaysMatches(t *testing.T) {
	c := New("", true, nil)
	ok, err := c.Compare(context.Background(), []byte("probe"), "anything.jpg", 99)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealth(t *testing.T) {
	c := New(compareServer(t, 0).URL, false, nil)
	assert.NoError(t, c.Health(context.Background()))

	c = New("http://127.0.0.1:1", false, nil)
	assert.Error(t, c.Health(context.Background()))
}

type rekognitionStub struct {
	in  *rekognition.CompareFacesInput
	out *rekognition.CompareFacesOutput
	err error
}

func (s *rekognitionStub) ListCollections(ctx context.Context, in *rekognition.ListCollectionsInput, _ ...func(*rekognition.Options)) (*rekognition.ListCollectionsOutput, error) {
	if aws.ToInt32(in.MaxResults) != 1 {
		return nil, errors.New("health listing must be capped at one collection")
	}
	return &rekognition.ListCollectionsOutput{}, s.err
}

func (s *rekognitionStub) CompareFaces(ctx context.Context, in *rekognition.CompareFacesInput, _ ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error) {
	s.in = in
	return s.out, s.err
}

func TestRekognitionCompare(t *testing.T) {
	stub := &rekognitionStub{out: &rekognition.CompareFacesOutput{
		FaceMatches: []types.CompareFacesMatch{{Similarity: aws.Float32(97.5)}},
	}}
	oracle := NewRekognition(stub, "faces")

	ok, err := oracle.Compare(context.Background(), []byte("probe"), "classes/7A/Alice/1_face.jpg", 90)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("probe"), stub.in.SourceImage.Bytes)
	assert.Equal(t, "faces", aws.ToString(stub.in.TargetImage.S3Object.Bucket))
	assert.Equal(t, "classes/7A/Alice/1_face.jpg", aws.ToString(stub.in.TargetImage.S3Object.Name))
	assert.Equal(t, float32(90), aws.ToFloat32(stub.in.SimilarityThreshold))

	stub.out = &rekognition.CompareFacesOutput{}
	ok, err = oracle.Compare(context.Background(), []byte("probe"), "classes/7A/Alice/1_face.jpg", 90)
	require.NoError(t, err)
	assert.False(t, ok)

	stub.err = &types.InvalidParameterException{Message: aws.String("no face in source")}
	_, err = oracle.Compare(context.Background(), []byte("probe"), "classes/7A/Alice/1_face.jpg", 90)
	var ipe *types.InvalidParameterException
	assert.ErrorAs(t, err, &ipe)
}

func TestRekognitionHealth(t *testing.T) {
	stub := &rekognitionStub{}
	oracle := NewRekognition(stub, "faces")
	require.NoError(t, oracle.Health(context.Background()))

	stub.err = &types.AccessDeniedException{Message: aws.String("denied")}
	var ade *types.AccessDeniedException
	assert.ErrorAs(t, oracle.Health(context.Background()), &ade)
}
