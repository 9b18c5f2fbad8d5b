package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

type mockS3Client struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = body
	m.types[*input.Key] = aws.ToString(input.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: aws.String(m.types[*input.Key]),
	}, nil
}

type fakeFetcher struct {
	data     []byte
	mimeType string
	err      error
}

func (f fakeFetcher) FetchMedia(context.Context, string) ([]byte, string, error) {
	return f.data, f.mimeType, f.err
}

func TestStoreRoundTrip(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "media-bucket", logging.Discard())
	require.True(t, store.Enabled())

	require.NoError(t, store.Put(context.Background(), "media/r1/a.jpg", "image/jpeg", []byte("jpeg")))
	data, ct, err := store.Get(context.Background(), "media/r1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)
	assert.Equal(t, "image/jpeg", ct)
}

func TestStoreDisabledIsNoop(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.Put(context.Background(), "k", "image/png", []byte("x")))
	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestIngestStoresUnderRestaurantKey(t *testing.T) {
	mock := newMockS3()
	ing := NewIngestor(fakeFetcher{data: []byte("png"), mimeType: "image/png"}, NewStore(mock, "b", logging.Discard()), logging.Discard())
	ing.now = func() time.Time { return time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC) }

	obj, err := ing.Ingest(context.Background(), "r1", "mid-1")
	require.NoError(t, err)
	assert.Equal(t, "media/r1/2026/11/01/mid-1.png", obj.Key)
	assert.Equal(t, []byte("png"), mock.objects[obj.Key])
}

func TestIngestWithoutBucketStillReturnsBytes(t *testing.T) {
	ing := NewIngestor(fakeFetcher{data: []byte("jpg"), mimeType: "image/jpeg; charset=binary"}, nil, logging.Discard())

	obj, err := ing.Ingest(context.Background(), "r1", "mid-2")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp/mid-2", obj.Key)
	assert.Equal(t, "image/jpeg", obj.MIMEType)
}

func TestIngestRejections(t *testing.T) {
	cases := map[string]struct {
		fetcher fakeFetcher
		want    error
	}{
		"not an image": {fakeFetcher{data: []byte("pdf"), mimeType: "application/pdf"}, ErrUnsupportedMedia},
		"too large":    {fakeFetcher{data: make([]byte, MaxImageBytes+1), mimeType: "image/jpeg"}, ErrMediaTooLarge},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewIngestor(tc.fetcher, nil, logging.Discard()).Ingest(context.Background(), "r1", "m")
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := NewIngestor(fakeFetcher{err: errors.New("graph 500")}, nil, logging.Discard()).Ingest(context.Background(), "r1", "m")
	assert.Error(t, err)
}

func TestIngestKeepsImageWhenArchiveFails(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	ing := NewIngestor(fakeFetcher{data: []byte("jpg"), mimeType: "image/jpeg"}, NewStore(mock, "b", logging.Discard()), logging.Discard())

	obj, err := ing.Ingest(context.Background(), "r1", "mid-3")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp/mid-3", obj.Key)
	assert.NotEmpty(t, obj.Data)
}
