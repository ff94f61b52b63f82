package artifacts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"3f1c.pdf", true},
		{"report_1-a.pdf", true},
		{"", false},
		{"../etc/passwd", false},
		{"a/b.pdf", false},
		{".hidden", false},
		{"a..pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidKey)
			}
		})
	}
}

func TestKeyFromURL(t *testing.T) {
	key, ok := KeyFromURL("/api/downloads", "/api/downloads/x.pdf")
	assert.True(t, ok)
	assert.Equal(t, "x.pdf", key)

	_, ok = KeyFromURL("/api/downloads/", "/other/x.pdf")
	assert.False(t, ok)

	_, ok = KeyFromURL("/api/downloads", "/api/downloads/../x.pdf")
	assert.False(t, ok)
}

func TestLocal_PutOpen(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	url, err := l.Put(ctx, "abc.pdf", []byte("%PDF-1.3"), ContentTypePDF)
	require.NoError(t, err)
	assert.Equal(t, "/api/downloads/abc.pdf", url)

	body, contentType, err := l.Open(ctx, "abc.pdf")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))
	assert.Equal(t, "application/pdf", contentType)

	_, _, err = l.Open(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Put(ctx, "../escape.pdf", nil, ContentTypePDF)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewLocal_RequiresDir(t *testing.T) {
	_, err := NewLocal("", "")
	assert.Error(t, err)
}

// fakeBucket is a minimal path-style S3 endpoint for PutObject and GetObject.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[path] = data
		f.types[path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[path])
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3(t *testing.T) (*S3Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("key", "secret", ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewS3StoreFromClient(client, "reports", ""), bucket
}

func TestS3Store_PutOpen(t *testing.T) {
	ctx := context.Background()
	store, bucket := newFakeS3(t)

	url, err := store.Put(ctx, "abc.pdf", []byte("%PDF-1.3"), ContentTypePDF)
	require.NoError(t, err)
	assert.Equal(t, "/api/downloads/abc.pdf", url)
	assert.Equal(t, []byte("%PDF-1.3"), bucket.objects["reports/abc.pdf"])

	body, contentType, err := store.Open(ctx, "abc.pdf")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))
	assert.Equal(t, ContentTypePDF, contentType)

	_, _, err = store.Open(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
