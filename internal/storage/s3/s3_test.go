package s3store

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "shop.sql.gz", objectKey("", "shop.sql.gz"))
	assert.Equal(t, "nightly/mysql/shop.sql.gz", objectKey("nightly/mysql", "/shop.sql.gz"))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), Options{Bucket: "b"})
	require.Error(t, err)
	_, err = New(context.Background(), Options{Region: "eu-west-1"})
	require.Error(t, err)
}

type fakeS3 struct {
	mu     sync.Mutex
	path   string
	body   []byte
	status int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	f.path = r.URL.Path
	f.body = body

	if f.status != 0 && f.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
		return
	}
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestStorage(t *testing.T, srv *httptest.Server) *Storage {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	s, err := New(context.Background(), Options{
		Name:      "s3",
		Bucket:    "backups",
		Region:    "us-east-1",
		Prefix:    "mysql/",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Endpoint:  srv.URL,
	})
	require.NoError(t, err)
	return s
}

func TestUploadPutsObject(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newTestStorage(t, srv)
	payload := []byte("compressed bytes")

	loc, err := s.Upload(context.Background(), "shop_2026-10-18_02-00-00.sql.gz", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, "s3://backups/mysql/shop_2026-10-18_02-00-00.sql.gz", loc)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "/backups/mysql/shop_2026-10-18_02-00-00.sql.gz", fake.path)
	assert.Equal(t, payload, fake.body)
}

func TestUploadReportsAPIError(t *testing.T) {
	fake := &fakeS3{status: http.StatusForbidden}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := newTestStorage(t, srv)
	payload := []byte("x")

	_, err := s.Upload(context.Background(), "a.sql.gz", bytes.NewReader(payload), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}
