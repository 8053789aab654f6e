package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/bluebridge/termsheet-ingest/backend/config"
)

func TestMarkdownKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		filename string
		expected string
	}{
		{"staging", "pending", "termsheet.pdf", "pending/termsheet.md"},
		{"isin", "XS3184638594", "Final Terms.pdf", "XS3184638594/Final Terms.md"},
		{"no extension", "XS3184638594", "termsheet", "XS3184638594/termsheet.md"},
		{"directory stripped", "pending", "uploads/2025/ts.PDF", "pending/ts.md"},
		{"windows path", "pending", `C:\docs\ts.pdf`, "pending/ts.md"},
		{"empty", "pending", "", "pending/termsheet.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownKey(tt.key, tt.filename); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

type s3Request struct {
	method      string
	path        string
	contentType string
	body        string
}

// fakeS3 accepts object writes and records them
func fakeS3(t *testing.T) (*httptest.Server, func() []s3Request) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []s3Request
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, s3Request{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)

	return server, func() []s3Request {
		mu.Lock()
		defer mu.Unlock()
		return append([]s3Request(nil), reqs...)
	}
}

func newTestBlobStore(t *testing.T, endpoint string) *BlobStore {
	t.Helper()
	store, err := NewBlobStore(&config.MinioConfig{
		Endpoint:   endpoint,
		AccessKey:  "test",
		SecretKey:  "testsecret",
		Bucket:     "termsheets",
		Region:     "us-east-1",
		ExpireDays: 7,
	})
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	return store
}

func TestBlobStoreSaveMarkdown(t *testing.T) {
	server, requests := fakeS3(t)
	store := newTestBlobStore(t, strings.TrimPrefix(server.URL, "http://"))

	path, err := store.SaveMarkdown(context.Background(), "XS3184638594", "termsheet.pdf", "# Final Terms")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if path != "XS3184638594/termsheet.md" {
		t.Errorf("Expected path 'XS3184638594/termsheet.md', got '%s'", path)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(reqs))
	}
	if reqs[0].method != http.MethodPut {
		t.Errorf("Expected PUT, got %s", reqs[0].method)
	}
	if reqs[0].path != "/termsheets/XS3184638594/termsheet.md" {
		t.Errorf("Unexpected object path %s", reqs[0].path)
	}
	if reqs[0].contentType != "text/markdown" {
		t.Errorf("Expected text/markdown, got %s", reqs[0].contentType)
	}
	if !strings.Contains(reqs[0].body, "# Final Terms") {
		t.Errorf("Expected markdown in body, got %q", reqs[0].body)
	}
}

func TestBlobStoreSaveMarkdownError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newTestBlobStore(t, strings.TrimPrefix(server.URL, "http://"))

	// cancelled so the client does not retry the 500
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.SaveMarkdown(ctx, "pending", "ts.pdf", "x"); err == nil {
		t.Error("Expected error when the object store rejects the write")
	}
}

func TestBlobStoreDeleteFile(t *testing.T) {
	server, requests := fakeS3(t)
	store := newTestBlobStore(t, strings.TrimPrefix(server.URL, "http://"))

	if err := store.DeleteFile(context.Background(), "sources/abc.pdf"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	reqs := requests()
	if len(reqs) != 1 || reqs[0].method != http.MethodDelete || reqs[0].path != "/termsheets/sources/abc.pdf" {
		t.Errorf("Unexpected requests %+v", reqs)
	}
}

func TestBlobStoreGetPresignedURL(t *testing.T) {
	store := newTestBlobStore(t, "localhost:9000")

	raw, err := store.GetPresignedURL(context.Background(), "sources/abc.pdf")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Invalid URL: %v", err)
	}
	if u.Host != "localhost:9000" {
		t.Errorf("Expected host localhost:9000, got %s", u.Host)
	}
	if u.Path != "/termsheets/sources/abc.pdf" {
		t.Errorf("Expected object path, got %s", u.Path)
	}
	if u.Query().Get("X-Amz-Expires") != "604800" {
		t.Errorf("Expected 7 day expiry, got %s", u.Query().Get("X-Amz-Expires"))
	}
}
