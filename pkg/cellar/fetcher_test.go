package cellar

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coolbeans/fmxcorpus/pkg/config"
)

func fetchConfig(attempts int) config.Fetch {
	return config.Fetch{
		Accept:        "application/zip;mtype=fmx4",
		RetryAttempts: attempts,
		// Zero delay keeps retry tests fast.
	}
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range files {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("failed to create zip entry: %v", err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write zip entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDownloadExtractsZip(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"L_2024/L_202401689EN.000101.fmx.xml": "<ACT/>",
		"L_2024/L_202401689EN.000201.fmx.xml": "<ANNEX/>",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "application/zip;mtype=fmx4" {
			t.Errorf("accept header: got %q", accept)
		}
		w.Write(archive)
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(fetchConfig(1), http.DefaultClient)
	if err := fetcher.Download(context.Background(), server.URL, dir); err != nil {
		t.Fatalf("Download: %v", err)
	}

	// Archive paths are flattened to base names.
	for _, name := range []string{"L_202401689EN.000101.fmx.xml", "L_202401689EN.000201.fmx.xml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("extracted file missing: %v", err)
		}
	}
}

func TestDownloadWritesRawXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><ACT/>`))
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(fetchConfig(1), http.DefaultClient)
	if err := fetcher.Download(context.Background(), server.URL, dir); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "content.xml"))
	if err != nil {
		t.Fatalf("content.xml not written: %v", err)
	}
	if !strings.Contains(string(data), "<ACT/>") {
		t.Errorf("content.xml: got %q", data)
	}
}

func TestDownloadRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusBadGateway)
			return
		}
		w.Write([]byte("<ACT/>"))
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(fetchConfig(3), http.DefaultClient)
	if err := fetcher.Download(context.Background(), server.URL, dir); err != nil {
		t.Fatalf("Download should succeed on the third attempt: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("requests: got %d, want 3", got)
	}
}

func TestDownloadSurfacesLastError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewFetcher(fetchConfig(2), http.DefaultClient)
	err := fetcher.Download(context.Background(), server.URL, t.TempDir())
	if err == nil {
		t.Fatal("expected error after exhausted retries, got nil")
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Errorf("error should cite the attempt count: %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry the last failure: %v", err)
	}
}
