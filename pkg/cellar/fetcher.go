package cellar

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coolbeans/fmxcorpus/pkg/config"
)

var zipMagic = []byte("PK\x03\x04")

// Fetcher downloads one manifestation and lays its files out in a working
// directory. Cellar serves Formex either as a ZIP of the publication's XML
// files or as a single XML document depending on the Accept header.
type Fetcher struct {
	http     HTTPClient
	accept   string
	attempts int
	delay    time.Duration
}

// NewFetcher builds a fetcher from the workflow's fetch settings. A nil
// client gets a rate-limited default.
func NewFetcher(cfg config.Fetch, client HTTPClient) *Fetcher {
	if client == nil {
		client = NewRateLimitedHTTPClient(nil, defaultMinInterval)
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{
		http:     client,
		accept:   cfg.Accept,
		attempts: attempts,
		delay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}
}

// Download GETs the URI with retries and writes the content into destDir.
// ZIP responses are extracted in memory; anything else is written as
// content.xml. The last attempt's error is surfaced when all retries fail.
func (f *Fetcher) Download(ctx context.Context, uri, destDir string) error {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		data, err := f.get(ctx, uri)
		if err == nil {
			return f.store(data, destDir)
		}
		lastErr = err

		if attempt < f.attempts {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to fetch %s after %d attempts: %w", uri, f.attempts, lastErr)
}

func (f *Fetcher) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	if f.accept != "" {
		req.Header.Set("Accept", f.accept)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch response: %w", err)
	}
	return data, nil
}

func (f *Fetcher) store(data []byte, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	if bytes.HasPrefix(data, zipMagic) {
		return extractZip(data, destDir)
	}

	path := filepath.Join(destDir, "content.xml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// extractZip unpacks an in-memory archive. Formex publication archives are
// flat, so entry names are flattened to their base name, which also rules
// out path traversal.
func extractZip(data []byte, destDir string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to read archive entry %s: %w", file.Name, err)
		}

		path := filepath.Join(destDir, filepath.Base(file.Name))
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
