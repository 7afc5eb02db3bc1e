// Package fetch retrieves remote iCalendar documents with conditional
// HTTP requests. A small disk cache keyed by the URL hash stores the last
// body together with its ETag / Last-Modified validators, so unchanged
// feeds cost a 304 and network failures fall back to the cached copy.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "evcal/internal/log"
)

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches calendar URLs with caching. The zero value is not
// usable; construct with NewFetcher.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// Fetch retrieves the calendar at rawURL. fromCache reports whether the
// returned body came from the disk cache (304 or network fallback).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (body []byte, fromCache bool, err error) {
	if rawURL == "" {
		return nil, false, errors.New("fetch: URL is empty")
	}

	dir := filepath.Join(f.cacheDir, urlKey(rawURL))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, err
	}

	meta := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("fetch: network error, using cached body", err, "url", Redact(rawURL))
			return cached, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fresh, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		saveCache(dir, cacheMeta{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}, fresh)
		return fresh, false, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, false, errors.New("fetch: 304 Not Modified but cache is empty")
		}
		return cached, true, nil

	default:
		if len(cached) > 0 {
			appLog.Error("fetch: non-OK status, using cached body", errors.New(resp.Status), "url", Redact(rawURL))
			return cached, true, nil
		}
		return nil, false, errors.New("fetch: " + resp.Status)
	}
}

func urlKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:8])
}

func loadMeta(dir string) cacheMeta {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}
	}
	return meta
}

func saveCache(dir string, meta cacheMeta, body []byte) {
	// Body first, so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		appLog.Error("fetch: cache body write failed", err, "dir", dir)
		return
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600); err != nil {
		appLog.Error("fetch: cache meta write failed", err, "dir", dir)
	}
}

// Redact hides the path and query of a calendar URL for logging; feed
// URLs regularly embed access tokens.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
