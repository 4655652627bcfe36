package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "runon/internal/log"
	"runon/internal/model"
)

// Feed is one subscribed iCalendar URL, e.g. a race organiser's or a
// running club's published calendar.
type Feed struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Feeds larger than this are treated as undecodable.
const maxFeedBytes = 16 << 20

// cacheMeta holds the validators for one cached feed body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests. When cacheDir is set
// the last good body is kept on disk and served on 304 or when the origin
// is unreachable.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the feed body. Failures without a cached fallback use the
// model error taxonomy.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, errors.New("ics: feed URL is empty")
	}

	var (
		meta   cacheMeta
		cached []byte
		dir    string
	)
	if f.cacheDir != "" {
		dir = f.cachePath(feed.URL)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		meta, _ = loadMeta(dir)
		cached, _ = os.ReadFile(filepath.Join(dir, "body.ics"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("ics fetch failed, using cached body", "id", feed.ID, "url", redactURL(feed.URL), "err", err)
			return cached, nil
		}
		return nil, &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
		if err != nil {
			return nil, &model.NetworkError{Err: err}
		}
		if len(body) > maxFeedBytes {
			return nil, fmt.Errorf("%w: feed %s exceeds %d bytes", model.ErrDecode, feed.ID, maxFeedBytes)
		}
		if dir != "" {
			m := cacheMeta{
				URL:          feed.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(dir, m, body); err != nil {
				appLog.Error("ics cache save failed", err, "id", feed.ID)
			}
		}
		appLog.Debug("ics fetch ok", "id", feed.ID, "url", redactURL(feed.URL), "bytes", len(body))
		return body, nil

	case resp.StatusCode == http.StatusNotModified && len(cached) > 0:
		appLog.Debug("ics feed not modified", "id", feed.ID)
		return cached, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, model.ErrUnauthorized

	default:
		if len(cached) > 0 {
			appLog.Warn("ics fetch non-OK, using cached body", "id", feed.ID, "status", resp.StatusCode)
			return cached, nil
		}
		return nil, &model.ServerError{StatusCode: resp.StatusCode}
	}
}

func (f *Fetcher) cachePath(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var m cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

// saveCache writes the body before the metadata so meta never points at a
// missing body.
func saveCache(dir string, m cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; feed paths often embed private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
