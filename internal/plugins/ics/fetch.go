package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/orgassist/config"
)

const defaultMaxBody = 16 << 20

var ErrTooLarge = errors.New("feed too large")

// Fetcher loads ICS payloads from URLs or files. HTTP responses are
// revalidated with ETag / Last-Modified and the last good body is reused
// when the server is unavailable.
type Fetcher struct {
	client  *http.Client
	maxBody int64

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, maxBody: defaultMaxBody, cache: make(map[string]cacheEntry)}
}

// Fetch returns the payload of src. It reports whether the body came from
// the cache.
func (f *Fetcher) Fetch(ctx context.Context, src SourceConfig) ([]byte, bool, error) {
	if src.URL == "" {
		body, err := os.ReadFile(config.ExpandPath(src.Path))
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", src.Path, err)
		}
		return body, false, nil
	}

	f.mu.Lock()
	cached, hasCache := f.cache[src.URL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, false, err
	}
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			return cached.body, true, nil
		}
		return nil, false, fmt.Errorf("fetch %s: %w", redactURL(src.URL), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", redactURL(src.URL), err)
		}
		if int64(len(body)) > f.maxBody {
			return nil, false, fmt.Errorf("read %s: %w (over %d bytes)", redactURL(src.URL), ErrTooLarge, f.maxBody)
		}
		f.mu.Lock()
		f.cache[src.URL] = cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		return body, false, nil
	case http.StatusNotModified:
		if !hasCache {
			return nil, false, errors.New("304 Not Modified without a cached body")
		}
		return cached.body, true, nil
	default:
		if hasCache {
			return cached.body, true, nil
		}
		return nil, false, fmt.Errorf("fetch %s: %s", redactURL(src.URL), resp.Status)
	}
}

// redactURL keeps only the scheme and host; subscription URLs often carry
// secrets in the path or query.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	host := u[i+3:]
	if j := strings.IndexByte(host, '/'); j >= 0 {
		host = host[:j]
	}
	return u[:i+3] + host + "/...(redacted)"
}
