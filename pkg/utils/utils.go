// Package utils provides asset fetching and caching for the flow map tools.
package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("asset not found")

// StatusError is returned when an asset host answers with a non-2xx status.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status fetching %s: %s", e.URL, e.Status)
}

type progressWriter struct {
	io.Writer
	total uint64
	last  uint64
	label string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 5*1024*1024 { // Log every 5MB
		log.Printf("%s: Downloaded %d MB", pw.label, pw.total/1024/1024)
		pw.last = pw.total
	}
	return n, err
}

// Fetcher reads static assets relative to a public base, which is either a
// local directory or an http(s) URL.
type Fetcher struct {
	Base   string
	Client *http.Client
	Cache  *DiskCache
}

func NewFetcher(base string, cache *DiskCache) *Fetcher {
	return &Fetcher{
		Base:   base,
		Client: &http.Client{Timeout: 15 * time.Second},
		Cache:  cache,
	}
}

// OpenFetcher returns a fetcher for base backed by a badger cache in
// cacheDir. An empty cacheDir disables caching.
func OpenFetcher(base, cacheDir string, ttl time.Duration) (*Fetcher, error) {
	if cacheDir == "" {
		return NewFetcher(base, nil), nil
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	cache, err := OpenDiskCache(cacheDir, ttl)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", cacheDir, err)
	}
	return NewFetcher(base, cache), nil
}

// Close releases the cache, if any.
func (f *Fetcher) Close() error {
	if f.Cache == nil {
		return nil
	}
	return f.Cache.Close()
}

// IsRemote reports whether the base is served over HTTP.
func (f *Fetcher) IsRemote() bool {
	return strings.HasPrefix(f.Base, "http://") || strings.HasPrefix(f.Base, "https://")
}

// Resolve returns the URL or file path an asset would be read from.
func (f *Fetcher) Resolve(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if f.IsRemote() {
		return strings.TrimRight(f.Base, "/") + "/" + p
	}
	return filepath.Join(f.Base, filepath.FromSlash(p))
}

// Fetch returns the asset bytes. Successful reads are stored in the cache;
// when the host fails for any reason other than a missing asset the last
// cached copy is served instead.
func (f *Fetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	data, err := f.fetch(ctx, p)
	if err == nil {
		if f.Cache != nil {
			if cerr := f.Cache.Put(p, data); cerr != nil {
				log.Printf("[fetch] Error caching %s: %v", p, cerr)
			}
		}
		return data, nil
	}
	if f.Cache != nil && !errors.Is(err, ErrNotFound) && ctx.Err() == nil {
		if cached, cerr := f.Cache.Get(p); cerr == nil && cached != nil {
			log.Printf("[fetch] %s unavailable (%v), using cached copy", p, err)
			return cached, nil
		}
	}
	return nil, err
}

func (f *Fetcher) fetch(ctx context.Context, p string) ([]byte, error) {
	src := f.Resolve(p)
	if !f.IsRemote() {
		data, err := os.ReadFile(src)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return data, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: src, Status: resp.Status, Code: resp.StatusCode}
	}

	var buf bytes.Buffer
	pw := &progressWriter{Writer: &buf, label: path.Base(p)}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
