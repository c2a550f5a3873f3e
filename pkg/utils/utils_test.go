package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestFetcherLocal(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "kadikoy"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kadikoy", "coordinates.csv"), []byte("lat,lng\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(dir, nil)
	data, err := f.Fetch(context.Background(), "kadikoy/coordinates.csv")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "lat,lng\n1,2\n" {
		t.Errorf("Fetch = %q", data)
	}

	_, err = f.Fetch(context.Background(), "kadikoy/missing.csv")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) error = %v; want ErrNotFound", err)
	}
}

func TestFetcherRemoteStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/ok.csv":
			_, _ = w.Write([]byte("ok"))
		case "/data/broken.csv":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/data/", nil)
	if !f.IsRemote() {
		t.Fatalf("IsRemote() = false for %s", f.Base)
	}

	data, err := f.Fetch(context.Background(), "ok.csv")
	if err != nil || string(data) != "ok" {
		t.Errorf("Fetch(ok) = %q, %v", data, err)
	}

	_, err = f.Fetch(context.Background(), "broken.csv")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("Fetch(broken) error = %v; want StatusError 500", err)
	}

	_, err = f.Fetch(context.Background(), "gone.csv")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(gone) error = %v; want ErrNotFound", err)
	}
}

func TestFetcherServesCacheWhenHostFails(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	cache, err := OpenMemoryCache()
	if err != nil {
		t.Fatalf("OpenMemoryCache: %v", err)
	}
	defer func() { _ = cache.Close() }()

	f := NewFetcher(srv.URL, cache)
	if _, err := f.Fetch(context.Background(), "a/destinations.csv"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	healthy.Store(false)
	data, err := f.Fetch(context.Background(), "a/destinations.csv")
	if err != nil {
		t.Fatalf("fetch with cache: %v", err)
	}
	if string(data) != "fresh" {
		t.Errorf("cached data = %q; want fresh", data)
	}

	if _, err := f.Fetch(context.Background(), "b/destinations.csv"); err == nil {
		t.Errorf("expected error for uncached asset while host is down")
	}
}

func TestResolve(t *testing.T) {
	f := NewFetcher("https://example.com/public/", nil)
	if got := f.Resolve("/kadikoy/../kadikoy/a.csv"); got != "https://example.com/public/kadikoy/a.csv" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestOpenFetcher(t *testing.T) {
	f, err := OpenFetcher(t.TempDir(), "", 0)
	if err != nil || f.Cache != nil {
		t.Fatalf("OpenFetcher without cache = %+v, %v", f, err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}

	dir := filepath.Join(t.TempDir(), "cache")
	f, err = OpenFetcher("https://example.com", dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.Cache == nil || !f.IsRemote() {
		t.Errorf("fetcher = %+v; want a cached remote fetcher", f)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
