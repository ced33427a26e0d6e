package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/redditify-proxy/internal/cache"
	"github.com/tbourn/redditify-proxy/internal/domain"
	"github.com/tbourn/redditify-proxy/internal/upstream"
	"github.com/tbourn/redditify-proxy/internal/validate"
)

// ---------- test helpers ----------

type fakeFetcher struct {
	mu    sync.Mutex
	urls  []string
	resp  *upstream.Response
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*upstream.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.resp
	return &r, nil
}

func okResp(body string) *upstream.Response {
	return &upstream.Response{StatusCode: 200, Status: "200 OK", Body: []byte(body)}
}

type brokenStore struct {
	getErr, setErr error
	sets           int
	mu             sync.Mutex
}

func (b *brokenStore) Get(context.Context, string) (*domain.CacheEntry, bool, error) {
	return nil, false, b.getErr
}
func (b *brokenStore) Set(context.Context, *domain.CacheEntry, time.Duration) error {
	b.mu.Lock()
	b.sets++
	b.mu.Unlock()
	return b.setErr
}
func (b *brokenStore) Ping(context.Context) error { return nil }
func (b *brokenStore) Close() error               { return nil }

func newSvc(t *testing.T, f Fetcher, store cache.Store) *ProxyService {
	t.Helper()
	v, err := validate.New("https://www.reddit.com", "reddit.com")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	return &ProxyService{
		Validator:    v,
		Fetcher:      f,
		Store:        store,
		Background:   &Background{},
		Namespace:    "test",
		TTL:          300 * time.Second,
		StoreTimeout: time.Second,
	}
}

func drain(t *testing.T, s *ProxyService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Background.Wait(ctx); err != nil {
		t.Fatalf("background stores did not finish: %v", err)
	}
}

// ---------- Thread ----------

func TestThread_MissThenHit(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`[{"kind":"Listing"}]`)}
	store := cache.NewMemoryStore(10)
	s := newSvc(t, f, store)
	ctx := context.Background()

	hitsBefore := testutil.ToFloat64(cacheLookups.WithLabelValues(EndpointThread, "hit"))

	res, err := s.Thread(ctx, "https://reddit.com/r/golang/comments/abc/title/")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if res.Hit || string(res.Entry.Body) != `[{"kind":"Listing"}]` {
		t.Fatalf("first call should be a miss with upstream body: %+v", res)
	}
	if f.urls[0] != "https://www.reddit.com/r/golang/comments/abc/title.json" {
		t.Fatalf("fetched %q", f.urls[0])
	}
	drain(t, s)

	res, err = s.Thread(ctx, "https://www.reddit.com/r/golang/comments/abc/title.json")
	if err != nil {
		t.Fatalf("Thread (2): %v", err)
	}
	if !res.Hit || f.calls != 1 {
		t.Fatalf("second call should be served from cache (hit=%v calls=%d)", res.Hit, f.calls)
	}
	if res.Entry.Header["Content-Type"] != "application/json" {
		t.Fatalf("stored headers missing: %+v", res.Entry.Header)
	}
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues(EndpointThread, "hit")); got != hitsBefore+1 {
		t.Fatalf("hit counter = %v, want %v", got, hitsBefore+1)
	}
}

func TestThread_InvalidURL_NoFetch(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`{}`)}
	s := newSvc(t, f, cache.NewMemoryStore(10))
	for _, in := range []string{"https://evil.example/r/x", "ftp://reddit.com/x", "https://evilreddit.com/r/x"} {
		if _, err := s.Thread(context.Background(), in); !errors.Is(err, validate.ErrInvalidURL) {
			t.Fatalf("Thread(%q) err = %v, want ErrInvalidURL", in, err)
		}
	}
	if f.calls != 0 {
		t.Fatalf("upstream must not be contacted for invalid input")
	}
}

func TestThread_UpstreamStatus_NotCached(t *testing.T) {
	f := &fakeFetcher{resp: &upstream.Response{StatusCode: 404, Status: "404 Not Found", Body: []byte(`{}`)}}
	store := cache.NewMemoryStore(10)
	s := newSvc(t, f, store)

	_, err := s.Thread(context.Background(), "https://www.reddit.com/r/golang/comments/abc")
	var se *upstream.StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 || se.StatusText != "Not Found" {
		t.Fatalf("err = %v, want StatusError 404", err)
	}
	drain(t, s)
	if store.Len() != 0 {
		t.Fatalf("error responses must not be cached")
	}
}

func TestThread_TransportError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	s := newSvc(t, &fakeFetcher{err: cause}, cache.NewMemoryStore(10))

	_, err := s.Thread(context.Background(), "https://www.reddit.com/r/golang/comments/abc")
	if !errors.Is(err, ErrUpstreamUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped ErrUpstreamUnavailable", err)
	}
}

func TestThread_InvalidJSONBody(t *testing.T) {
	store := cache.NewMemoryStore(10)
	s := newSvc(t, &fakeFetcher{resp: okResp(`<html>blocked</html>`)}, store)

	_, err := s.Thread(context.Background(), "https://www.reddit.com/r/golang/comments/abc")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	drain(t, s)
	if store.Len() != 0 {
		t.Fatalf("invalid bodies must not be cached")
	}
}

func TestThread_CacheFailuresDegradeToMiss(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`{}`)}
	store := &brokenStore{getErr: errors.New("conn reset"), setErr: errors.New("conn reset")}
	s := newSvc(t, f, store)

	res, err := s.Thread(context.Background(), "https://www.reddit.com/r/golang/comments/abc")
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if res.Hit || f.calls != 1 {
		t.Fatalf("expected upstream fetch on broken cache")
	}
	drain(t, s)
	if store.sets != 1 {
		t.Fatalf("store should still be attempted, sets=%d", store.sets)
	}
}

func TestThread_StoreOutlivesRequestContext(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`{}`)}
	store := cache.NewMemoryStore(10)
	s := newSvc(t, f, store)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.Thread(ctx, "https://www.reddit.com/r/golang/comments/abc"); err != nil {
		t.Fatalf("Thread: %v", err)
	}
	cancel()
	drain(t, s)
	if store.Len() != 1 {
		t.Fatalf("store should complete after the request is cancelled")
	}
}

func TestThread_NilStoreAndInlineStore(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`{}`)}
	s := newSvc(t, f, nil)
	for i := 0; i < 2; i++ {
		res, err := s.Thread(context.Background(), "https://www.reddit.com/r/golang/comments/abc")
		if err != nil || res.Hit {
			t.Fatalf("nil store should always miss: res=%+v err=%v", res, err)
		}
	}
	if f.calls != 2 {
		t.Fatalf("calls = %d, want 2", f.calls)
	}

	store := cache.NewMemoryStore(10)
	s = newSvc(t, f, store)
	s.Background = nil
	if _, err := s.Thread(context.Background(), "https://www.reddit.com/r/golang/comments/abc"); err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("inline store should have completed before return")
	}
}

// ---------- Search ----------

func TestSearch_BuildsURLAndCachesPerSort(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`{"data":{"children":[]}}`)}
	s := newSvc(t, f, cache.NewMemoryStore(10))
	ctx := context.Background()

	if _, err := s.Search(ctx, "golang", "https://go.dev/blog", ""); err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := "https://www.reddit.com/r/golang/search.json?q=url:https%3A%2F%2Fgo.dev%2Fblog&restrict_sr=on&sort=top"
	if f.urls[0] != want {
		t.Fatalf("fetched %q\nwant    %q", f.urls[0], want)
	}
	drain(t, s)

	res, _ := s.Search(ctx, "golang", "https://go.dev/blog", "top")
	if !res.Hit {
		t.Fatalf("explicit default sort should share the cache entry")
	}
	res, _ = s.Search(ctx, "golang", "https://go.dev/blog", "new")
	if res.Hit || f.calls != 2 {
		t.Fatalf("different sort must not share a cache entry")
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	f := &fakeFetcher{resp: okResp(`{}`)}
	s := newSvc(t, f, cache.NewMemoryStore(10))
	cases := []struct {
		sub, url, sort string
		want           error
	}{
		{"", "https://x", "", validate.ErrMissingSubreddit},
		{"golang", "", "", validate.ErrMissingSearchURL},
		{"go-lang", "https://x", "", validate.ErrInvalidSubreddit},
		{"golang", "https://x", "bogus", validate.ErrInvalidSort},
	}
	for _, tc := range cases {
		if _, err := s.Search(context.Background(), tc.sub, tc.url, tc.sort); !errors.Is(err, tc.want) {
			t.Fatalf("Search(%q,%q,%q) err = %v, want %v", tc.sub, tc.url, tc.sort, err, tc.want)
		}
	}
	if f.calls != 0 {
		t.Fatalf("upstream must not be contacted for invalid input")
	}
}

// ---------- Background ----------

func TestBackground_WaitHonoursContext(t *testing.T) {
	var b Background
	release := make(chan struct{})
	b.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
	close(release)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("Wait after release: %v", err)
	}
}

func TestBackground_RecoversPanics(t *testing.T) {
	var b Background
	b.Go(func() { panic("boom") })
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
