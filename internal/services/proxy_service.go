package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/redditify-proxy/internal/cache"
	"github.com/tbourn/redditify-proxy/internal/domain"
	"github.com/tbourn/redditify-proxy/internal/upstream"
	"github.com/tbourn/redditify-proxy/internal/validate"
)

// Endpoint labels used in spans and metrics.
const (
	EndpointThread = "thread"
	EndpointSearch = "search"
)

// Fetcher is the upstream client used by ProxyService.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*upstream.Response, error)
}

// Result is a response ready to be written to the client.
type Result struct {
	Entry *domain.CacheEntry
	// Hit is true when Entry came from the cache.
	Hit bool
}

// ProxyService serves thread and search lookups through the cache.
//
// Store may be nil, in which case every request is a miss and nothing is
// stored. Background may be nil, in which case stores run inline.
type ProxyService struct {
	Validator  *validate.Validator
	Fetcher    Fetcher
	Store      cache.Store
	Background *Background

	Namespace    string
	TTL          time.Duration
	StoreTimeout time.Duration

	Now func() time.Time
}

var tracer = otel.Tracer("services/ProxyService")

// Thread returns the JSON for the thread at rawURL.
//
// Errors: validate.ErrInvalidURL, *upstream.StatusError for non-2xx replies,
// ErrUpstreamUnavailable for network failures and invalid bodies.
func (s *ProxyService) Thread(ctx context.Context, rawURL string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Thread")
	defer span.End()

	target, err := s.Validator.ThreadURL(rawURL)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("upstream.url", target))
	return s.load(ctx, span, EndpointThread, cache.ThreadKey(s.Namespace, target), target)
}

// Search returns the JSON of a subreddit search for links to urlToFind.
// An empty sort means domain.DefaultSort.
//
// Errors: validate.ErrMissingSubreddit, validate.ErrMissingSearchURL,
// validate.ErrInvalidSubreddit, validate.ErrInvalidSort, then the same
// upstream errors as Thread.
func (s *ProxyService) Search(ctx context.Context, subreddit, urlToFind, sort string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("subreddit", subreddit), attribute.String("sort", sort)),
	)
	defer span.End()

	q, err := s.Validator.SearchParams(subreddit, urlToFind, sort)
	if err != nil {
		return nil, err
	}
	target := s.Validator.SearchURL(q)
	span.SetAttributes(attribute.String("upstream.url", target))
	return s.load(ctx, span, EndpointSearch, cache.SearchKey(s.Namespace, target), target)
}

func (s *ProxyService) load(ctx context.Context, span trace.Span, endpoint, key, target string) (*Result, error) {
	if e, ok := s.lookup(ctx, endpoint, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &Result{Entry: e, Hit: true}, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	resp, err := s.Fetcher.Fetch(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if err := resp.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !json.Valid(resp.Body) {
		span.SetStatus(codes.Error, "invalid json")
		return nil, fmt.Errorf("%w: upstream body is not valid JSON", ErrUpstreamUnavailable)
	}

	entry := &domain.CacheEntry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   map[string]string{"Content-Type": "application/json"},
		Body:     resp.Body,
		StoredAt: s.now(),
	}
	if resp.StatusCode == http.StatusOK {
		s.store(ctx, endpoint, entry.Clone())
	}
	return &Result{Entry: entry}, nil
}

// lookup treats substrate failures as a miss.
func (s *ProxyService) lookup(ctx context.Context, endpoint, key string) (*domain.CacheEntry, bool) {
	if s.Store == nil {
		cacheLookups.WithLabelValues(endpoint, "miss").Inc()
		return nil, false
	}
	e, found, err := s.Store.Get(ctx, key)
	switch {
	case err != nil:
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		cacheLookups.WithLabelValues(endpoint, "error").Inc()
		return nil, false
	case !found:
		cacheLookups.WithLabelValues(endpoint, "miss").Inc()
		return nil, false
	}
	cacheLookups.WithLabelValues(endpoint, "hit").Inc()
	return e, true
}

// store writes entry after the response, detached from the request's
// cancellation but bounded by StoreTimeout.
func (s *ProxyService) store(ctx context.Context, endpoint string, entry *domain.CacheEntry) {
	if s.Store == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	run := func() {
		sctx := bg
		if s.StoreTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(bg, s.StoreTimeout)
			defer cancel()
		}
		if err := s.Store.Set(sctx, entry, s.TTL); err != nil {
			zerolog.Ctx(sctx).Error().Err(err).Str("key", entry.Key).Msg("cache store failed")
			cacheStores.WithLabelValues(endpoint, "error").Inc()
			return
		}
		cacheStores.WithLabelValues(endpoint, "ok").Inc()
	}
	if s.Background == nil {
		run()
		return
	}
	s.Background.Go(run)
}

func (s *ProxyService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_lookups_total",
			Help: "Cache lookups by endpoint and result (hit, miss, error).",
		},
		[]string{"endpoint", "result"},
	)
	cacheStores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_stores_total",
			Help: "Background cache stores by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)
)

func init() {
	prometheus.MustRegister(cacheLookups, cacheStores)
}
