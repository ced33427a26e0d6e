// Package upstream performs GET requests against the content API with bounded
// retries.
//
// Retry policy (per Fetch call, at most MaxRetries+1 attempts):
//   - 2xx: returned immediately
//   - 4xx other than 429: returned immediately, never retried
//   - 429: retried after BaseDelay*(attempt+2)
//   - 5xx: retried after BaseDelay*(attempt+1)
//   - transport error: retried like 5xx; the last one is returned as an error
//
// When attempts run out the last response is returned as-is, even when it is
// an error status; the caller decides how to surface it.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults mirror the documented policy.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
	// maxBodyBytes caps how much of an upstream body is buffered.
	maxBodyBytes = 16 << 20
)

// ErrBodyTooLarge is returned when an upstream body exceeds maxBodyBytes.
var ErrBodyTooLarge = errors.New("upstream body too large")

// Doer is the subset of *http.Client used by Fetcher.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Response is a fully-read upstream reply.
type Response struct {
	StatusCode int
	Status     string // e.g. "404 Not Found"
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// StatusText returns the reason phrase without the numeric code.
func (r *Response) StatusText() string {
	prefix := strconv.Itoa(r.StatusCode) + " "
	if len(r.Status) > len(prefix) && r.Status[:len(prefix)] == prefix {
		return r.Status[len(prefix):]
	}
	return http.StatusText(r.StatusCode)
}

// Fetcher issues upstream GETs. It holds no per-request state and is safe for
// concurrent use; each Fetch owns its own retry state.
type Fetcher struct {
	Client     Doer
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep defaults to a context-aware timer wait.
	Sleep SleepFunc
}

// New returns a Fetcher with the default policy and the given client.
func New(client Doer, userAgent string) *Fetcher {
	return &Fetcher{
		Client:     client,
		UserAgent:  userAgent,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

var tracer = otel.Tracer("github.com/tbourn/redditify-proxy/internal/upstream")

// Fetch GETs url under the retry policy. It fails only on a final transport
// error or when ctx is cancelled between attempts.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "upstream.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	retries := f.MaxRetries
	if retries < 0 {
		retries = 0
	}
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := f.do(ctx, url)
		last := attempt == retries

		if err != nil {
			upstreamAttempts.WithLabelValues("error").Inc()
			// An oversized body will be just as large on the next attempt.
			if last || ctx.Err() != nil || errors.Is(err, ErrBodyTooLarge) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "transport failure")
				return nil, err
			}
			if werr := f.wait(ctx, sleep, Backoff(f.BaseDelay, attempt, 0), "error"); werr != nil {
				return nil, werr
			}
			continue
		}

		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode), attribute.Int("retry.attempt", attempt))
		switch {
		case resp.OK():
			upstreamAttempts.WithLabelValues("ok").Inc()
			return resp, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			upstreamAttempts.WithLabelValues("client_error").Inc()
			return resp, nil
		}

		reason := "server_error"
		if resp.StatusCode == http.StatusTooManyRequests {
			reason = "rate_limited"
		}
		upstreamAttempts.WithLabelValues(reason).Inc()
		if last {
			return resp, nil
		}
		if werr := f.wait(ctx, sleep, Backoff(f.BaseDelay, attempt, resp.StatusCode), reason); werr != nil {
			return nil, werr
		}
	}

	// Unreachable: the final iteration always returns.
	return nil, errors.New("max retries exceeded")
}

func (f *Fetcher) wait(ctx context.Context, sleep SleepFunc, d time.Duration, reason string) error {
	upstreamRetries.WithLabelValues(reason).Inc()
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.String("reason", reason),
		attribute.Int64("delay_ms", d.Milliseconds()),
	))
	return sleep(ctx, d)
}

// Backoff returns the delay before the retry that follows attempt (0-based).
// Rate-limited replies (429) wait one step longer than other failures.
func Backoff(base time.Duration, attempt, status int) time.Duration {
	if status == http.StatusTooManyRequests {
		return base * time.Duration(attempt+2)
	}
	return base * time.Duration(attempt+1)
}

func (f *Fetcher) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "application/json")

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return &Response{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Header:     res.Header.Clone(),
		Body:       body,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	// upstreamAttempts counts individual upstream attempts by outcome.
	upstreamAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_attempts_total",
			Help: "Upstream GET attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// upstreamRetries counts scheduled retries by reason.
	upstreamRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Upstream retries scheduled, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(upstreamAttempts, upstreamRetries)
}
