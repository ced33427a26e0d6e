// Thread, search, and health endpoints.
//
//   - GET /health  liveness probe, never touches upstream or cache
//   - GET /thread  thread JSON for a Reddit URL
//   - GET /search  subreddit search for links to a URL
//
// Handlers are transport-thin: they read query parameters, call the proxy
// service, and translate results and errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/redditify-proxy/internal/services"
	"github.com/tbourn/redditify-proxy/internal/upstream"
	"github.com/tbourn/redditify-proxy/internal/validate"
)

// Cache marker header and its values.
const (
	HeaderCache = "X-Cache"
	CacheHit    = "HIT"
	CacheMiss   = "MISS"
)

// ProxyService is the service contract consumed by the handlers.
type ProxyService interface {
	Thread(ctx context.Context, rawURL string) (*services.Result, error)
	Search(ctx context.Context, subreddit, urlToFind, sort string) (*services.Result, error)
}

// Handlers groups the proxy endpoints.
type Handlers struct {
	svc    ProxyService
	maxAge time.Duration
	now    func() time.Time
}

// New binds the handlers to svc. maxAge is advertised in Cache-Control on
// successful responses.
func New(svc ProxyService, maxAge time.Duration) *Handlers {
	return &Handlers{svc: svc, maxAge: maxAge, now: time.Now}
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Timestamp string `json:"timestamp" example:"2026-01-02T03:04:05.678Z"`
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// Thread godoc
// @ID          getThread
// @Summary     Fetch a thread as JSON
// @Description Normalizes a Reddit thread URL, serves it from cache when present,
// @Description and otherwise fetches `<url>.json` upstream with retries.
// @Tags        Proxy
// @Produce     json
// @Param       url  query  string  true  "Reddit thread URL or path"  example(https://www.reddit.com/r/golang/comments/abc123/title/)
// @Success     200  {array}   object                  "Upstream [post, comments] listing pair"
// @Header      200  {string}  X-Cache                 "HIT or MISS"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid url"
// @Failure     404  {object}  handlers.ErrorResponse  "Upstream 4xx relayed"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream failure"
// @Router      /thread [get]
func (h *Handlers) Thread(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		fail(c, http.StatusBadRequest, MsgMissingURL, nil)
		return
	}

	res, err := h.svc.Thread(c.Request.Context(), raw)
	switch {
	case errors.Is(err, validate.ErrInvalidURL):
		fail(c, http.StatusBadRequest, MsgInvalidURL, nil)
		return
	case err != nil:
		failUpstream(c, err, MsgThreadFailed)
		return
	}
	h.write(c, res)
}

// Search godoc
// @ID          searchSubreddit
// @Summary     Search a subreddit for links to a URL
// @Tags        Proxy
// @Produce     json
// @Param       subreddit  query  string  true   "Subreddit name"  example(golang)
// @Param       url        query  string  true   "URL to look for"  example(https://go.dev/blog)
// @Param       sort       query  string  false  "Sort order"  Enums(relevance, top, new, comments)  default(top)
// @Success     200  {object}  object                  "Upstream search listing"
// @Header      200  {string}  X-Cache                 "HIT or MISS"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid parameters"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream failure"
// @Router      /search [get]
func (h *Handlers) Search(c *gin.Context) {
	sub := c.Query("subreddit")
	target := c.Query("url")
	if sub == "" || target == "" {
		msg := MsgMissingSubreddit
		if sub != "" {
			msg = MsgMissingURL
		}
		fail(c, http.StatusBadRequest, msg, nil)
		return
	}

	res, err := h.svc.Search(c.Request.Context(), sub, target, c.Query("sort"))
	switch {
	case errors.Is(err, validate.ErrMissingSubreddit):
		fail(c, http.StatusBadRequest, MsgMissingSubreddit, nil)
		return
	case errors.Is(err, validate.ErrMissingSearchURL):
		fail(c, http.StatusBadRequest, MsgMissingURL, nil)
		return
	case errors.Is(err, validate.ErrInvalidSubreddit):
		fail(c, http.StatusBadRequest, MsgInvalidSubreddit, nil)
		return
	case errors.Is(err, validate.ErrInvalidSort):
		fail(c, http.StatusBadRequest, fmt.Sprintf(invalidSortMessage, validate.AllowedSorts()), nil)
		return
	case err != nil:
		failUpstream(c, err, MsgSearchFailed)
		return
	}
	h.write(c, res)
}

func (h *Handlers) write(c *gin.Context, res *services.Result) {
	e := res.Entry
	for k, v := range e.Header {
		c.Header(k, v)
	}
	if res.Hit {
		c.Header(HeaderCache, CacheHit)
		c.Header("Age", strconv.Itoa(int(e.Age(h.now()).Seconds())))
	} else {
		c.Header(HeaderCache, CacheMiss)
	}
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(int(h.maxAge.Seconds())))

	contentType := e.Header["Content-Type"]
	if contentType == "" {
		contentType = "application/json"
	}
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Data(status, contentType, e.Body)
}

// failUpstream relays upstream statuses (5xx collapsed to 502) and turns
// everything else into a 502 with the endpoint's fixed message.
func failUpstream(c *gin.Context, err error, generic string) {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		status := se.StatusCode
		if status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		fail(c, status, fmt.Sprintf(upstreamErrorMessage, se.StatusCode, se.StatusText), err)
		return
	}
	fail(c, http.StatusBadGateway, generic, err)
}
