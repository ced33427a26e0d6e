// Package validate normalizes and checks caller-supplied parameters before
// anything is forwarded to the upstream content API.
//
// Thread URLs are rewritten onto the canonical upstream origin with the JSON
// suffix appended; search parameters are checked against a restricted
// subreddit pattern and a fixed sort enum.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

// JSONSuffix is appended to thread paths to target the JSON endpoint.
const JSONSuffix = ".json"

var (
	// ErrInvalidURL is returned when a thread URL cannot be parsed or targets
	// a host outside the upstream domain.
	ErrInvalidURL = errors.New("invalid thread url")
	// ErrMissingSubreddit is returned when the subreddit parameter is empty.
	ErrMissingSubreddit = errors.New("missing subreddit")
	// ErrMissingSearchURL is returned when the url-to-find parameter is empty.
	ErrMissingSearchURL = errors.New("missing search url")
	// ErrInvalidSubreddit is returned when the subreddit fails the name pattern.
	ErrInvalidSubreddit = errors.New("invalid subreddit name")
	// ErrInvalidSort is returned when sort is outside domain.Sorts.
	ErrInvalidSort = errors.New("invalid sort")
)

var subredditRE = regexp.MustCompile(`^[A-Za-z0-9_]{1,21}$`)

// Validator checks inputs against one upstream origin and root domain.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	base   *url.URL
	domain string
}

// New builds a Validator. baseURL is the canonical upstream origin
// (e.g. https://www.reddit.com); domain is the root accepted for thread hosts.
func New(baseURL, domain string) (*Validator, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("base url %q must be absolute http(s)", baseURL)
	}
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return nil, errors.New("domain must not be empty")
	}
	return &Validator{
		base:   &url.URL{Scheme: base.Scheme, Host: base.Host},
		domain: domain,
	}, nil
}

// Origin returns the canonical upstream origin, without a trailing slash.
func (v *Validator) Origin() string { return v.base.String() }

// ThreadURL validates input (absolute URL or bare path) and returns the
// normalized upstream JSON URL. Exactly one trailing slash is stripped before
// the JSON suffix is appended; the query string and fragment are dropped.
// Applying ThreadURL to its own output yields the same string.
func (v *Validator) ThreadURL(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	// Bare paths resolve against the canonical origin and need no host check.
	if u.Scheme != "" || u.Host != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", ErrInvalidURL
		}
		if !v.hostAllowed(u.Hostname()) {
			return "", ErrInvalidURL
		}
	}

	path := u.EscapedPath()
	path = strings.TrimSuffix(path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, JSONSuffix) {
		path += JSONSuffix
	}
	return v.Origin() + path, nil
}

// hostAllowed is a label-boundary suffix match so regional subdomains pass
// and look-alike hosts (evilreddit.com) do not.
func (v *Validator) hostAllowed(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == v.domain || strings.HasSuffix(host, "."+v.domain)
}

// SearchParams validates a search request. An empty sort defaults to
// domain.DefaultSort; urlToFind is not domain-restricted because it is a
// search term, not a navigation target.
func (v *Validator) SearchParams(subreddit, urlToFind, sort string) (domain.SearchQuery, error) {
	if subreddit == "" {
		return domain.SearchQuery{}, ErrMissingSubreddit
	}
	if urlToFind == "" {
		return domain.SearchQuery{}, ErrMissingSearchURL
	}
	if !subredditRE.MatchString(subreddit) {
		return domain.SearchQuery{}, ErrInvalidSubreddit
	}
	if sort == "" {
		sort = domain.DefaultSort
	}
	if !validSort(sort) {
		return domain.SearchQuery{}, fmt.Errorf("%w %q: allowed %s", ErrInvalidSort, sort, AllowedSorts())
	}
	return domain.SearchQuery{Subreddit: subreddit, URL: urlToFind, Sort: sort}, nil
}

// SearchURL builds the upstream search URL for a validated query. The search
// term is percent-encoded the way encodeURIComponent does it (spaces as %20).
func (v *Validator) SearchURL(q domain.SearchQuery) string {
	term := strings.ReplaceAll(url.QueryEscape(q.URL), "+", "%20")
	return fmt.Sprintf("%s/r/%s/search%s?q=url:%s&restrict_sr=on&sort=%s",
		v.Origin(), q.Subreddit, JSONSuffix, term, q.Sort)
}

// AllowedSorts renders the sort enum for error messages.
func AllowedSorts() string { return strings.Join(domain.Sorts, ", ") }

func validSort(s string) bool {
	for _, allowed := range domain.Sorts {
		if s == allowed {
			return true
		}
	}
	return false
}
