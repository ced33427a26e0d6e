package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New("https://site.example/", "site.example")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestNew_RejectsBadInput(t *testing.T) {
	if _, err := New("/relative", "site.example"); err == nil {
		t.Fatalf("relative base should fail")
	}
	if _, err := New("ftp://site.example", "site.example"); err == nil {
		t.Fatalf("non-http base should fail")
	}
	if _, err := New("https://site.example", "  "); err == nil {
		t.Fatalf("empty domain should fail")
	}
	v, err := New("https://site.example/some/path/", ".Site.Example")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if v.Origin() != "https://site.example" || v.domain != "site.example" {
		t.Fatalf("normalization failed: origin=%q domain=%q", v.Origin(), v.domain)
	}
}

func TestThreadURL_Normalizes(t *testing.T) {
	v := newValidator(t)
	cases := []struct {
		in, want string
	}{
		{"https://site.example/r/x/comments/1/title/", "https://site.example/r/x/comments/1/title.json"},
		{"https://site.example/r/x/comments/1/title", "https://site.example/r/x/comments/1/title.json"},
		{"https://site.example/r/x/comments/1/title.json", "https://site.example/r/x/comments/1/title.json"},
		{"https://site.example/r/x/comments/1/title/?utm_source=share#frag", "https://site.example/r/x/comments/1/title.json"},
		{"/r/test/comments/123/x/", "https://site.example/r/test/comments/123/x.json"},
		{"r/test/comments/123/x", "https://site.example/r/test/comments/123/x.json"},
		{"https://old.site.example/r/x/comments/1/t/", "https://site.example/r/x/comments/1/t.json"},
		{"http://SITE.EXAMPLE/r/x/comments/1/t", "https://site.example/r/x/comments/1/t.json"},
		{"https://site.example/", "https://site.example/.json"},
	}
	for _, tc := range cases {
		got, err := v.ThreadURL(tc.in)
		if err != nil {
			t.Fatalf("ThreadURL(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ThreadURL(%q) = %q; want %q", tc.in, got, tc.want)
		}
		if strings.Contains(got, "/.json.json") || strings.HasSuffix(got, ".json.json") {
			t.Fatalf("double suffix in %q", got)
		}
	}
}

func TestThreadURL_OnlyOneTrailingSlashStripped(t *testing.T) {
	v := newValidator(t)
	got, err := v.ThreadURL("https://site.example/r/x//")
	if err != nil {
		t.Fatalf("ThreadURL error: %v", err)
	}
	if got != "https://site.example/r/x/.json" {
		t.Fatalf("got %q", got)
	}
}

func TestThreadURL_Idempotent(t *testing.T) {
	v := newValidator(t)
	inputs := []string{
		"https://site.example/r/x/comments/1/title/",
		"/r/a/comments/b/c",
		"https://www.site.example/r/%C3%A9t%C3%A9/comments/9/z/",
	}
	for _, in := range inputs {
		once, err := v.ThreadURL(in)
		if err != nil {
			t.Fatalf("first pass %q: %v", in, err)
		}
		twice, err := v.ThreadURL(once)
		if err != nil {
			t.Fatalf("second pass %q: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestThreadURL_Rejects(t *testing.T) {
	v := newValidator(t)
	bad := []string{
		"",
		"   ",
		"https://evil.example/.json",
		"https://evilsite.example/r/x/",
		"https://site.example.evil.example/r/x/",
		"//evil.example/r/x",
		"javascript:alert(1)",
		"ftp://site.example/r/x",
		"http://[::1",
	}
	for _, in := range bad {
		if got, err := v.ThreadURL(in); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("ThreadURL(%q) = (%q, %v); want ErrInvalidURL", in, got, err)
		}
	}
}

func TestSearchParams(t *testing.T) {
	v := newValidator(t)

	q, err := v.SearchParams("funny", "https://example.com", "")
	if err != nil {
		t.Fatalf("valid params: %v", err)
	}
	if q.Sort != domain.DefaultSort || q.Subreddit != "funny" || q.URL != "https://example.com" {
		t.Fatalf("unexpected query: %+v", q)
	}

	for _, s := range domain.Sorts {
		if _, err := v.SearchParams("Go_lang1", "u", s); err != nil {
			t.Fatalf("sort %q rejected: %v", s, err)
		}
	}

	if _, err := v.SearchParams("", "u", ""); !errors.Is(err, ErrMissingSubreddit) {
		t.Fatalf("missing subreddit: %v", err)
	}
	if _, err := v.SearchParams("funny", "", ""); !errors.Is(err, ErrMissingSearchURL) {
		t.Fatalf("missing url: %v", err)
	}
	for _, sub := range []string{"a b", strings.Repeat("a", 22), "semi;colon", "dash-ed", "ünï"} {
		if _, err := v.SearchParams(sub, "u", ""); !errors.Is(err, ErrInvalidSubreddit) {
			t.Fatalf("subreddit %q: %v", sub, err)
		}
	}
	if _, err := v.SearchParams(strings.Repeat("a", 21), "u", ""); err != nil {
		t.Fatalf("21-char subreddit should pass: %v", err)
	}

	_, err = v.SearchParams("funny", "u", "bogus")
	if !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("bogus sort: %v", err)
	}
	if !strings.Contains(err.Error(), "relevance, top, new, comments") {
		t.Fatalf("sort error should list allowed values: %v", err)
	}
}

func TestSearchURL_EncodesTerm(t *testing.T) {
	v := newValidator(t)
	got := v.SearchURL(domain.SearchQuery{Subreddit: "test", URL: "https://example.com/a b?x=1&y=2", Sort: "new"})
	want := "https://site.example/r/test/search.json?q=url:https%3A%2F%2Fexample.com%2Fa%20b%3Fx%3D1%26y%3D2&restrict_sr=on&sort=new"
	if got != want {
		t.Fatalf("SearchURL =\n %q\nwant\n %q", got, want)
	}
}

func TestAllowedSorts(t *testing.T) {
	if got := AllowedSorts(); got != "relevance, top, new, comments" {
		t.Fatalf("AllowedSorts = %q", got)
	}
}
