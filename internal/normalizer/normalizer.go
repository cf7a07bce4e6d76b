// Package normalizer turns arbitrary recording references into URLs the
// transcription backend can fetch directly. It is pure: no network access,
// same input always yields the same output.
package normalizer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Result is the outcome of a successful normalization. Verified is true
// when a known provider pattern matched; unverified URLs are passed through
// as-is and any fetch failure is surfaced by the client instead.
type Result struct {
	URL      string
	Verified bool
	Rule     string
}

var ErrEmptyURL = errors.New("empty URL")

// rule matches one known provider URL shape and rewrites it to the direct
// audio form. Rules are tried in order; the first match wins.
type rule struct {
	name    string
	match   func(u *url.URL) bool
	rewrite func(u *url.URL) (string, error)
}

var rules = []rule{
	{
		// Knowlarity player page: the actual recording URL is carried in
		// the soundurl query parameter.
		name: "knowlarity_player",
		match: func(u *url.URL) bool {
			return strings.Contains(strings.ToLower(u.Path), "playsound.html")
		},
		rewrite: func(u *url.URL) (string, error) {
			q := u.Query()
			target := q.Get("soundurl")
			if target == "" {
				target = q.Get("soundUrl")
			}
			target = strings.TrimSpace(target)
			if target == "" {
				return "", fmt.Errorf("player page has no soundurl parameter: %s", u.String())
			}
			inner, err := url.Parse(target)
			if err != nil || inner.Scheme != "http" && inner.Scheme != "https" {
				return "", fmt.Errorf("player page soundurl is not an absolute URL: %q", target)
			}
			return target, nil
		},
	},
	{
		// Already a direct audio file; return unchanged.
		name: "direct_audio",
		match: func(u *url.URL) bool {
			return hasAudioExtension(u.Path)
		},
		rewrite: func(u *url.URL) (string, error) {
			return u.String(), nil
		},
	},
}

var audioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac"}

func hasAudioExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Normalize resolves raw into a fetchable audio URL. Whitespace anywhere in
// the input is stripped before matching; provider URLs copied out of
// spreadsheets routinely carry stray spaces and line breaks.
func Normalize(raw string) (Result, error) {
	sanitized := strings.Join(strings.Fields(raw), "")
	if sanitized == "" {
		return Result{}, ErrEmptyURL
	}

	u, err := url.Parse(sanitized)
	if err != nil {
		return Result{}, fmt.Errorf("unparseable URL %q: %w", sanitized, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{}, fmt.Errorf("URL %q has no http(s) scheme", sanitized)
	}

	for _, r := range rules {
		if !r.match(u) {
			continue
		}
		rewritten, err := r.rewrite(u)
		if err != nil {
			return Result{}, err
		}
		return Result{URL: rewritten, Verified: true, Rule: r.name}, nil
	}

	// Unknown shape: best-effort passthrough, the client reports whatever
	// the backend says about it.
	return Result{URL: sanitized}, nil
}
