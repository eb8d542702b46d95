package ledger

import (
	"net/url"
	"slices"
	"strings"
)

// KeyFunc derives the dedup identity of a record. Implementations are pure
// and never fail; a malformed link still produces a key.
type KeyFunc func(Record) string

type KeyPolicy string

const (
	// KeyPolicyLink uses the raw link as identity.
	KeyPolicyLink KeyPolicy = "link"
	// KeyPolicyComposite uses the publication date plus a normalized URL
	// signature, for sources whose links carry volatile query parameters.
	KeyPolicyComposite KeyPolicy = "composite"
)

// DefaultKeyParams are the query parameters kept in the URL signature of
// the schedule calendar links.
var DefaultKeyParams = []string{"pri1", "wd00", "wd01", "wd02"}

const keySeparator = "\x1f"

func LinkKey(r Record) string {
	return r.Link()
}

// CompositeKey returns a KeyFunc producing (pubDate, URL signature) keys
// over the given ordered query parameter subset.
func CompositeKey(params []string) KeyFunc {
	params = slices.Clone(params)
	return func(r Record) string {
		return r.PubDate() + keySeparator + URLSignature(r.Link(), params)
	}
}

// KeyFuncFor selects the key function for a policy. Unknown policies fall
// back to link identity.
func KeyFuncFor(policy KeyPolicy, params []string) KeyFunc {
	if policy == KeyPolicyComposite {
		if len(params) == 0 {
			params = DefaultKeyParams
		}
		return CompositeKey(params)
	}
	return LinkKey
}

// URLSignature keeps only the final path segment and the values of params,
// in order, joined by "_". Every other query parameter is discarded and
// missing params contribute an empty string.
func URLSignature(rawURL string, params []string) string {
	path, query := splitURL(rawURL)

	var b strings.Builder
	b.WriteString(lastSegment(path))
	for _, param := range params {
		b.WriteByte('_')
		b.WriteString(query.Get(param))
	}
	return b.String()
}

func splitURL(rawURL string) (string, url.Values) {
	if u, err := url.Parse(rawURL); err == nil {
		query, _ := url.ParseQuery(u.RawQuery)
		return u.EscapedPath(), query
	}

	// url.Parse rejects some links browsers accept; split by hand.
	rest, _, _ := strings.Cut(rawURL, "#")
	rest, rawQuery, _ := strings.Cut(rest, "?")
	if _, after, ok := strings.Cut(rest, "://"); ok {
		rest = after
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}
	query, _ := url.ParseQuery(rawQuery)
	return rest, query
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
