package results

import (
	"net"
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL returns the comparison form of raw. Two URLs that differ only
// in scheme, letter case of the host, a leading "www.", a default port, a
// trailing slash, the order of query parameters or the fragment normalize to
// the same string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil && (port == "80" || port == "443") {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")

	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	path = strings.TrimRight(path, "/")

	var sb strings.Builder
	sb.WriteString(host)
	sb.WriteString(path)

	if q := canonicalQuery(u.Query()); q != "" {
		sb.WriteByte('?')
		sb.WriteString(q)
	}
	return sb.String()
}

// canonicalQuery encodes values with keys and the values of each key sorted.
func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// normalizeTitle lower-cases and collapses whitespace.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// DedupKey returns the key under which equivalent records are merged.
// Records with a URL are keyed by template and normalized URL (plus the image
// source for images); records without one fall back to their title.
func DedupKey(r Record) string {
	r = r.Normalized()
	if u := NormalizeURL(r.URL); u != "" {
		key := string(r.Template) + "|" + u
		if r.Template == TemplateImages {
			key += "|" + NormalizeURL(r.ImgSrc)
		}
		return key
	}
	if r.MagnetLink != "" {
		return string(r.Template) + "|magnet:" + strings.ToLower(r.MagnetLink)
	}
	return string(r.Template) + "|title:" + normalizeTitle(r.Title)
}
