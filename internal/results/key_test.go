package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL_EquivalentForms(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"scheme", "http://example.com/page", "https://example.com/page"},
		{"trailing slash", "https://example.com/page/", "https://example.com/page"},
		{"query order", "https://example.com/s?b=2&a=1", "https://example.com/s?a=1&b=2"},
		{"host case", "https://Example.COM/page", "https://example.com/page"},
		{"www prefix", "https://www.example.com/page", "https://example.com/page"},
		{"default port", "https://example.com:443/page", "https://example.com/page"},
		{"fragment", "https://example.com/page#top", "https://example.com/page"},
		{"root", "https://example.com/", "https://example.com"},
		{"percent encoding", "https://example.com/%7Euser", "https://example.com/~user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, NormalizeURL(tt.a), NormalizeURL(tt.b))
		})
	}
}

func TestNormalizeURL_DistinctForms(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"path case", "https://example.com/Page", "https://example.com/page"},
		{"different query value", "https://example.com/s?a=1", "https://example.com/s?a=2"},
		{"different host", "https://a.example.com/", "https://b.example.com/"},
		{"custom port", "https://example.com:8443/x", "https://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, NormalizeURL(tt.a), NormalizeURL(tt.b))
		})
	}
}

func TestNormalizeURL_Empty(t *testing.T) {
	assert.Empty(t, NormalizeURL(""))
	assert.Empty(t, NormalizeURL("   "))
}

func TestDedupKey(t *testing.T) {
	t.Run("template separates keys", func(t *testing.T) {
		a := Record{URL: "https://x.com/1", Title: "x"}
		b := Record{URL: "https://x.com/1", Title: "x", Template: TemplateVideos}
		assert.NotEqual(t, DedupKey(a), DedupKey(b))
	})

	t.Run("empty template equals default", func(t *testing.T) {
		a := Record{URL: "https://x.com/1"}
		b := Record{URL: "http://x.com/1/", Template: TemplateDefault}
		assert.Equal(t, DedupKey(a), DedupKey(b))
	})

	t.Run("images include img_src", func(t *testing.T) {
		a := Record{URL: "https://x.com/gallery", ImgSrc: "https://x.com/1.png", Template: TemplateImages}
		b := Record{URL: "https://x.com/gallery", ImgSrc: "https://x.com/2.png", Template: TemplateImages}
		assert.NotEqual(t, DedupKey(a), DedupKey(b))
	})

	t.Run("title fallback", func(t *testing.T) {
		a := Record{Title: "  Go   Programming ", Template: TemplateKeyValue}
		b := Record{Title: "go programming", Template: TemplateKeyValue}
		assert.Equal(t, DedupKey(a), DedupKey(b))
		assert.Contains(t, DedupKey(a), "title:go programming")
	})

	t.Run("magnet fallback", func(t *testing.T) {
		a := Record{Title: "a", MagnetLink: "magnet:?xt=urn:btih:ABC", Template: TemplateTorrent}
		b := Record{Title: "b", MagnetLink: "magnet:?xt=urn:btih:abc", Template: TemplateTorrent}
		assert.Equal(t, DedupKey(a), DedupKey(b))
	})
}
