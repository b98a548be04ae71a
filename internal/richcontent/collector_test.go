package richcontent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectAssetURLs(t *testing.T) {
	raw := []byte(`{
		"blocks": [
			{"type": "image", "src": "https://cdn.example.com/hero.png"},
			{"type": "text", "font": "https://cdn.example.com/brand.woff2", "body": "Hello"},
			{"type": "link", "href": "https://example.com/landing"},
			{"type": "image", "src": "https://cdn.example.com/hero.png"}
		],
		"background": {"image": "http://cdn.example.com/bg.jpeg"}
	}`)

	got := Collector{}.CollectAssetURLs(raw)
	assert.ElementsMatch(t, []string{
		"https://cdn.example.com/hero.png",
		"https://cdn.example.com/brand.woff2",
		"http://cdn.example.com/bg.jpeg",
	}, got)
}

func TestCollectAssetURLs_IgnoresNonAssets(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain text", `{"body": "no urls here"}`},
		{"page link", `{"href": "https://example.com/page"}`},
		{"relative path", `{"src": "/local/banner.png"}`},
		{"invalid json", `{broken`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Collector{}.CollectAssetURLs([]byte(tt.raw)))
		})
	}
}
