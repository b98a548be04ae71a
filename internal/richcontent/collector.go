package richcontent

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// Collector extracts asset URLs from an opaque rich-content payload so
// they can be preloaded before presentation. It walks the decoded JSON
// and keeps every string that looks like a downloadable image or font.
type Collector struct{}

var assetExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {},
}

func (Collector) CollectAssetURLs(raw []byte) []string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	walk(doc, func(s string) {
		if !isAssetURL(s) {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	})
	return out
}

func walk(v any, visit func(string)) {
	switch t := v.(type) {
	case string:
		visit(t)
	case []any:
		for _, e := range t {
			walk(e, visit)
		}
	case map[string]any:
		for _, e := range t {
			walk(e, visit)
		}
	}
}

func isAssetURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := assetExtensions[ext]
	return ok
}
