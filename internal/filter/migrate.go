package filter

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

// Migrate reads a stored filter configuration, which may use the legacy
// camelCase layout with free-form MIME strings, and returns it in the current
// shape. changed is true when the stored form should be rewritten.
func Migrate(raw []byte) (cfg Config, changed bool, err error) {
	if len(raw) == 0 {
		return Default(), true, nil
	}
	if !gjson.ValidBytes(raw) {
		return Config{}, false, types.NewError(types.CodeValidation, "filter config is not valid JSON", nil)
	}
	doc := gjson.ParseBytes(raw)

	cfg = Config{
		Name:               doc.Get("name").String(),
		Version:            int(doc.Get("version").Int()),
		InScope:            stringList(doc, "in_scope", "inScope"),
		Categories:         stringList(doc, "categories", "mimeTypes"),
		CustomMime:         first(doc, "custom_mime", "customMime").String(),
		ExcludedExtensions: stringList(doc, "excluded_extensions", "excludedExtensions"),
		ExcludedPaths:      stringList(doc, "excluded_paths", "excludedPaths"),
		URLRegex:           first(doc, "url_regex", "urlRegex").String(),
	}
	if cfg.InScope == nil {
		cfg.InScope = []string{}
	}
	legacy := cfg.Version < Version
	if legacy {
		changed = true
	}

	cats, rewrote := canonicalCategories(cfg.Categories)
	cfg.Categories = cats
	changed = changed || rewrote

	// Older layouts stored an empty list to mean the built-in set.
	if legacy && len(cfg.ExcludedExtensions) == 0 {
		cfg.ExcludedExtensions = nil
	}
	if legacy && len(cfg.ExcludedPaths) == 0 {
		cfg.ExcludedPaths = nil
	}
	if cfg.ExcludedExtensions == nil || cfg.ExcludedPaths == nil {
		changed = true
	}
	cfg = cfg.WithDefaults()
	cfg.Version = Version
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return cfg, changed, nil
}

// canonicalCategories maps legacy MIME strings onto the category vocabulary
// and drops duplicates.
func canonicalCategories(in []string) ([]string, bool) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	rewrote := false
	for _, m := range in {
		c := canonicalCategory(m)
		if c != m {
			rewrote = true
		}
		if _, ok := seen[c]; ok {
			rewrote = true
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, rewrote
}

func canonicalCategory(m string) string {
	low := strings.ToLower(strings.TrimSpace(m))
	switch {
	case strings.Contains(low, "javascript"), strings.Contains(low, "ecmascript"):
		return "js"
	case low == "text/css":
		return "css"
	case strings.Contains(low, "image"):
		return "image"
	case strings.Contains(low, "font"):
		return "font"
	case low == "text/html":
		return "doc"
	case strings.Contains(low, "json") && low != "json":
		return "json"
	}
	return m
}

func first(doc gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := doc.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// stringList returns nil when none of the keys hold an array.
func stringList(doc gjson.Result, keys ...string) []string {
	v := first(doc, keys...)
	if !v.IsArray() {
		return nil
	}
	out := []string{}
	for _, item := range v.Array() {
		s := strings.TrimSpace(item.String())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
