// Package filter holds the filter configuration and the two pipeline stages:
// the coarse stage run when a request is first seen and the fine stage run
// per record while scanning the store.
package filter

import (
	"strings"

	"github.com/Subhashis360/API-Inspector/internal/classify"
)

// Version is the current configuration schema version.
const Version = 2

// DefaultExtensions are the file extensions excluded by default.
var DefaultExtensions = []string{
	"png", "jpg", "jpeg", "gif", "svg", "wasm", "ico", "webp", "bmp",
	"woff", "woff2", "ttf", "eot", "otf",
	"mp4", "webm", "ogg", "mp3", "wav", "flac", "aac",
	"pdf", "zip", "rar", "tar", "gz", "7z",
}

// DefaultPaths are the path segments excluded by default.
var DefaultPaths = []string{
	"images", "img", "assets", "static", "media", "fonts", "styles", "icons", "files",
}

// Config is a named, persisted set of fine-stage rules.
type Config struct {
	Name               string   `json:"name,omitempty" yaml:"name"`
	Version            int      `json:"version" yaml:"version"`
	InScope            []string `json:"in_scope" yaml:"in_scope"`
	Categories         []string `json:"categories" yaml:"categories"`
	CustomMime         string   `json:"custom_mime,omitempty" yaml:"custom_mime"`
	ExcludedExtensions []string `json:"excluded_extensions" yaml:"excluded_extensions"`
	ExcludedPaths      []string `json:"excluded_paths" yaml:"excluded_paths"`
	URLRegex           string   `json:"url_regex,omitempty" yaml:"url_regex"`
}

// Default returns the built-in configuration: no scope list, static assets
// hidden, the default extension and path exclusions.
func Default() Config {
	return Config{
		Name:               "default",
		Version:            Version,
		InScope:            []string{},
		Categories:         []string{},
		ExcludedExtensions: append([]string(nil), DefaultExtensions...),
		ExcludedPaths:      append([]string(nil), DefaultPaths...),
	}
}

// WithDefaults fills absent (nil) exclusion lists with the built-in sets. An
// empty, non-nil list means no exclusions and is kept.
func (c Config) WithDefaults() Config {
	if c.ExcludedExtensions == nil {
		c.ExcludedExtensions = append([]string(nil), DefaultExtensions...)
	}
	if c.ExcludedPaths == nil {
		c.ExcludedPaths = append([]string(nil), DefaultPaths...)
	}
	if c.Version == 0 {
		c.Version = Version
	}
	return c
}

// Allows reports whether the allow-list contains the given category.
func (c Config) Allows(cat classify.Category) bool {
	for _, v := range c.Categories {
		if strings.EqualFold(strings.TrimSpace(v), string(cat)) {
			return true
		}
	}
	return false
}
