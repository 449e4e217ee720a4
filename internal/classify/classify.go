// Package classify assigns a request to a content category and flags known
// tracking endpoints.
package classify

import (
	"net/url"
	"path"
	"strings"
)

// Category is the coarse content bucket of a request.
type Category string

const (
	API        Category = "api"
	Script     Category = "js"
	Stylesheet Category = "css"
	Image      Category = "image"
	Font       Category = "font"
	Document   Category = "doc"
	JSON       Category = "json"
	XML        Category = "xml"
	Other      Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{API, JSON, XML, Document, Script, Stylesheet, Image, Font, Other}

// Valid reports whether c names a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

var extCategory = map[string]Category{
	"js": Script, "mjs": Script, "jsx": Script, "ts": Script, "tsx": Script,
	"css": Stylesheet,
	"png": Image, "jpg": Image, "jpeg": Image, "gif": Image, "svg": Image, "ico": Image, "webp": Image, "bmp": Image,
	"woff": Font, "woff2": Font, "ttf": Font, "eot": Font, "otf": Font,
	"json": JSON,
	"html": Document, "htm": Document,
	"xml": XML,
}

// Classify derives the category from the declared resource type, the URL and
// the response mime type. mime may be empty while the response is unknown.
func Classify(resourceType, rawURL, mime string) Category {
	if c, ok := declared(resourceType); ok {
		return c
	}
	if c, ok := fromMime(mime); ok {
		return c
	}
	if c, ok := fromURL(rawURL); ok {
		return c
	}
	if IsInteractive(resourceType) {
		return API
	}
	return Other
}

// IsInteractive reports whether the declared resource type is an
// XHR/fetch/socket style exchange.
func IsInteractive(resourceType string) bool {
	switch strings.ToLower(resourceType) {
	case "xhr", "xmlhttprequest", "fetch", "websocket", "eventsource":
		return true
	}
	return false
}

// IsStatic reports whether c is a static asset category at capture time.
func IsStatic(c Category) bool {
	switch c {
	case Script, Stylesheet, Image, Font, Other:
		return true
	}
	return false
}

func declared(resourceType string) (Category, bool) {
	switch strings.ToLower(resourceType) {
	case "script":
		return Script, true
	case "stylesheet":
		return Stylesheet, true
	case "image":
		return Image, true
	case "font":
		return Font, true
	case "document", "main_frame", "sub_frame":
		return Document, true
	}
	return "", false
}

func fromMime(mime string) (Category, bool) {
	m := strings.ToLower(mime)
	switch {
	case m == "":
		return "", false
	case strings.Contains(m, "javascript"), strings.Contains(m, "ecmascript"):
		return Script, true
	case strings.Contains(m, "css"):
		return Stylesheet, true
	case strings.Contains(m, "image"):
		return Image, true
	case strings.Contains(m, "font"):
		return Font, true
	case strings.Contains(m, "json"):
		return JSON, true
	case strings.Contains(m, "html"):
		return Document, true
	case strings.Contains(m, "xml"):
		return XML, true
	}
	return "", false
}

// fromURL checks the path extension, ignoring any query or fragment suffix.
func fromURL(rawURL string) (Category, bool) {
	ext := Extension(rawURL)
	if ext == "" {
		return "", false
	}
	c, ok := extCategory[ext]
	return c, ok
}

// Extension returns the lowercased extension of the URL path without the
// leading dot, or "" when the last segment has none.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := path.Ext(p)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(ext[1:])
}
