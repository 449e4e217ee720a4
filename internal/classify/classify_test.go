package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		url          string
		mime         string
		want         Category
	}{
		{"declared_script_wins_over_mime", "Script", "https://a.test/x", "application/json", Script},
		{"declared_image", "Image", "https://a.test/logo.png", "", Image},
		{"declared_document", "Document", "https://a.test/", "", Document},
		{"mime_json_for_fetch", "Fetch", "https://a.test/api/cart", "application/json", JSON},
		{"mime_ecmascript", "Other", "https://a.test/x", "text/ecmascript", Script},
		{"mime_xml", "XHR", "https://a.test/feed", "application/rss+xml", XML},
		{"mime_html", "Other", "https://a.test/x", "text/html", Document},
		{"extension_with_query", "Other", "https://a.test/app.js?v=3", "", Script},
		{"extension_font", "Other", "https://a.test/f/inter.woff2", "", Font},
		{"extension_uppercase", "Other", "https://a.test/IMG.PNG", "", Image},
		{"interactive_fallback", "Fetch", "https://a.test/api/cart", "", API},
		{"websocket", "WebSocket", "wss://a.test/socket", "", API},
		{"other_fallback", "Ping", "https://a.test/ping", "", Other},
		{"unknown_extension", "Media", "https://a.test/movie.mkv", "", Other},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.resourceType, tt.url, tt.mime); got != tt.want {
				t.Fatalf("Classify(%q, %q, %q) = %q; want %q", tt.resourceType, tt.url, tt.mime, got, tt.want)
			}
		})
	}
}

func TestIsStatic(t *testing.T) {
	for _, c := range []Category{Script, Stylesheet, Image, Font, Other} {
		if !IsStatic(c) {
			t.Fatalf("IsStatic(%q) = false; want true", c)
		}
	}
	for _, c := range []Category{API, JSON, XML, Document} {
		if IsStatic(c) {
			t.Fatalf("IsStatic(%q) = true; want false", c)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"https://a.test/a/b.JSON?x=1": "json",
		"https://a.test/a/b":          "",
		"https://a.test/":             "",
		"https://a.test/v1.2/users":   "",
		"/static/app.min.js#frag":     "js",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Fatalf("Extension(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestIsTracker(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.ads.example/pixel.gif", true},
		{"https://www.google-analytics.com/g/collect?v=2", true},
		{"https://stats.g.doubleclick.net/j/collect", true},
		{"https://o123.ingest.sentry.io/api/1/envelope/", true},
		{"https://shop.test/track", true},
		{"https://shop.test/api/cart", false},
		{"https://shop.test/api/tracks/42", false},
		{"https://uploads.shop.test/img.png", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsTracker(tt.url); got != tt.want {
			t.Fatalf("IsTracker(%q) = %v; want %v", tt.url, got, tt.want)
		}
	}
}
