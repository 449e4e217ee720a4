package types

import "strings"

// ContextInfo describes a browsing context (a browser tab) as reported by
// the capture channel.
type ContextInfo struct {
	ContextID string `json:"context_id"`
	WindowID  int64  `json:"window_id,omitempty"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
}

var privilegedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-search://",
	"chrome-untrusted://",
	"devtools://",
	"edge://",
	"brave://",
	"about:",
	"view-source:",
}

// Privileged reports whether the context shows an internal page that a
// debugger cannot be attached to.
func (c ContextInfo) Privileged() bool {
	u := strings.ToLower(c.URL)
	if u == "" {
		return false
	}
	if u == "about:blank" {
		return false
	}
	for _, p := range privilegedPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}
