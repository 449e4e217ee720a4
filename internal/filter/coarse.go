package filter

import (
	"net/url"
	"strings"

	"github.com/Subhashis360/API-Inspector/internal/classify"
	"github.com/Subhashis360/API-Inspector/internal/scope"
)

// Reject reasons reported by Coarse.
const (
	ReasonScheme  = "scheme"
	ReasonTracker = "tracker"
	ReasonStatic  = "static"
	ReasonScope   = "scope"
)

// CoarseInput is what is known about a request when it is initiated.
type CoarseInput struct {
	URL          string
	Method       string
	ResourceType string
	ScopeDomain  string
	CaptureAll   bool
}

// Decision is the coarse stage verdict.
type Decision struct {
	Accept   bool
	Reason   string
	Category classify.Category
}

// Coarse decides whether a newly initiated request is recorded at all. A
// rejected request is never reconsidered.
func Coarse(in CoarseInput) Decision {
	cat := classify.Classify(in.ResourceType, in.URL, "")

	u, err := url.Parse(in.URL)
	if err != nil {
		return Decision{Reason: ReasonScheme, Category: cat}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Decision{Reason: ReasonScheme, Category: cat}
	}

	if classify.IsTracker(in.URL) {
		return Decision{Reason: ReasonTracker, Category: cat}
	}

	if classify.IsStatic(cat) && !classify.IsInteractive(in.ResourceType) {
		return Decision{Reason: ReasonStatic, Category: cat}
	}

	if in.ScopeDomain != "" && !in.CaptureAll {
		host := scope.StripWWW(u.Hostname())
		if !scope.Matches(host, scope.StripWWW(in.ScopeDomain)) && !IsMutating(in.Method) {
			return Decision{Reason: ReasonScope, Category: cat}
		}
	}

	return Decision{Accept: true, Category: cat}
}

// IsMutating reports whether the method changes server state.
func IsMutating(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}
