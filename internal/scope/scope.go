// Package scope decides whether a hostname belongs to a capture target.
package scope

import "strings"

// MaxDepth bounds how many labels a subdomain may add on top of the target.
const MaxDepth = 10

// Matches reports whether hostname is in scope for target. The comparison is
// case-insensitive and accepts subdomains in either direction as long as the
// label difference is between 1 and MaxDepth.
func Matches(hostname, target string) bool {
	h := normalize(hostname)
	t := normalize(target)
	if h == "" || t == "" {
		return false
	}
	if h == t {
		return true
	}
	if isSubdomain(h, t) || isSubdomain(t, h) {
		return true
	}
	return false
}

// StripWWW removes a leading "www." label and lowercases the host.
func StripWWW(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(h, "www.")
}

func isSubdomain(child, parent string) bool {
	if !strings.HasSuffix(child, "."+parent) {
		return false
	}
	depth := labels(child) - labels(parent)
	return depth >= 1 && depth <= MaxDepth
}

func labels(h string) int {
	return strings.Count(h, ".") + 1
}

func normalize(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
