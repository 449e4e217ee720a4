package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Subhashis360/API-Inspector/internal/classify"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

// Matcher is a compiled Config. It is immutable and safe for concurrent use.
type Matcher struct {
	cfg        Config
	paths      []string
	scopes     []scopeRule
	extensions map[string]struct{}
	customMime string
	urlRe      *regexp.Regexp
}

type scopeRule struct {
	literal string
	re      *regexp.Regexp
}

// Compile normalizes the configuration and precompiles its patterns.
func Compile(cfg Config) (*Matcher, error) {
	m := &Matcher{
		cfg:        cfg,
		extensions: make(map[string]struct{}, len(cfg.ExcludedExtensions)),
		customMime: strings.ToLower(strings.TrimSpace(cfg.CustomMime)),
	}

	for _, p := range cfg.ExcludedPaths {
		p = strings.Trim(strings.ToLower(strings.TrimSpace(p)), "/")
		if p != "" {
			m.paths = append(m.paths, p)
		}
	}

	for _, s := range cfg.InScope {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.Contains(s, "*") {
			m.scopes = append(m.scopes, scopeRule{literal: s})
			continue
		}
		re, err := regexp.Compile(wildcardPattern(s))
		if err != nil {
			return nil, types.NewError(types.CodeValidation, fmt.Sprintf("invalid scope pattern %q", s), err)
		}
		m.scopes = append(m.scopes, scopeRule{re: re})
	}

	for _, e := range cfg.ExcludedExtensions {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			m.extensions[e] = struct{}{}
		}
	}

	if cfg.URLRegex != "" {
		re, err := regexp.Compile("(?i)" + cfg.URLRegex)
		if err != nil {
			return nil, types.NewError(types.CodeValidation, "invalid url regex", err)
		}
		m.urlRe = re
	}

	return m, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(cfg Config) *Matcher {
	m, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Config returns the configuration the matcher was compiled from.
func (m *Matcher) Config() Config { return m.cfg }

// Match applies the rules in order and stops at the first reject.
func (m *Matcher) Match(r types.Request) bool {
	u, _ := url.Parse(r.URL)
	var pathname, host string
	if u != nil {
		pathname = strings.ToLower(u.Path)
		host = strings.ToLower(u.Hostname())
	} else {
		pathname = strings.ToLower(r.URL)
	}

	if !m.matchPath(pathname) {
		return false
	}
	if !m.matchScope(r, host) {
		return false
	}
	if !m.matchCategory(r) {
		return false
	}
	if !m.matchExtension(pathname) {
		return false
	}
	if m.urlRe != nil && !m.urlRe.MatchString(r.URL) {
		return false
	}
	return true
}

func (m *Matcher) matchPath(pathname string) bool {
	for _, seg := range m.paths {
		if strings.Contains(pathname, "/"+seg+"/") || strings.HasSuffix(pathname, "/"+seg) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchScope(r types.Request, host string) bool {
	if len(m.scopes) == 0 {
		return true
	}
	domain := strings.ToLower(r.SourceDomain)
	lowerURL := strings.ToLower(r.URL)
	for _, s := range m.scopes {
		if s.re != nil {
			if s.re.MatchString(domain) || (host != "" && s.re.MatchString(host)) {
				return true
			}
			continue
		}
		if domain == s.literal || strings.Contains(lowerURL, s.literal) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchCategory(r types.Request) bool {
	mime := strings.ToLower(r.ContentType())
	cat := classify.Classify(r.ResourceType, r.URL, mime)

	switch cat {
	case classify.Script, classify.Stylesheet, classify.Image, classify.Font:
	default:
		return true
	}
	if m.cfg.Allows(cat) {
		return true
	}
	if cat == classify.Image && m.cfg.Allows("media") {
		return true
	}
	if m.customMime != "" && strings.Contains(mime, m.customMime) {
		return true
	}
	return false
}

func (m *Matcher) matchExtension(pathname string) bool {
	if len(m.extensions) == 0 {
		return true
	}
	i := strings.LastIndex(pathname, ".")
	if i < 0 || strings.Contains(pathname[i:], "/") {
		return true
	}
	_, excluded := m.extensions[pathname[i+1:]]
	return !excluded
}

// wildcardPattern turns "*.example.com" into a pattern matching the domain
// and any subdomain, and other globs into an anchored pattern.
func wildcardPattern(s string) string {
	if strings.HasPrefix(s, "*.") {
		return `^(?:.*\.)?` + regexp.QuoteMeta(s[2:]) + `$`
	}
	parts := strings.Split(s, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}
