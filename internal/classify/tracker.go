package classify

import (
	"regexp"
	"strings"
)

// trackerFragments are host and path fragments of analytics, ad, telemetry
// and push notification endpoints.
var trackerFragments = []string{
	`google-analytics\.com`,
	`googletagmanager\.com`,
	`googlesyndication\.com`,
	`googleadservices\.com`,
	`doubleclick\.net`,
	`connect\.facebook\.net`,
	`facebook\.com/tr`,
	`analytics\.tiktok\.com`,
	`bat\.bing\.com`,
	`clarity\.ms`,
	`hotjar\.(com|io)`,
	`fullstory\.com`,
	`mixpanel\.com`,
	`segment\.(io|com)`,
	`amplitude\.com`,
	`heapanalytics\.com`,
	`sentry\.io`,
	`nr-data\.net`,
	`newrelic\.com`,
	`bugsnag\.com`,
	`datadoghq-browser-agent`,
	`scorecardresearch\.com`,
	`quantserve\.com`,
	`adnxs\.com`,
	`adsrvr\.org`,
	`criteo\.(com|net)`,
	`taboola\.com`,
	`outbrain\.com`,
	`onesignal\.com`,
	`pushwoosh\.com`,
	`pushengage\.com`,
	`fcmregistrations\.googleapis\.com`,
	`[/.]ads?\.`,
	`/pixel([/?.]|$)`,
	`/beacon([/?.]|$)`,
	`/collect\?`,
	`/telemetry([/?.]|$)`,
	`/track(ing)?([/?.]|$)`,
}

var trackerRe = regexp.MustCompile(`(?i)(` + strings.Join(trackerFragments, "|") + `)`)

// IsTracker reports whether the URL points at a known tracking endpoint.
func IsTracker(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	return trackerRe.MatchString(rawURL)
}
