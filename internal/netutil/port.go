package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// PeerPath is where sibling processes accept change-bus connections.
const PeerPath = "/api/v1/peer"

// Listen binds the preferred address, then each candidate in order when
// autoFallback is set. The returned listener is already bound, so the
// chosen port cannot be taken between selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("Preferred bind address unavailable, trying fallbacks", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}

	return nil, errors.New("no available bind addresses")
}

// PeerURL turns a sibling's address into its change-bus WebSocket URL.
// Accepted forms are host:port, http(s) URLs and ws(s) URLs; a missing
// path defaults to PeerPath.
func PeerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty peer address")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("peer %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("peer %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("peer %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = PeerPath
	}
	return u.String(), nil
}

// SameAddr reports whether two listen addresses name the same endpoint,
// treating an empty or unspecified host as loopback.
func SameAddr(a, b string) bool {
	ha, pa, errA := net.SplitHostPort(a)
	hb, pb, errB := net.SplitHostPort(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pa == pb && loopbackHost(ha) == loopbackHost(hb)
}

func loopbackHost(h string) string {
	switch h {
	case "", "0.0.0.0", "::", "localhost", "::1":
		return "127.0.0.1"
	}
	return h
}
