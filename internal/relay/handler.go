package relay

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// KeepAlive is the interval between SSE comment pings.
var KeepAlive = 15 * time.Second

// SSEHandler returns an http.HandlerFunc that streams broker events as SSE.
// Clients may filter feeds via ?feeds=name1,name2 query parameter.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var feedFilter map[string]bool
		if q := r.URL.Query().Get("feeds"); q != "" {
			feedFilter = make(map[string]bool)
			for _, f := range strings.Split(q, ",") {
				if f = strings.TrimSpace(f); f != "" {
					feedFilter[f] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		fmt.Fprint(w, ": ready\n\n")
		flusher.Flush()

		ping := time.NewTicker(KeepAlive)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if feedFilter != nil && !feedFilter[evt.Feed] {
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\n", evt.ID, evt.Feed)
				for _, line := range strings.Split(evt.Payload, "\n") {
					fmt.Fprintf(w, "data: %s\n", line)
				}
				fmt.Fprint(w, "\n")
				flusher.Flush()
			}
		}
	}
}
