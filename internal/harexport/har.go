// Package harexport renders stored requests as an HTTP Archive (HAR 1.2).
package harexport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/har"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

const (
	harVersion  = "1.2"
	httpVersion = "HTTP/1.1"
)

// Creator names the application in the exported log.
var Creator = har.Creator{Name: "api-inspector", Version: "dev"}

// Build converts requests into a HAR document. Entries keep the given order.
func Build(reqs []types.Request) *har.HAR {
	creator := Creator
	entries := make([]*har.Entry, 0, len(reqs))
	for i := range reqs {
		entries = append(entries, entry(&reqs[i]))
	}
	return &har.HAR{Log: &har.Log{
		Version: harVersion,
		Creator: &creator,
		Entries: entries,
	}}
}

// Write encodes the HAR document for reqs to w.
func Write(w io.Writer, reqs []types.Request) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Build(reqs))
}

func entry(r *types.Request) *har.Entry {
	e := &har.Entry{
		StartedDateTime: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Time:            float64(r.DurationMS),
		Request:         request(r),
		Response:        response(r),
		Cache:           &har.Cache{},
		Timings:         &har.Timings{Send: 0, Wait: float64(r.DurationMS), Receive: 0},
		Comment:         r.Highlight,
	}
	if r.Error != "" {
		e.Comment = strings.TrimSpace(e.Comment + " " + r.Error)
	}
	return e
}

func request(r *types.Request) *har.Request {
	out := &har.Request{
		Method:      r.Method,
		URL:         r.URL,
		HTTPVersion: httpVersion,
		Cookies:     []*har.Cookie{},
		Headers:     pairs(r.RequestHeaders),
		QueryString: query(r.URL),
		HeadersSize: -1,
		BodySize:    0,
	}
	if r.RequestBody != nil {
		mime := headerValue(r.RequestHeaders, "Content-Type")
		out.PostData = &har.PostData{MimeType: mime, Params: []*har.Param{}, Text: *r.RequestBody}
		out.BodySize = int64(len(*r.RequestBody))
	}
	return out
}

func response(r *types.Request) *har.Response {
	out := &har.Response{
		Cookies:     []*har.Cookie{},
		Headers:     []*har.NameValuePair{},
		Content:     &har.Content{MimeType: "x-unknown"},
		HTTPVersion: httpVersion,
		HeadersSize: -1,
		BodySize:    -1,
	}
	resp := r.Response
	if resp == nil {
		return out
	}
	out.Status = int64(resp.StatusCode)
	out.StatusText = resp.StatusText
	if out.StatusText == "" && resp.StatusCode > 0 {
		out.StatusText = http.StatusText(resp.StatusCode)
	}
	out.Headers = pairs(resp.Headers)
	out.RedirectURL = headerValue(resp.Headers, "Location")
	if ct := r.ContentType(); ct != "" {
		out.Content.MimeType = ct
	}
	out.Content.Text = resp.Body
	out.Content.Size = int64(len(resp.Body))
	if resp.Truncated {
		out.Content.Size = int64(resp.OriginalSize)
		out.Content.Comment = "truncated, sha256 " + resp.SHA256
	}
	if resp.Base64Encoded {
		out.Content.Encoding = "base64"
	}
	if resp.BodyError != "" {
		out.Content.Comment = resp.BodyError
	}
	out.BodySize = out.Content.Size
	return out
}

func pairs(hs []types.Header) []*har.NameValuePair {
	out := make([]*har.NameValuePair, 0, len(hs))
	for _, h := range hs {
		out = append(out, &har.NameValuePair{Name: h.Name, Value: h.Value})
	}
	return out
}

func query(raw string) []*har.NameValuePair {
	out := []*har.NameValuePair{}
	u, err := url.Parse(raw)
	if err != nil {
		return out
	}
	for _, kv := range strings.Split(u.RawQuery, "&") {
		if kv == "" {
			continue
		}
		name, value, _ := strings.Cut(kv, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		out = append(out, &har.NameValuePair{Name: name, Value: value})
	}
	return out
}

func headerValue(hs []types.Header, name string) string {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
