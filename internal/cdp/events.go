package cdp

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/network"

	"github.com/Subhashis360/API-Inspector/internal/capture"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

// translate converts a target-level network event into a capture event. It
// returns nil for events the correlator does not consume.
func translate(contextID string, ev any) capture.Event {
	m := capture.Meta{Context: contextID}

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return nil
		}
		return capture.RequestInitiated{
			Meta:         m,
			RequestID:    string(e.RequestID),
			URL:          requestURL(e.Request),
			Method:       e.Request.Method,
			ResourceType: string(e.Type),
			Headers:      headerList(e.Request.Headers),
			PostData:     postData(e.Request),
		}
	case *network.EventRequestWillBeSentExtraInfo:
		return capture.RequestExtraInfo{
			Meta:      m,
			RequestID: string(e.RequestID),
			Headers:   headerList(e.Headers),
		}
	case *network.EventResponseReceived:
		out := capture.ResponseReceived{
			Meta:         m,
			RequestID:    string(e.RequestID),
			ResourceType: string(e.Type),
		}
		if e.Response != nil {
			out.Status = int(e.Response.Status)
			out.StatusText = e.Response.StatusText
			out.Headers = headerList(e.Response.Headers)
			out.MimeType = e.Response.MimeType
		}
		return out
	case *network.EventResponseReceivedExtraInfo:
		return capture.ResponseExtraInfo{
			Meta:      m,
			RequestID: string(e.RequestID),
			Status:    int(e.StatusCode),
			Headers:   headerList(e.Headers),
		}
	case *network.EventLoadingFinished:
		return capture.LoadingFinished{
			Meta:          m,
			RequestID:     string(e.RequestID),
			EncodedLength: int64(e.EncodedDataLength),
		}
	case *network.EventLoadingFailed:
		return capture.LoadingFailed{
			Meta:      m,
			RequestID: string(e.RequestID),
			ErrorText: e.ErrorText,
			Canceled:  e.Canceled,
		}
	case *network.EventWebSocketCreated:
		return capture.SocketCreated{Meta: m, RequestID: string(e.RequestID), URL: e.URL}
	case *network.EventWebSocketWillSendHandshakeRequest:
		out := capture.SocketHandshakeSent{Meta: m, RequestID: string(e.RequestID)}
		if e.Request != nil {
			out.Headers = headerList(e.Request.Headers)
		}
		return out
	case *network.EventWebSocketHandshakeResponseReceived:
		out := capture.SocketHandshakeReceived{Meta: m, RequestID: string(e.RequestID)}
		if e.Response != nil {
			out.Status = int(e.Response.Status)
			out.StatusText = e.Response.StatusText
			out.Headers = headerList(e.Response.Headers)
		}
		return out
	case *network.EventWebSocketFrameSent:
		if e.Response == nil {
			return nil
		}
		return capture.SocketFrameSent{
			Meta:      m,
			RequestID: string(e.RequestID),
			Opcode:    int(e.Response.Opcode),
			Payload:   e.Response.PayloadData,
		}
	case *network.EventWebSocketFrameReceived:
		if e.Response == nil {
			return nil
		}
		return capture.SocketFrameReceived{
			Meta:      m,
			RequestID: string(e.RequestID),
			Opcode:    int(e.Response.Opcode),
			Payload:   e.Response.PayloadData,
		}
	case *network.EventWebSocketClosed:
		return capture.SocketClosed{Meta: m, RequestID: string(e.RequestID)}
	}
	return nil
}

func requestURL(r *network.Request) string {
	if r.URLFragment == "" {
		return r.URL
	}
	return r.URL + r.URLFragment
}

// headerList flattens protocol headers, sorted by name. Duplicate response
// headers arrive joined by newlines and are kept that way.
func headerList(h network.Headers) []types.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]types.Header, 0, len(h))
	for name, v := range h {
		value, ok := v.(string)
		if !ok {
			value = fmt.Sprint(v)
		}
		out = append(out, types.Header{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

// postData joins the request body entries. Entries carry base64 bytes; an
// entry that fails to decode is kept as sent.
func postData(r *network.Request) *string {
	if !r.HasPostData || len(r.PostDataEntries) == 0 {
		return nil
	}
	var b strings.Builder
	for _, e := range r.PostDataEntries {
		if e == nil {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(e.Bytes)
		if err != nil {
			b.WriteString(e.Bytes)
			continue
		}
		b.Write(raw)
	}
	s := b.String()
	return &s
}
