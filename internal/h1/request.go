// Package h1 provides the HTTP/1.x protocol core: an incremental request
// parser, the request and response carriers, and the per-connection
// dispatcher driven by a gnet event loop.
package h1

import (
	"context"
	"strings"
	"time"
)

// Method is a recognized HTTP request method.
type Method uint8

// Recognized methods. MethodInvalid is the zero value.
const (
	MethodInvalid Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodOptions
)

var methodNames = [...]string{
	MethodInvalid: "INVALID",
	MethodGet:     "GET",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodOptions: "OPTIONS",
}

// String returns the wire token of the method.
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return methodNames[MethodInvalid]
}

// ParseMethod maps a request-line token to a Method. Tokens are case-sensitive.
func ParseMethod(token string) Method {
	switch token {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	case "OPTIONS":
		return MethodOptions
	default:
		return MethodInvalid
	}
}

// Protocol versions accepted on the request line.
const (
	Version10 = "HTTP/1.0"
	Version11 = "HTTP/1.1"
)

// Request is a parsed HTTP/1.x request.
type Request struct {
	method        Method
	path          string
	version       string
	query         map[string]string
	params        map[string]string
	headers       map[string]string
	body          []byte
	contentLength uint64
	receivedAt    time.Time
	ctx           context.Context

	// connection is the last Connection header seen under any key case.
	connection string
}

func newRequest() *Request {
	return &Request{
		query:   make(map[string]string),
		params:  make(map[string]string),
		headers: make(map[string]string),
	}
}

// NewRequest builds a request outside the parser, mostly for handlers that
// need to synthesize one and for tests. target may carry a query string.
func NewRequest(method Method, target string) *Request {
	r := newRequest()
	r.method = method
	r.version = Version11
	r.receivedAt = time.Now()
	path, rawQuery, _ := strings.Cut(target, "?")
	r.path = path
	parseQuery(rawQuery, r.query)
	return r
}

// Method returns the request method.
func (r *Request) Method() Method { return r.method }

// Path returns the request path without the query string.
func (r *Request) Path() string { return r.path }

// Version returns the protocol version token, HTTP/1.0 or HTTP/1.1.
func (r *Request) Version() string { return r.version }

// Query returns the query parameter for key, or "" if absent.
func (r *Request) Query(key string) string { return r.query[key] }

// QueryParams returns the query parameter map. Callers must not modify it.
func (r *Request) QueryParams() map[string]string { return r.query }

// Param returns the path parameter bound by the router for key.
func (r *Request) Param(key string) string { return r.params[key] }

// SetParam binds a path parameter. Only the router is expected to call it.
func (r *Request) SetParam(key, value string) { r.params[key] = value }

// Params returns the bound path parameters. Callers must not modify it.
func (r *Request) Params() map[string]string { return r.params }

// Header returns the header value stored under key exactly as received.
func (r *Request) Header(key string) string { return r.headers[key] }

// LookupHeader finds a header by exact key first and then by
// case-insensitive comparison. When several case variants are stored the
// lexically smallest key wins, so the result does not depend on map order.
func (r *Request) LookupHeader(key string) (string, bool) {
	if v, ok := r.headers[key]; ok {
		return v, true
	}
	var (
		found string
		value string
		ok    bool
	)
	for k, v := range r.headers {
		if asciiEqualFold(k, key) && (!ok || k < found) {
			found, value, ok = k, v, true
		}
	}
	return value, ok
}

// SetHeader stores a header value, replacing any previous value for key.
func (r *Request) SetHeader(key, value string) {
	r.headers[key] = value
	if asciiEqualFold(key, "Connection") {
		r.connection = value
	}
}

// Headers returns the header map. Callers must not modify it.
func (r *Request) Headers() map[string]string { return r.headers }

// Body returns the request body.
func (r *Request) Body() []byte { return r.body }

// SetBody replaces the request body and its content length.
func (r *Request) SetBody(body []byte) {
	r.body = body
	r.contentLength = uint64(len(body))
}

// ContentLength returns the declared Content-Length, 0 when none was sent.
func (r *Request) ContentLength() uint64 { return r.contentLength }

// ReceivedAt returns when the request line was parsed.
func (r *Request) ReceivedAt() time.Time { return r.receivedAt }

// Context returns the request context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the request context.
func (r *Request) SetContext(ctx context.Context) { r.ctx = ctx }

// WantsClose reports whether the connection should close after this
// request: an explicit Connection: close, or HTTP/1.0 without keep-alive.
// The header name matches in any case; the last one received wins.
func (r *Request) WantsClose() bool {
	if r.connection == "close" {
		return true
	}
	return r.version == Version10 && r.connection != "Keep-Alive"
}

// parseQuery splits raw on '&' and then '='. Pairs without '=' are dropped
// and values are kept verbatim.
func parseQuery(raw string, dst map[string]string) {
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		dst[key] = value
	}
}
