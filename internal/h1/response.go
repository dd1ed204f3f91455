package h1

import (
	"io"
	"strconv"

	"github.com/albertbausili/hearth/internal/date"
	"github.com/valyala/bytebufferpool"
)

var (
	headerSep            = []byte(": ")
	headerConnectionName = []byte("Connection: ")
	connClose            = []byte("close")
	connKeepAlive        = []byte("Keep-Alive")
	headerContentLength  = []byte("Content-Length: ")
	headerDate           = []byte("Date: ")

	responsePool bytebufferpool.Pool
)

// Response is an HTTP/1.x response under construction. Headers keep their
// insertion order on the wire.
type Response struct {
	version string
	status  int
	reason  string
	headers [][2]string
	body    []byte
	close   bool
}

// NewResponse creates a 200 OK response for the given protocol version.
func NewResponse(version string, close bool) *Response {
	if version == "" {
		version = Version11
	}
	return &Response{
		version: version,
		status:  200,
		reason:  statusText(200),
		close:   close,
	}
}

// SetStatus sets the status code with its standard reason phrase.
func (r *Response) SetStatus(code int) {
	r.status = code
	r.reason = statusText(code)
}

// SetStatusLine sets the status code with a custom reason phrase.
func (r *Response) SetStatusLine(code int, reason string) {
	r.status = code
	r.reason = reason
}

// Status returns the status code.
func (r *Response) Status() int { return r.status }

// Reason returns the reason phrase.
func (r *Response) Reason() string { return r.reason }

// Version returns the protocol version the response is written with.
func (r *Response) Version() string { return r.version }

// SetHeader replaces every header named key with a single value.
func (r *Response) SetHeader(key, value string) {
	for i := 0; i < len(r.headers); i++ {
		if r.headers[i][0] == key {
			r.headers[i][1] = value
			r.headers = deleteFrom(r.headers, i+1, key)
			return
		}
	}
	r.headers = append(r.headers, [2]string{key, value})
}

func deleteFrom(h [][2]string, start int, key string) [][2]string {
	out := h[:start]
	for _, kv := range h[start:] {
		if kv[0] != key {
			out = append(out, kv)
		}
	}
	return out
}

// AddHeader appends a header without touching existing ones.
func (r *Response) AddHeader(key, value string) {
	r.headers = append(r.headers, [2]string{key, value})
}

// Header returns the first value stored under key.
func (r *Response) Header(key string) (string, bool) {
	for _, kv := range r.headers {
		if kv[0] == key {
			return kv[1], true
		}
	}
	return "", false
}

// DelHeader removes every header named key.
func (r *Response) DelHeader(key string) {
	r.headers = deleteFrom(r.headers, 0, key)
}

// Headers returns the header pairs in insertion order.
func (r *Response) Headers() [][2]string { return r.headers }

// SetBody replaces the response body.
func (r *Response) SetBody(body []byte) { r.body = body }

// SetBodyString replaces the response body with s.
func (r *Response) SetBodyString(s string) { r.body = []byte(s) }

// Body returns the response body.
func (r *Response) Body() []byte { return r.body }

// SetClose marks whether the connection closes after this response.
func (r *Response) SetClose(close bool) { r.close = close }

// Close reports whether the connection closes after this response.
func (r *Response) Close() bool { return r.close }

// AppendTo serializes the response onto dst. Content-Length and Date are
// added when the handler did not set them.
func (r *Response) AppendTo(dst []byte) []byte {
	dst = append(dst, r.version...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(r.status), 10)
	dst = append(dst, ' ')
	dst = append(dst, r.reason...)
	dst = append(dst, crlf...)

	dst = append(dst, headerConnectionName...)
	if r.close {
		dst = append(dst, connClose...)
	} else {
		dst = append(dst, connKeepAlive...)
	}
	dst = append(dst, crlf...)

	hasLength, hasDate := false, false
	for _, h := range r.headers {
		switch {
		case asciiEqualFold(h[0], "Content-Length"):
			hasLength = true
		case asciiEqualFold(h[0], "Date"):
			hasDate = true
		case asciiEqualFold(h[0], "Connection"):
			continue
		}
		dst = append(dst, h[0]...)
		dst = append(dst, headerSep...)
		dst = append(dst, h[1]...)
		dst = append(dst, crlf...)
	}
	if !hasLength {
		dst = append(dst, headerContentLength...)
		dst = strconv.AppendInt(dst, int64(len(r.body)), 10)
		dst = append(dst, crlf...)
	}
	if !hasDate {
		dst = append(dst, headerDate...)
		dst = append(dst, date.Current()...)
		dst = append(dst, crlf...)
	}
	dst = append(dst, crlf...)
	return append(dst, r.body...)
}

// Bytes returns the serialized response.
func (r *Response) Bytes() []byte {
	return r.AppendTo(nil)
}

// WriteTo serializes the response into a pooled buffer and writes it to w
// in a single call.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	bb := responsePool.Get()
	defer responsePool.Put(bb)
	bb.B = r.AppendTo(bb.B[:0])
	n, err := w.Write(bb.B)
	return int64(n), err
}

// asciiEqualFold reports whether a equals b under ASCII case folding.
func asciiEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca |= 0x20
		}
		if 'A' <= cb && cb <= 'Z' {
			cb |= 0x20
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// statusText returns the reason phrase for common status codes.
func statusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 409:
		return "Conflict"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 415:
		return "Unsupported Media Type"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 504:
		return "Gateway Timeout"
	default:
		return "Unknown"
	}
}

// StatusText exposes the reason phrase table to other packages.
func StatusText(code int) string { return statusText(code) }
