package h1

import (
	"bytes"
	"time"
)

// ParseState is the position of the parser within one request.
type ParseState uint8

// Parser states, in the order a request moves through them.
const (
	ExpectRequestLine ParseState = iota
	ExpectHeaders
	ExpectBody
	Done
)

func (s ParseState) String() string {
	switch s {
	case ExpectRequestLine:
		return "expect-request-line"
	case ExpectHeaders:
		return "expect-headers"
	case ExpectBody:
		return "expect-body"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

var crlf = []byte("\r\n")

// Parser incrementally builds a Request from a byte stream that may arrive
// in arbitrary fragments. It consumes only complete lines, and the body only
// once all of it is buffered, so re-invoking Parse as bytes arrive yields the
// same result regardless of where chunk boundaries fall.
type Parser struct {
	state ParseState
	req   *Request

	// contentLength is the last Content-Length value seen in any key case.
	contentLength    string
	hasContentLength bool
}

// NewParser creates a parser waiting for a request line.
func NewParser() *Parser {
	return &Parser{req: newRequest()}
}

// State returns the current parse state.
func (p *Parser) State() ParseState { return p.state }

// GotAll reports whether a complete request has been parsed.
func (p *Parser) GotAll() bool { return p.state == Done }

// Request returns the request under construction. It is complete only once
// GotAll reports true.
func (p *Parser) Request() *Request { return p.req }

// Reset prepares the parser for the next request on the same connection.
// The previous Request is left untouched for whoever still holds it.
func (p *Parser) Reset() {
	p.state = ExpectRequestLine
	p.req = newRequest()
	p.contentLength = ""
	p.hasContentLength = false
}

// Parse consumes as much of buf as it can. It returns false only on a
// protocol violation; running out of input returns true with GotAll false.
func (p *Parser) Parse(buf *bytes.Buffer, receivedAt time.Time) bool {
	for p.state != Done {
		switch p.state {
		case ExpectRequestLine:
			line, ok := nextLine(buf)
			if !ok {
				return true
			}
			if !p.parseRequestLine(line) {
				return false
			}
			p.req.receivedAt = receivedAt
			p.state = ExpectHeaders
		case ExpectHeaders:
			line, ok := nextLine(buf)
			if !ok {
				return true
			}
			if len(line) == 0 {
				if !p.finishHeaders() {
					return false
				}
				continue
			}
			p.parseHeaderLine(line)
		case ExpectBody:
			n := p.req.contentLength
			if uint64(buf.Len()) < n {
				return true
			}
			body := make([]byte, n)
			copy(body, buf.Next(int(n)))
			p.req.body = body
			p.state = Done
		}
	}
	return true
}

// nextLine returns the next CRLF-terminated line without its terminator and
// consumes it from buf, or reports false when no full line is buffered.
func nextLine(buf *bytes.Buffer) ([]byte, bool) {
	idx := bytes.Index(buf.Bytes(), crlf)
	if idx < 0 {
		return nil, false
	}
	line := buf.Next(idx + len(crlf))
	return line[:idx], true
}

// parseRequestLine parses METHOD SP TARGET SP VERSION.
func (p *Parser) parseRequestLine(line []byte) bool {
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return false
	}
	method := ParseMethod(string(line[:sp]))
	if method == MethodInvalid {
		return false
	}
	rest := line[sp+1:]
	sp = bytes.IndexByte(rest, ' ')
	if sp < 0 {
		return false
	}
	target, version := rest[:sp], rest[sp+1:]
	if !validVersion(version) {
		return false
	}

	p.req.method = method
	if q := bytes.IndexByte(target, '?'); q >= 0 {
		p.req.path = string(target[:q])
		parseQuery(string(target[q+1:]), p.req.query)
	} else {
		p.req.path = string(target)
	}
	if len(version) == len(Version11) && version[7] == '1' {
		p.req.version = Version11
	} else {
		p.req.version = Version10
	}
	return true
}

func validVersion(v []byte) bool {
	if len(v) != len(Version11) || !bytes.HasPrefix(v, []byte("HTTP/1.")) {
		return false
	}
	return v[7] == '0' || v[7] == '1'
}

// parseHeaderLine stores one "Key: Value" line. Lines without a colon are
// ignored.
func (p *Parser) parseHeaderLine(line []byte) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return
	}
	key := string(line[:colon])
	value := string(bytes.TrimSpace(line[colon+1:]))
	p.req.SetHeader(key, value)
	if asciiEqualFold(key, "Content-Length") {
		p.contentLength = value
		p.hasContentLength = true
	}
}

// finishHeaders decides the next state once the blank line is seen.
// POST and PUT must declare a body length.
func (p *Parser) finishHeaders() bool {
	switch p.req.method {
	case MethodPost, MethodPut:
	default:
		p.state = Done
		return true
	}

	if !p.hasContentLength {
		return false
	}
	n, ok := parseUint(p.contentLength)
	if !ok {
		return false
	}
	p.req.contentLength = n
	if n > 0 {
		p.state = ExpectBody
	} else {
		p.state = Done
	}
	return true
}

// parseUint parses a base-10 unsigned integer, rejecting signs, blanks and
// overflow.
func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := uint64(c - '0')
		if n > (^uint64(0)-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}
