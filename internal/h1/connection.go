package h1

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/albertbausili/hearth/internal/tlsconn"
	"github.com/valyala/bytebufferpool"
)

// Handler serves a fully parsed request. It fills resp and must not retain
// either value after returning.
type Handler interface {
	ServeH1(req *Request, resp *Response)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request, resp *Response)

// ServeH1 calls f(req, resp).
func (f HandlerFunc) ServeH1(req *Request, resp *Response) { f(req, resp) }

// ErrCloseRequested is returned by HandleData once the connection should be
// closed, after any final response has been written.
var ErrCloseRequested = errors.New("h1: connection close requested")

// Connection is the per-connection dispatcher. It owns the optional TLS
// session and the request parser, feeds complete requests to the handler
// one at a time and writes each response before parsing the next request.
// All methods must be called from the connection's event loop.
type Connection struct {
	w       io.Writer
	handler Handler
	logger  *slog.Logger
	parser  *Parser
	tls     *tlsconn.Session
	in      bytes.Buffer

	receivedAt time.Time
	closing    bool
}

// NewConnection creates a dispatcher writing to w. When tlsCtx is non-nil
// all traffic is terminated through a TLS session first.
func NewConnection(w io.Writer, handler Handler, tlsCtx *tlsconn.Context, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		w:       w,
		handler: handler,
		logger:  logger,
		parser:  NewParser(),
	}
	if tlsCtx != nil {
		c.tls = tlsconn.NewSession(tlsCtx, w, logger)
		c.tls.OnPlaintext(c.process)
		c.tls.OnShutdown(func() { c.closing = true })
	}
	return c
}

// Open starts the TLS handshake when TLS is enabled.
func (c *Connection) Open() {
	if c.tls != nil {
		c.tls.StartHandshake()
	}
}

// TLS returns the connection's TLS session, nil for plaintext connections.
func (c *Connection) TLS() *tlsconn.Session { return c.tls }

// HandleData processes bytes read from the transport. It returns
// ErrCloseRequested when the transport should be closed.
func (c *Connection) HandleData(data []byte, receivedAt time.Time) error {
	if c.closing {
		return ErrCloseRequested
	}
	c.receivedAt = receivedAt
	if c.tls != nil {
		c.tls.OnReadable(data)
	} else {
		c.in.Write(data)
		c.process(&c.in)
	}
	if c.closing {
		if c.tls != nil {
			_ = c.tls.Close()
		}
		return ErrCloseRequested
	}
	return nil
}

// process parses and serves every complete request buffered in buf.
func (c *Connection) process(buf *bytes.Buffer) {
	for !c.closing {
		if !c.parser.Parse(buf, c.receivedAt) {
			parseErrors.Inc()
			c.logger.Debug("malformed request", "state", c.parser.State().String())
			resp := NewResponse(Version11, true)
			resp.SetStatus(400)
			resp.SetBodyString(statusText(400))
			c.write(resp)
			c.closing = true
			return
		}
		if !c.parser.GotAll() {
			return
		}

		req := c.parser.Request()
		c.parser.Reset()

		resp := NewResponse(req.Version(), req.WantsClose())
		c.handler.ServeH1(req, resp)
		c.write(resp)
		if resp.Close() {
			c.closing = true
		}
	}
}

func (c *Connection) write(resp *Response) {
	if c.tls == nil {
		if _, err := resp.WriteTo(c.w); err != nil {
			c.logger.Debug("response write failed", "error", err)
			c.closing = true
		}
		return
	}
	bb := bytebufferpool.Get()
	bb.B = resp.AppendTo(bb.B)
	if err := c.tls.Send(bb.B); err != nil {
		c.logger.Debug("response dropped", "error", err)
		c.closing = true
	}
	bytebufferpool.Put(bb)
}

// Close discards the parser and releases the TLS session.
func (c *Connection) Close() error {
	c.closing = true
	if c.tls != nil {
		return c.tls.Close()
	}
	return nil
}
