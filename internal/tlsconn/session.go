package tlsconn

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
)

// State is the lifecycle position of a Session.
type State uint8

// Session states. Failed is terminal and reachable from any other state.
const (
	Handshaking State = iota
	Established
	ShuttingDown
	Failed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Established:
		return "established"
	case ShuttingDown:
		return "shutting-down"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotEstablished is returned by Send before the handshake completes or
// after the session has ended.
var ErrNotEstablished = errors.New("tls: session not established")

const readChunk = 16 << 10

// Session terminates TLS for one connection without blocking its caller.
//
// crypto/tls runs on a dedicated goroutine against an in-memory pipe. When
// the engine needs more ciphertext it parks and hands control back; the
// driver resumes it once OnReadable queues more bytes. Only one of the two
// goroutines runs at any moment, so the session behaves like a step
// function invoked from the connection's event loop. All exported methods
// must be called from that single driver goroutine.
//
// The engine goroutine and its stack are released only by Close, so the
// transport must call Close when the connection goes away.
type Session struct {
	w      io.Writer
	logger *slog.Logger
	pipe   *pipe
	conn   *tls.Conn

	state      State
	plain      bytes.Buffer
	onPlain    func(*bytes.Buffer)
	onShutdown func()

	started  bool
	running  bool
	closed   bool
	shutdown bool

	resume chan struct{}
	parked chan struct{}
	done   chan struct{}
	exited chan struct{}

	// written by the engine, read by the driver after each handoff
	handshakeDone bool
	peerClosed    bool
	engineErr     error
}

// NewSession creates a server-side session writing ciphertext to w.
func NewSession(ctx *Context, w io.Writer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		w:      w,
		logger: logger,
		resume: make(chan struct{}),
		parked: make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.pipe = &pipe{s: s}
	s.conn = tls.Server(s.pipe, ctx.TLSConfig())
	return s
}

// OnPlaintext registers the callback receiving decrypted bytes. The buffer
// persists across calls; bytes the callback leaves unread are kept and
// delivered again together with the next plaintext.
func (s *Session) OnPlaintext(fn func(*bytes.Buffer)) { s.onPlain = fn }

// OnShutdown registers the callback asking the owner to close the
// transport. It fires at most once.
func (s *Session) OnShutdown(fn func()) { s.onShutdown = fn }

// State returns the current session state.
func (s *Session) State() State { return s.state }

// ConnectionState exposes the negotiated parameters once established.
func (s *Session) ConnectionState() tls.ConnectionState {
	if s.state != Established {
		return tls.ConnectionState{}
	}
	return s.conn.ConnectionState()
}

// StartHandshake begins the server handshake and runs it until it needs
// input from the peer.
func (s *Session) StartHandshake() {
	if s.started || s.closed {
		return
	}
	s.started = true
	s.running = true
	go s.run()
	s.wait()
	s.afterStep()
}

// OnReadable feeds ciphertext received from the transport.
func (s *Session) OnReadable(data []byte) {
	if s.closed || s.state == Failed || s.state == ShuttingDown {
		return
	}
	s.pipe.in.Write(data)
	if !s.started {
		s.StartHandshake()
		return
	}
	if !s.running {
		return
	}
	s.resume <- struct{}{}
	s.wait()
	s.afterStep()
}

// Send encrypts plaintext and flushes the resulting records to the
// transport. It drops the data when the session is not established.
func (s *Session) Send(plaintext []byte) error {
	if s.state != Established {
		s.logger.Debug("dropping plaintext on non-established session",
			"state", s.state.String(), "bytes", len(plaintext))
		return ErrNotEstablished
	}
	_, err := s.conn.Write(plaintext)
	s.flush()
	if err != nil {
		s.fail(err)
		return err
	}
	return nil
}

// Close sends close_notify when the session is established, flushes it and
// releases the engine goroutine. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.state == Established {
		if err := s.conn.CloseWrite(); err != nil {
			s.logger.Debug("close_notify failed", "error", err)
		}
		s.flush()
		s.state = ShuttingDown
	}
	close(s.done)
	if s.running {
		<-s.exited
		s.running = false
	}
	return nil
}

// run is the engine goroutine.
func (s *Session) run() {
	defer close(s.exited)
	if err := s.conn.Handshake(); err != nil {
		s.engineErr = err
		return
	}
	s.handshakeDone = true

	buf := make([]byte, readChunk)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.plain.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.peerClosed = true
			} else {
				s.engineErr = err
			}
			return
		}
	}
}

// park blocks the engine until the driver queues more input.
func (s *Session) park() error {
	select {
	case s.parked <- struct{}{}:
	case <-s.done:
		return errSessionClosed
	}
	select {
	case <-s.resume:
		return nil
	case <-s.done:
		return errSessionClosed
	}
}

var errSessionClosed = errors.New("tls: session closed")

// wait blocks the driver until the engine parks or exits.
func (s *Session) wait() {
	select {
	case <-s.parked:
	case <-s.exited:
		s.running = false
	}
}

func (s *Session) afterStep() {
	s.flush()

	if s.engineErr != nil {
		s.fail(s.engineErr)
		return
	}
	if s.state == Handshaking && s.handshakeDone {
		s.state = Established
		handshakesTotal.WithLabelValues("ok").Inc()
		cs := s.conn.ConnectionState()
		s.logger.Debug("tls handshake complete",
			"version", tls.VersionName(cs.Version),
			"cipher", tls.CipherSuiteName(cs.CipherSuite),
			"resumed", cs.DidResume)
	}
	if s.plain.Len() > 0 && s.onPlain != nil {
		s.onPlain(&s.plain)
	}
	if s.peerClosed && s.state == Established {
		s.state = ShuttingDown
		s.requestShutdown()
	}
}

func (s *Session) fail(err error) {
	if s.state == Failed {
		return
	}
	if s.state == Handshaking {
		handshakesTotal.WithLabelValues("error").Inc()
	}
	s.state = Failed
	s.logger.Debug("tls session failed", "error", err)
	s.requestShutdown()
}

func (s *Session) requestShutdown() {
	if s.shutdown {
		return
	}
	s.shutdown = true
	if s.onShutdown != nil {
		s.onShutdown()
	}
}

// flush writes queued ciphertext to the transport in production order.
func (s *Session) flush() {
	if s.pipe.out.Len() == 0 {
		return
	}
	if _, err := s.w.Write(s.pipe.out.Bytes()); err != nil {
		s.logger.Debug("transport write failed", "error", err)
	}
	s.pipe.out.Reset()
}
