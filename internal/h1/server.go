package h1

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/albertbausili/hearth/internal/date"
	"github.com/albertbausili/hearth/internal/tlsconn"
	"github.com/panjf2000/gnet/v2"
)

// Config defines the configuration options for the HTTP/1.x server.
type Config struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	Logger         *slog.Logger
	MaxConnections uint32
	// TLS enables TLS termination on every accepted connection when set.
	TLS *tlsconn.Context
}

var serviceUnavailable = []byte("HTTP/1.1 503 Service Unavailable\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Length: 19\r\n" +
	"Connection: close\r\n" +
	"\r\n" +
	"Service Unavailable")

// Server implements gnet.EventHandler for HTTP/1.x.
type Server struct {
	gnet.BuiltinEventEngine
	handler        Handler
	logger         *slog.Logger
	addr           string
	multicore      bool
	numEventLoop   int
	reusePort      bool
	maxConnections uint32
	tls            *tlsconn.Context
	activeConns    atomic.Uint32

	engine   gnet.Engine
	booted   chan struct{}
	runErr   chan error
	started  atomic.Bool
	stopDate func()
}

// NewServer creates a server listening on addr with default settings.
func NewServer(addr string, handler Handler, logger *slog.Logger) *Server {
	return NewServerWithConfig(handler, Config{Addr: addr, Logger: logger})
}

// NewServerWithConfig creates a server with full configuration.
func NewServerWithConfig(handler Handler, config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		handler:        handler,
		logger:         config.Logger.With("component", "h1"),
		addr:           config.Addr,
		multicore:      config.Multicore,
		numEventLoop:   config.NumEventLoop,
		reusePort:      config.ReusePort,
		maxConnections: config.MaxConnections,
		tls:            config.TLS,
		booted:         make(chan struct{}),
		runErr:         make(chan error, 1),
	}
}

// Start binds the listener and runs the event loops in the background. It
// returns once the engine is accepting connections or failed to boot.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("h1: server already started")
	}
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTCPKeepAlive(time.Minute),
		gnet.WithLogger(silentGnetLogger{}),
		gnet.WithReadBufferCap(64 << 10),
		gnet.WithWriteBufferCap(64 << 10),
		gnet.WithLoadBalancing(gnet.RoundRobin),
	}
	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}

	s.stopDate = date.StartTicker()
	s.logger.Info("starting server", "addr", s.addr, "tls", s.tls != nil, "multicore", s.multicore)

	go func() {
		s.runErr <- gnet.Run(s, "tcp://"+s.addr, options...)
	}()

	select {
	case <-s.booted:
		return nil
	case err := <-s.runErr:
		s.stopDate()
		if err == nil {
			err = errors.New("engine exited before boot")
		}
		return fmt.Errorf("h1: listen on %s: %w", s.addr, err)
	}
}

// Wait blocks until the event loops exit and returns the engine's error.
func (s *Server) Wait() error {
	return <-s.runErr
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.booted:
	default:
		return nil
	}
	s.logger.Info("initiating graceful shutdown")

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.engine.Stop(stopCtx); err != nil {
		s.logger.Error("error stopping engine", "error", err)
		return err
	}
	if s.stopDate != nil {
		s.stopDate()
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() uint32 { return s.activeConns.Load() }

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.logger.Info("server is listening", "addr", s.addr)
	close(s.booted)
	return gnet.None
}

// silentGnetLogger discards all gnet output
type silentGnetLogger struct{}

func (silentGnetLogger) Debugf(_ string, _ ...any) {}
func (silentGnetLogger) Infof(_ string, _ ...any)  {}
func (silentGnetLogger) Warnf(_ string, _ ...any)  {}
func (silentGnetLogger) Errorf(_ string, _ ...any) {}
func (silentGnetLogger) Fatalf(_ string, _ ...any) {}

// OnOpen is called when a new connection is opened.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.maxConnections > 0 {
		if current := s.activeConns.Load(); current >= s.maxConnections {
			rejectedConnections.Inc()
			s.logger.Warn("connection rejected: too many connections",
				"remote", c.RemoteAddr().String(), "active", current, "max", s.maxConnections)
			_ = c.AsyncWrite(serviceUnavailable, func(c gnet.Conn, _ error) error {
				return c.Close()
			})
			return nil, gnet.None
		}
	}

	s.activeConns.Add(1)
	activeConnections.Inc()

	conn := NewConnection(c, s.handler, s.tls, s.logger)
	c.SetContext(conn)
	conn.Open()
	return nil, gnet.None
}

// OnClose is called when a connection is closed.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		// rejected in OnOpen, never counted
		return gnet.None
	}
	s.activeConns.Add(^uint32(0))
	activeConnections.Dec()
	if err != nil {
		s.logger.Debug("connection closed with error", "remote", c.RemoteAddr().String(), "error", err)
	}
	_ = conn.Close()
	c.SetContext(nil)
	return gnet.None
}

// OnTraffic is called when data is received on a connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*Connection)
	if !ok {
		s.logger.Debug("connection context missing", "remote", c.RemoteAddr().String())
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil {
		s.logger.Debug("error reading data", "error", err)
		return gnet.Close
	}
	if len(buf) == 0 {
		return gnet.None
	}

	if err := conn.HandleData(buf, time.Now()); err != nil {
		if !errors.Is(err, ErrCloseRequested) {
			s.logger.Debug("error handling data", "error", err)
		}
		return gnet.Close
	}
	return gnet.None
}
