package hearth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/albertbausili/hearth/internal/h1"
	"github.com/albertbausili/hearth/internal/tlsconn"
)

// Server represents a server instance.
type Server struct {
	config    Config
	router    *Router
	hooks     []Hook
	notFound  Handler
	logger    *slog.Logger
	tls       *tlsconn.Context
	watcher   *tlsconn.CertWatcher
	transport *h1.Server
}

// New creates a new Server with the provided configuration. The
// configuration is validated when the server starts.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   config,
		router:   NewRouter(),
		logger:   logger,
		notFound: HandlerFunc(defaultNotFound),
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Router returns the server's router for route registration.
func (s *Server) Router() *Router { return s.router }

// Use appends hooks. Before steps run in the order given here.
func (s *Server) Use(hooks ...Hook) {
	if s.router.frozen.Load() {
		panic(ErrRouterFrozen)
	}
	s.hooks = append(s.hooks, hooks...)
}

// NotFound replaces the handler used when no route matches.
func (s *Server) NotFound(handler any) {
	s.notFound = wrapHandler(handler)
}

// Start validates the configuration, sets up TLS when enabled and begins
// accepting connections. Configuration errors are returned before
// anything is bound.
func (s *Server) Start() error {
	if s.transport != nil {
		return errors.New("hearth: server already started")
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	s.logger = s.config.Logger

	if s.config.TLS.Enabled {
		ctx, err := tlsconn.NewContext(s.config.TLS)
		if err != nil {
			return fmt.Errorf("tls setup: %w", err)
		}
		s.tls = ctx
		if s.config.TLS.WatchCertificates {
			w, err := tlsconn.WatchCertificates(ctx, s.logger)
			if err != nil {
				return fmt.Errorf("tls setup: %w", err)
			}
			s.watcher = w
		}
	}

	s.router.Freeze()
	s.transport = h1.NewServerWithConfig(s, h1.Config{
		Addr:           s.config.Addr,
		Multicore:      s.config.Multicore,
		NumEventLoop:   s.config.NumEventLoop,
		ReusePort:      s.config.ReusePort,
		Logger:         s.logger,
		MaxConnections: s.config.MaxConnections,
		TLS:            s.tls,
	})
	if err := s.transport.Start(); err != nil {
		s.closeWatcher()
		return err
	}
	return nil
}

// ListenAndServe starts the server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.transport.Wait()
}

// Wait blocks until a started server stops and returns the engine's error.
func (s *Server) Wait() error {
	if s.transport == nil {
		return errors.New("hearth: server not started")
	}
	return s.transport.Wait()
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() uint32 {
	if s.transport == nil {
		return 0
	}
	return s.transport.ActiveConnections()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.closeWatcher()
	if s.transport != nil {
		return s.transport.Stop(ctx)
	}
	return nil
}

func (s *Server) closeWatcher() {
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
}

// ServeH1 runs the hook chain and the routed handler for one request.
// Errors and panics become 500 responses before the After steps run, so
// hooks observe the final status. A panicking hook counts as a failed step;
// the After steps of hooks whose Before already ran still run.
func (s *Server) ServeH1(req *Request, resp *Response) {
	ran := 0
	responded := false
	var err error
	for _, hook := range s.hooks {
		action, herr := callBefore(hook, req, resp)
		if herr != nil {
			err = herr
			break
		}
		ran++
		if action == Respond {
			responded = true
			break
		}
	}

	if err == nil && !responded {
		handler, ok := s.router.Route(req)
		if !ok {
			handler = s.notFound
			resp.SetClose(true)
		}
		err = callHandler(handler, req, resp)
	}
	if err != nil {
		s.fail(req, resp, err)
	}

	for i := ran - 1; i >= 0; i-- {
		if aerr := callAfter(s.hooks[i], req, resp); aerr != nil {
			s.fail(req, resp, aerr)
		}
	}
}

func (s *Server) fail(req *Request, resp *Response, err error) {
	s.logger.Error("request failed",
		"method", req.Method().String(), "path", req.Path(), "error", err)
	resp.SetStatus(500)
	resp.DelHeader("Content-Encoding")
	resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	resp.SetBodyString(err.Error())
}

// callHandler isolates handler panics so After hooks still run.
func callHandler(h Handler, req *Request, resp *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Serve(req, resp)
}

func callBefore(h Hook, req *Request, resp *Response) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			action, err = Continue, fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Before(req, resp)
}

func callAfter(h Hook, req *Request, resp *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.After(req, resp)
}

func defaultNotFound(_ *Request, resp *Response) error {
	resp.SetStatus(404)
	resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	resp.SetBodyString("Not Found")
	return nil
}
