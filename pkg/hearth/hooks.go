package hearth

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// CORSConfig holds CORS hook configuration.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins"`
	AllowMethods     []string `yaml:"allow_methods"`
	AllowHeaders     []string `yaml:"allow_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// DefaultCORSConfig returns sensible CORS defaults.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       3600,
	}
}

type corsHook struct {
	config  CORSConfig
	methods string
	headers string
	maxAge  string
}

// CORS returns a hook that answers preflight requests and adds CORS headers
// to every other response. A preflight from an origin outside the allowed
// list is refused with 403.
func CORS(config CORSConfig) Hook {
	def := DefaultCORSConfig()
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = def.AllowOrigins
	}
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = def.AllowMethods
	}
	if len(config.AllowHeaders) == 0 {
		config.AllowHeaders = def.AllowHeaders
	}
	return &corsHook{
		config:  config,
		methods: strings.Join(config.AllowMethods, ", "),
		headers: strings.Join(config.AllowHeaders, ", "),
		maxAge:  strconv.Itoa(config.MaxAge),
	}
}

func (h *corsHook) originAllowed(origin string) bool {
	return slices.Contains(h.config.AllowOrigins, "*") || slices.Contains(h.config.AllowOrigins, origin)
}

func (h *corsHook) Before(req *Request, resp *Response) (Action, error) {
	if req.Method() != MethodOptions {
		return Continue, nil
	}
	origin, _ := req.LookupHeader("Origin")
	if !h.originAllowed(origin) {
		resp.SetStatus(403)
		resp.SetBodyString("Forbidden")
		return Respond, nil
	}
	allow := origin
	if slices.Contains(h.config.AllowOrigins, "*") {
		allow = "*"
	}
	resp.SetStatus(204)
	h.setHeaders(resp, allow)
	return Respond, nil
}

func (h *corsHook) After(req *Request, resp *Response) error {
	// Preflights were answered in Before.
	if req.Method() == MethodOptions {
		return nil
	}
	if _, ok := resp.Header("Access-Control-Allow-Origin"); ok {
		return nil
	}
	allow := h.config.AllowOrigins[0]
	if slices.Contains(h.config.AllowOrigins, "*") {
		allow = "*"
	}
	h.setHeaders(resp, allow)
	return nil
}

func (h *corsHook) setHeaders(resp *Response, origin string) {
	resp.SetHeader("Access-Control-Allow-Origin", origin)
	if h.config.AllowCredentials {
		resp.SetHeader("Access-Control-Allow-Credentials", "true")
	}
	resp.SetHeader("Access-Control-Allow-Methods", h.methods)
	resp.SetHeader("Access-Control-Allow-Headers", h.headers)
	if h.config.MaxAge > 0 {
		resp.SetHeader("Access-Control-Max-Age", h.maxAge)
	}
}

type requestIDKey struct{}

// RequestID returns a hook that tags each request with an id. An incoming
// X-Request-ID header is reused; otherwise a random UUID is generated. The
// id is echoed in the response and available through RequestIDFrom.
func RequestID() Hook {
	return HookFuncs{
		BeforeFunc: func(req *Request, resp *Response) (Action, error) {
			id, ok := req.LookupHeader("X-Request-ID")
			if !ok || id == "" {
				id = uuid.NewString()
			}
			req.SetContext(context.WithValue(req.Context(), requestIDKey{}, id))
			resp.SetHeader("X-Request-ID", id)
			return Continue, nil
		},
	}
}

// RequestIDFrom returns the id assigned by the RequestID hook.
func RequestIDFrom(req *Request) string {
	id, _ := req.Context().Value(requestIDKey{}).(string)
	return id
}

// AccessLogConfig defines the configuration options for the AccessLog hook.
type AccessLogConfig struct {
	// Logger receives one record per request (defaults to slog.Default())
	Logger *slog.Logger
	// SkipPaths lists paths to skip logging (e.g., health checks)
	SkipPaths []string
}

// AccessLog returns a hook that logs every request once its response is
// ready. Latency is measured from when the request line was received.
func AccessLog(config AccessLogConfig) Hook {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}
	logger := config.Logger.With("component", "access")

	return HookFuncs{
		AfterFunc: func(req *Request, resp *Response) error {
			if skipMap[req.Path()] {
				return nil
			}
			attrs := []any{
				"method", req.Method().String(),
				"path", req.Path(),
				"version", req.Version(),
				"status", resp.Status(),
				"bytes", len(resp.Body()),
				"duration", time.Since(req.ReceivedAt()),
			}
			if id := RequestIDFrom(req); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			logger.Info("request", attrs...)
			return nil
		},
	}
}

// CompressConfig holds configuration for the Compress hook.
type CompressConfig struct {
	// Level specifies the compression level (1-9 for gzip, 0-11 for brotli)
	Level int
	// MinSize specifies the minimum response size to compress (default: 1024 bytes)
	MinSize int
	// ExcludedTypes lists content type prefixes to skip compression
	ExcludedTypes []string
}

// DefaultCompressConfig returns a CompressConfig with sensible defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:   6,
		MinSize: 1024,
		ExcludedTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
		},
	}
}

// Compress returns a hook that compresses response bodies with brotli or
// gzip, whichever the client accepts, preferring brotli.
func Compress(config CompressConfig) Hook {
	if config.MinSize == 0 {
		config.MinSize = 1024
	}
	if config.Level == 0 {
		config.Level = 6
	}

	return HookFuncs{
		AfterFunc: func(req *Request, resp *Response) error {
			body := resp.Body()
			if len(body) < config.MinSize {
				return nil
			}
			if _, ok := resp.Header("Content-Encoding"); ok {
				return nil
			}
			contentType, _ := resp.Header("Content-Type")
			for _, excluded := range config.ExcludedTypes {
				if strings.HasPrefix(contentType, excluded) {
					return nil
				}
			}

			accept, _ := req.LookupHeader("Accept-Encoding")
			var (
				compressed bytes.Buffer
				encoding   string
			)
			switch {
			case strings.Contains(accept, "br"):
				w := brotli.NewWriterLevel(&compressed, config.Level)
				if _, err := w.Write(body); err != nil {
					return nil
				}
				if err := w.Close(); err != nil {
					return nil
				}
				encoding = "br"
			case strings.Contains(accept, "gzip"):
				w, err := gzip.NewWriterLevel(&compressed, config.Level)
				if err != nil {
					return nil
				}
				if _, err := w.Write(body); err != nil {
					return nil
				}
				if err := w.Close(); err != nil {
					return nil
				}
				encoding = "gzip"
			default:
				return nil
			}

			// Only use compressed version if it's actually smaller
			if compressed.Len() == 0 || compressed.Len() >= len(body) {
				return nil
			}
			resp.SetHeader("Content-Encoding", encoding)
			resp.SetHeader("Vary", "Accept-Encoding")
			resp.SetBody(compressed.Bytes())
			return nil
		},
	}
}
