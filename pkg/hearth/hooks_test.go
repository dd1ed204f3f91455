package hearth

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

func TestCORS_Preflight(t *testing.T) {
	s := NewWithDefaults()
	s.Use(CORS(CORSConfig{AllowOrigins: []string{"https://a.example"}, AllowCredentials: true, MaxAge: 600}))
	called := false
	s.Router().OPTIONS("/api", func(_ *Request, _ *Response) { called = true })

	req := NewRequest(MethodOptions, "/api")
	req.SetHeader("Origin", "https://a.example")
	resp := NewResponse()
	s.ServeH1(req, resp)

	if called {
		t.Error("preflight reached the handler")
	}
	if resp.Status() != 204 {
		t.Errorf("status = %d, want 204", resp.Status())
	}
	checks := map[string]string{
		"Access-Control-Allow-Origin":      "https://a.example",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers":     "Content-Type, Authorization",
		"Access-Control-Max-Age":           "600",
	}
	for k, want := range checks {
		if got, _ := resp.Header(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestCORS_PreflightForbiddenOrigin(t *testing.T) {
	s := NewWithDefaults()
	s.Use(CORS(CORSConfig{AllowOrigins: []string{"https://a.example"}}))

	req := NewRequest(MethodOptions, "/api")
	req.SetHeader("Origin", "https://evil.example")
	resp := NewResponse()
	s.ServeH1(req, resp)

	if resp.Status() != 403 {
		t.Errorf("status = %d, want 403", resp.Status())
	}
	if _, ok := resp.Header("Access-Control-Allow-Origin"); ok {
		t.Error("forbidden preflight carries CORS headers")
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	s := NewWithDefaults()
	s.Use(CORS(DefaultCORSConfig()))
	s.Router().GET("/data", serveString("{}"))

	resp := serve(s, MethodGet, "/data")

	if got, _ := resp.Header("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if _, ok := resp.Header("Access-Control-Allow-Credentials"); ok {
		t.Error("credentials header set without AllowCredentials")
	}
}

func TestCORS_KeepsHandlerOrigin(t *testing.T) {
	s := NewWithDefaults()
	s.Use(CORS(DefaultCORSConfig()))
	s.Router().GET("/data", func(_ *Request, resp *Response) {
		resp.SetHeader("Access-Control-Allow-Origin", "https://b.example")
	})

	resp := serve(s, MethodGet, "/data")
	if got, _ := resp.Header("Access-Control-Allow-Origin"); got != "https://b.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRequestID(t *testing.T) {
	s := NewWithDefaults()
	s.Use(RequestID())
	var seen string
	s.Router().GET("/", func(req *Request, _ *Response) { seen = RequestIDFrom(req) })

	resp := serve(s, MethodGet, "/")
	id, _ := resp.Header("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Request-ID %q is not a UUID: %v", id, err)
	}
	if seen != id {
		t.Errorf("handler saw %q, response carries %q", seen, id)
	}

	req := NewRequest(MethodGet, "/")
	req.SetHeader("X-Request-ID", "upstream-1")
	resp = NewResponse()
	s.ServeH1(req, resp)
	if got, _ := resp.Header("X-Request-ID"); got != "upstream-1" {
		t.Errorf("incoming id not reused: %q", got)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := NewWithDefaults()
	s.Use(AccessLog(AccessLogConfig{Logger: logger, SkipPaths: []string{"/health"}}))
	s.Router().GET("/health", serveString("ok"))
	s.Router().POST("/orders", func(_ *Request, resp *Response) { resp.SetStatus(201) })

	serve(s, MethodGet, "/health")
	serve(s, MethodPost, "/orders")

	out := buf.String()
	if strings.Contains(out, "/health") {
		t.Error("skipped path was logged")
	}
	for _, want := range []string{"method=POST", "path=/orders", "status=201", "component=access"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func decode(t *testing.T, encoding string, body []byte) string {
	t.Helper()
	var r io.Reader
	switch encoding {
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			t.Fatalf("gzip.NewReader: %v", err)
		}
		r = gz
	default:
		t.Fatalf("unexpected encoding %q", encoding)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decode %s: %v", encoding, err)
	}
	return string(out)
}

func TestCompress(t *testing.T) {
	payload := strings.Repeat("hearth compresses repetitive text. ", 100)

	tests := []struct {
		name     string
		accept   string
		encoding string
	}{
		{"brotli preferred", "gzip, deflate, br", "br"},
		{"gzip", "gzip", "gzip"},
		{"identity", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewWithDefaults()
			s.Use(Compress(DefaultCompressConfig()))
			s.Router().GET("/big", func(_ *Request, resp *Response) {
				resp.SetHeader("Content-Type", "text/plain")
				resp.SetBodyString(payload)
			})

			req := NewRequest(MethodGet, "/big")
			if tt.accept != "" {
				req.SetHeader("Accept-Encoding", tt.accept)
			}
			resp := NewResponse()
			s.ServeH1(req, resp)

			got, ok := resp.Header("Content-Encoding")
			if tt.encoding == "" {
				if ok {
					t.Errorf("Content-Encoding = %q, want none", got)
				}
				return
			}
			if got != tt.encoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.encoding)
			}
			if v, _ := resp.Header("Vary"); v != "Accept-Encoding" {
				t.Errorf("Vary = %q", v)
			}
			if decode(t, tt.encoding, resp.Body()) != payload {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestCompress_Skips(t *testing.T) {
	s := NewWithDefaults()
	s.Use(Compress(DefaultCompressConfig()))
	s.Router().GET("/small", serveString("tiny"))
	s.Router().GET("/image", func(_ *Request, resp *Response) {
		resp.SetHeader("Content-Type", "image/png")
		resp.SetBodyString(strings.Repeat("x", 4096))
	})

	for _, path := range []string{"/small", "/image"} {
		req := NewRequest(MethodGet, path)
		req.SetHeader("Accept-Encoding", "gzip")
		resp := NewResponse()
		s.ServeH1(req, resp)
		if _, ok := resp.Header("Content-Encoding"); ok {
			t.Errorf("%s was compressed", path)
		}
	}
}
