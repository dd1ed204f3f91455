package h1

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = freeAddr(t)
	srv := NewServerWithConfig(echoPath(), cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func TestServer_ServesRequests(t *testing.T) {
	srv := startServer(t, Config{})

	conn, err := net.DialTimeout("tcp", srv.addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	for _, path := range []string{"/one", "/two"} {
		if _, err := io.WriteString(conn, "GET "+path+" HTTP/1.1\r\nHost: x\r\n\r\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
		resp, err := http.ReadResponse(r, nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "GET "+path+" " {
			t.Errorf("body = %q", body)
		}
		if resp.Header.Get("Date") == "" {
			t.Error("missing Date header")
		}
	}
}

func TestServer_BadRequestCloses(t *testing.T) {
	srv := startServer(t, Config{})

	conn, err := net.DialTimeout("tcp", srv.addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, "BREW /pot HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := bufio.NewReader(conn)
	resp, err := http.ReadResponse(r, nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	_, _ = io.ReadAll(resp.Body)
	if _, err := r.ReadByte(); err == nil {
		t.Error("expected the server to close the connection")
	}
}

func TestServer_ConnectionLimit(t *testing.T) {
	srv := startServer(t, Config{MaxConnections: 1})

	first, err := net.DialTimeout("tcp", srv.addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	_ = first.SetDeadline(time.Now().Add(5 * time.Second))
	// A round trip guarantees the first connection has been accepted.
	_, _ = io.WriteString(first, "GET / HTTP/1.1\r\n\r\n")
	if _, err := http.ReadResponse(bufio.NewReader(first), nil); err != nil {
		t.Fatalf("first ReadResponse: %v", err)
	}

	second, err := net.DialTimeout("tcp", srv.addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	_ = second.SetDeadline(time.Now().Add(5 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(second), nil)
	if err != nil {
		t.Fatalf("second ReadResponse: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if srv.ActiveConnections() != 1 {
		t.Errorf("ActiveConnections() = %d, want 1", srv.ActiveConnections())
	}
}

func TestServer_StartTwice(t *testing.T) {
	srv := startServer(t, Config{})
	if err := srv.Start(); err == nil {
		t.Error("expected second Start() to fail")
	}
}
