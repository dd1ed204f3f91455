package h1

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/albertbausili/hearth/internal/testutil"
	"github.com/albertbausili/hearth/internal/tlsconn"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func parseErrorsValue() float64 {
	return promtest.ToFloat64(parseErrors)
}

func echoPath() Handler {
	return HandlerFunc(func(req *Request, resp *Response) {
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBodyString(req.Method().String() + " " + req.Path() + " " + string(req.Body()))
	})
}

func readResponses(t *testing.T, raw []byte) []*http.Response {
	t.Helper()
	var out []*http.Response
	r := bufio.NewReader(bytes.NewReader(raw))
	for {
		if _, err := r.Peek(1); errors.Is(err, io.EOF) {
			return out
		}
		resp, err := http.ReadResponse(r, nil)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(body))
		out = append(out, resp)
	}
}

func bodyOf(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func TestConnection_Pipelined(t *testing.T) {
	var out bytes.Buffer
	c := NewConnection(&out, echoPath(), nil, nil)
	c.Open()

	data := "GET /a HTTP/1.1\r\n\r\nPOST /b HTTP/1.1\r\nContent-Length: 2\r\n\r\nhi"
	if err := c.HandleData([]byte(data), time.Now()); err != nil {
		t.Fatalf("HandleData() error = %v", err)
	}

	resps := readResponses(t, out.Bytes())
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	if got := bodyOf(resps[0]); got != "GET /a " {
		t.Errorf("first body = %q", got)
	}
	if got := bodyOf(resps[1]); got != "POST /b hi" {
		t.Errorf("second body = %q", got)
	}
	if resps[0].Close {
		t.Error("HTTP/1.1 response should keep the connection alive")
	}
}

func TestConnection_Fragmented(t *testing.T) {
	var out bytes.Buffer
	c := NewConnection(&out, echoPath(), nil, nil)

	for _, chunk := range []string{"PUT /x HT", "TP/1.1\r\nContent-", "Length: 3\r\n\r", "\nab", "c"} {
		if err := c.HandleData([]byte(chunk), time.Now()); err != nil {
			t.Fatalf("HandleData(%q) error = %v", chunk, err)
		}
	}
	resps := readResponses(t, out.Bytes())
	if len(resps) != 1 || bodyOf(resps[0]) != "PUT /x abc" {
		t.Fatalf("unexpected responses: %q", out.String())
	}
}

func TestConnection_BadRequest(t *testing.T) {
	var out bytes.Buffer
	called := false
	c := NewConnection(&out, HandlerFunc(func(*Request, *Response) { called = true }), nil, nil)

	before := parseErrorsValue()
	err := c.HandleData([]byte("POST /x HTTP/1.1\r\n\r\n"), time.Now())
	if !errors.Is(err, ErrCloseRequested) {
		t.Fatalf("HandleData() error = %v, want ErrCloseRequested", err)
	}
	if called {
		t.Error("handler must not run for a malformed request")
	}
	resps := readResponses(t, out.Bytes())
	if len(resps) != 1 || resps[0].StatusCode != 400 || !resps[0].Close {
		t.Fatalf("unexpected response: %q", out.String())
	}
	if parseErrorsValue() != before+1 {
		t.Error("parse error counter not incremented")
	}

	// Input after the close decision is ignored.
	if err := c.HandleData([]byte("GET / HTTP/1.1\r\n\r\n"), time.Now()); !errors.Is(err, ErrCloseRequested) {
		t.Errorf("HandleData() after close = %v", err)
	}
}

func TestConnection_CloseSemantics(t *testing.T) {
	tests := []struct {
		name      string
		request   string
		wantClose bool
	}{
		{"http/1.1 default", "GET / HTTP/1.1\r\n\r\n", false},
		{"http/1.1 close", "GET / HTTP/1.1\r\nConnection: close\r\n\r\n", true},
		{"http/1.0 default", "GET / HTTP/1.0\r\n\r\n", true},
		{"http/1.0 keep-alive", "GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConnection(&out, echoPath(), nil, nil)
			err := c.HandleData([]byte(tt.request+tt.request), time.Now())
			if gotClose := errors.Is(err, ErrCloseRequested); gotClose != tt.wantClose {
				t.Errorf("close = %v, want %v", gotClose, tt.wantClose)
			}
			want := 2
			if tt.wantClose {
				want = 1
			}
			if n := strings.Count(out.String(), "Content-Length:"); n != want {
				t.Errorf("wrote %d responses, want %d", n, want)
			}
		})
	}
}

func TestConnection_HandlerForcesClose(t *testing.T) {
	var out bytes.Buffer
	c := NewConnection(&out, HandlerFunc(func(_ *Request, resp *Response) {
		resp.SetClose(true)
	}), nil, nil)
	if err := c.HandleData([]byte("GET / HTTP/1.1\r\n\r\n"), time.Now()); !errors.Is(err, ErrCloseRequested) {
		t.Errorf("HandleData() = %v, want ErrCloseRequested", err)
	}
}

func TestConnection_TLS(t *testing.T) {
	certFile, keyFile := testutil.WriteCertFiles(t, t.TempDir())
	cfg := tlsconn.DefaultConfig()
	cfg.Enabled = true
	cfg.CertFile = certFile
	cfg.KeyFile = keyFile
	tlsCtx, err := tlsconn.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	served := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			served <- err
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		c := NewConnection(conn, echoPath(), tlsCtx, nil)
		c.Open()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				if herr := c.HandleData(buf[:n], time.Now()); herr != nil {
					_ = c.Close()
					served <- nil
					return
				}
			}
			if err != nil {
				_ = c.Close()
				served <- err
				return
			}
		}
	}()

	client, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(client, "GET /secure HTTP/1.1\r\nConnection: close\r\n\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "GET /secure " {
		t.Errorf("response = %d %q", resp.StatusCode, body)
	}
	if err := <-served; err != nil {
		t.Errorf("server: %v", err)
	}
}
