package tlsconn

import (
	"bytes"
	"net"
	"time"
)

// pipe is the net.Conn crypto/tls sees. Reads drain the inbound cipher
// queue and park the engine when it is empty; writes append to the outbound
// queue. Both queues are touched by at most one goroutine at a time because
// the engine and its driver hand control back and forth over channels.
type pipe struct {
	s   *Session
	in  bytes.Buffer
	out bytes.Buffer
}

func (p *pipe) Read(b []byte) (int, error) {
	for p.in.Len() == 0 {
		if err := p.s.park(); err != nil {
			return 0, err
		}
	}
	return p.in.Read(b)
}

func (p *pipe) Write(b []byte) (int, error) {
	select {
	case <-p.s.done:
		return 0, net.ErrClosed
	default:
	}
	return p.out.Write(b)
}

func (p *pipe) Close() error                     { return nil }
func (p *pipe) LocalAddr() net.Addr              { return pipeAddr{} }
func (p *pipe) RemoteAddr() net.Addr             { return pipeAddr{} }
func (p *pipe) SetDeadline(time.Time) error      { return nil }
func (p *pipe) SetReadDeadline(time.Time) error  { return nil }
func (p *pipe) SetWriteDeadline(time.Time) error { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "memory" }
func (pipeAddr) String() string  { return "tls-session" }
