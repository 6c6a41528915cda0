package authority

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// recordingConn is a net.PacketConn that keeps every write and can refuse
// writes to chosen endpoints.
type recordingConn struct {
	mu     sync.Mutex
	writes []sentPacket
	fail   map[string]bool
	panics bool
}

type sentPacket struct {
	to   string
	data []byte
}

func newRecordingConn() *recordingConn { return &recordingConn{fail: map[string]bool{}} }

func (c *recordingConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panics {
		panic("write on broken socket")
	}
	if c.fail[addr.String()] {
		return 0, errors.New("unreachable")
	}
	c.writes = append(c.writes, sentPacket{to: addr.String(), data: append([]byte(nil), b...)})
	return len(b), nil
}

func (c *recordingConn) sent() []sentPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentPacket(nil), c.writes...)
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	c.writes = nil
	c.mu.Unlock()
}

func (c *recordingConn) ReadFrom([]byte) (int, net.Addr, error) { return 0, nil, net.ErrClosed }
func (c *recordingConn) Close() error                           { return nil }
func (c *recordingConn) LocalAddr() net.Addr                    { return udpAddr(1) }
func (c *recordingConn) SetDeadline(time.Time) error            { return nil }
func (c *recordingConn) SetReadDeadline(time.Time) error        { return nil }
func (c *recordingConn) SetWriteDeadline(time.Time) error       { return nil }

func udpAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestServer(cfg Config) (*Server, *recordingConn) {
	conn := newRecordingConn()
	return NewServer(cfg, conn, quietLogger()), conn
}
