package transport

import (
	"net"
	"time"
)

// TCP adapts a net.Conn to Transport.
type TCP struct {
	conn net.Conn
}

// DialTCP connects to a peer's IMC TCP endpoint.
func DialTCP(addr string, timeout time.Duration) (*TCP, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &TCP{conn: conn}, nil
}

// ListenTCP opens a listener for inbound IMC peers; each accepted
// connection should be wrapped with NewTCP and handed to its own bus.
func ListenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// NewTCP wraps an already-accepted connection.
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

func (t *TCP) Read(buf []byte) (int, error) {
	n, err := t.conn.Read(buf)
	if err != nil {
		return n, wrapReadErr(err)
	}
	return n, nil
}

func (t *TCP) Write(buf []byte) (int, error) {
	return t.conn.Write(buf)
}

func (t *TCP) Close() error {
	return t.conn.Close()
}
