package mqc

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// DefaultPortmapperPort is the bootstrap port the transport dials first to
// resolve the broker's actual service port.
const DefaultPortmapperPort = 7676

// ConnectionType selects the transport variant.
type ConnectionType int

const (
	ConnectionTypeTCP ConnectionType = iota
	ConnectionTypeSSL
	ConnectionTypeTLS
)

// Transport is the byte-stream adapter this client depends on: connect,
// timed read/write, a cancelable shutdown, close, and local address
// accessors. A plain TCP and a TLS variant both satisfy it; both are,
// under the hood, this same struct wrapping whatever net.Conn net.Dial or
// tls.Dial handed back.
type Transport interface {
	Read(max int, timeout time.Duration) ([]byte, error)
	Write(b []byte, timeout time.Duration) (int, error)
	Shutdown() error
	Close() error
	LocalIP() net.IP
	LocalPort() int
	IsClosed() bool
	// Conn exposes the underlying net.Conn for the protocol engine, which
	// hands it directly to wire.Encode/wire.Decode for their own
	// deadline-aware framed I/O.
	Conn() net.Conn
}

type tcpTransport struct {
	conn   net.Conn
	closed bool
}

// connectTransport performs the two-phase portmapper handshake: connect to
// the bootstrap port, read one reply of space-separated "service:port"
// entries, take the port of the requested service name, then reconnect to
// that port.
// service is typically "jms".
func connectTransport(host string, bootstrapPort int, service string, connType ConnectionType, tlsConfig *tls.Config, portmapperTimeout time.Duration) (Transport, string, error) {
	if bootstrapPort == 0 {
		bootstrapPort = DefaultPortmapperPort
	}
	bootstrapAddr := net.JoinHostPort(host, fmt.Sprintf("%d", bootstrapPort))

	pmConn, err := net.DialTimeout("tcp", bootstrapAddr, 10*time.Second)
	if err != nil {
		return nil, "", mqerr.Wrap(mqerr.CouldNotConnect, err, bootstrapAddr)
	}
	if portmapperTimeout > 0 {
		pmConn.SetReadDeadline(time.Now().Add(portmapperTimeout))
	}
	fmt.Fprintf(pmConn, "%s\n", service)
	line := make([]byte, 256)
	n, err := pmConn.Read(line)
	pmConn.Close()
	if err != nil {
		return nil, "", mqerr.Wrap(mqerr.CouldNotConnect, err, "portmapper lookup")
	}
	servicePort := parsePortmapperReply(line[:n], service)
	if servicePort == 0 {
		return nil, "", mqerr.Wrap(mqerr.CouldNotConnect, nil, "service "+service+" not found via portmapper")
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", servicePort))
	var conn net.Conn
	switch connType {
	case ConnectionTypeTCP:
		conn, err = net.DialTimeout("tcp", addr, 10*time.Second)
	case ConnectionTypeSSL, ConnectionTypeTLS:
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	}
	if err != nil {
		return nil, "", mqerr.Wrap(mqerr.CouldNotConnect, err, addr)
	}
	tuneKeepalive(conn)
	return &tcpTransport{conn: conn}, addr, nil
}

// parsePortmapperReply parses a "service1:port1 service2:port2" style
// response line and returns the port for name, or 0 if absent.
func parsePortmapperReply(line []byte, name string) int {
	for _, f := range splitFields(string(line)) {
		k, v, ok := splitKV(f, ':')
		if ok && k == name {
			var port int
			fmt.Sscanf(v, "%d", &port)
			return port
		}
	}
	return 0
}

func splitFields(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func splitKV(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func (t *tcpTransport) Read(max int, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(timeout))
		defer t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, max)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (t *tcpTransport) Write(b []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	return t.conn.Write(b)
}

// Shutdown unblocks any goroutine blocked in Read, safely callable from a
// different goroutine.
func (t *tcpTransport) Shutdown() error {
	t.closed = true
	return t.conn.SetDeadline(time.Now())
}

func (t *tcpTransport) Close() error {
	t.closed = true
	return t.conn.Close()
}

func (t *tcpTransport) LocalIP() net.IP {
	if a, ok := t.conn.LocalAddr().(*net.TCPAddr); ok {
		return a.IP
	}
	return nil
}

func (t *tcpTransport) LocalPort() int {
	if a, ok := t.conn.LocalAddr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

func (t *tcpTransport) IsClosed() bool { return t.closed }

func (t *tcpTransport) Conn() net.Conn { return t.conn }
