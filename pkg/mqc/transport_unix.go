//go:build linux

package mqc

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// tuneKeepalive sets TCP_USER_TIMEOUT so a half-open broker socket (peer
// vanished without a FIN/RST, e.g. power loss or a pulled network cable) is
// detected in tcpUserTimeout rather than waiting out the OS's default TCP
// keepalive interval, which net.TCPConn's portable API has no way to
// shorten. Grounded in spirit on oriys-nova/cmd/agent/mount_linux.go's use
// of a linux-only build tag plus golang.org/x/sys/unix for a syscall the
// standard library doesn't expose; best-effort only, matching that file's
// own non-fatal error handling style.
const tcpUserTimeout = 30 * time.Second

func tuneKeepalive(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(15 * time.Second)

	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, int(tcpUserTimeout/time.Millisecond))
	})
}
