package mqc

import (
	"net"
	"time"

	"github.com/nclabs/mqgo/pkg/wire"
)

// Hook is a marker interface; concrete hook types implement one or more of
// the interfaces below and are dispatched through type assertion against
// each registered Hook.
type Hook interface{}

// ConnectHook is called after a dial attempt against the broker completes
// (successfully or not).
type ConnectHook interface {
	Hook
	OnConnect(addr string, dialDur time.Duration, conn net.Conn, err error)
}

// WriteHook is called after every packet write attempt. bytesWritten and
// writeWait are always reported as 0; timeToWrite covers the encode and
// write of the packet.
type WriteHook interface {
	Hook
	OnWrite(packetType wire.PacketType, bytesWritten int, writeWait, timeToWrite time.Duration, err error)
}

// ReadHook is called after every packet read successfully; a failed read
// does not call it. bytesRead, readWait and timeToRead are always
// reported as 0, and err is always nil.
type ReadHook interface {
	Hook
	OnRead(packetType wire.PacketType, bytesRead int, readWait, timeToRead time.Duration, err error)
}

// DisconnectHook is called once, when the connection's socket is closed.
type DisconnectHook interface {
	Hook
	OnDisconnect(addr string, conn net.Conn)
}

// ThrottleHook is called each time a producer's send blocks in
// ProducerFlow.CheckFlowControl for lack of broker-granted credit. dur is
// always reported as 0.
type ThrottleHook interface {
	Hook
	OnThrottle(producerID uint64, dur time.Duration)
}

type hooks []Hook

func (hs hooks) each(fn func(Hook)) {
	for _, h := range hs {
		fn(h)
	}
}

func (hs hooks) onConnect(addr string, dialDur time.Duration, conn net.Conn, err error) {
	hs.each(func(h Hook) {
		if h, ok := h.(ConnectHook); ok {
			h.OnConnect(addr, dialDur, conn, err)
		}
	})
}

func (hs hooks) onWrite(pt wire.PacketType, n int, writeWait, timeToWrite time.Duration, err error) {
	hs.each(func(h Hook) {
		if h, ok := h.(WriteHook); ok {
			h.OnWrite(pt, n, writeWait, timeToWrite, err)
		}
	})
}

func (hs hooks) onRead(pt wire.PacketType, n int, readWait, timeToRead time.Duration, err error) {
	hs.each(func(h Hook) {
		if h, ok := h.(ReadHook); ok {
			h.OnRead(pt, n, readWait, timeToRead, err)
		}
	})
}

func (hs hooks) onDisconnect(addr string, conn net.Conn) {
	hs.each(func(h Hook) {
		if h, ok := h.(DisconnectHook); ok {
			h.OnDisconnect(addr, conn)
		}
	})
}

func (hs hooks) onThrottle(producerID uint64, dur time.Duration) {
	hs.each(func(h Hook) {
		if h, ok := h.(ThrottleHook); ok {
			h.OnThrottle(producerID, dur)
		}
	})
}
