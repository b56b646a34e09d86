package wire

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// SysMessageID is the broker-unique opaque identity of a message, used for
// acknowledgement, redelivery, and dead-letter routing. It is not the
// application-visible message id.
//
// Wire layout: sequence(4) + ip(16, IPv6 or IPv4-mapped) + port(4) +
// timestamp(8), 32 bytes total.
type SysMessageID struct {
	Sequence  uint32
	IP        [16]byte
	Port      uint32
	Timestamp uint64
}

const SysMessageIDSize = 4 + 16 + 4 + 8

func (id SysMessageID) encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], id.Sequence)
	copy(dst[4:20], id.IP[:])
	binary.BigEndian.PutUint32(dst[20:24], id.Port)
	binary.BigEndian.PutUint64(dst[24:32], id.Timestamp)
}

// EncodeSysMessageID writes id's wire form into dst, which must be at least
// SysMessageIDSize bytes. Exported for callers outside this package that
// build raw acknowledge/redeliver bodies (see mqc.buildAckPacket).
func EncodeSysMessageID(id SysMessageID, dst []byte) {
	id.encode(dst)
}

func decodeSysMessageID(src []byte) SysMessageID {
	var id SysMessageID
	id.Sequence = binary.BigEndian.Uint32(src[0:4])
	copy(id.IP[:], src[4:20])
	id.Port = binary.BigEndian.Uint32(src[20:24])
	id.Timestamp = binary.BigEndian.Uint64(src[24:32])
	return id
}

func (id SysMessageID) String() string {
	return fmt.Sprintf("%d:%x:%d:%d", id.Sequence, id.IP, id.Port, id.Timestamp)
}

// seqMu guards the single process-wide sequence number counter, shared
// across all connections in the process.
var seqMu sync.Mutex
var sequenceNumber uint32 = MinSequenceNumber

// NextSequenceNumber returns the next packet sequence number. These are
// shared across all connections in the process and wrap from
// MaxSequenceNumber back to MinSequenceNumber.
func NextSequenceNumber() uint32 {
	seqMu.Lock()
	defer seqMu.Unlock()
	n := sequenceNumber
	if sequenceNumber == MaxSequenceNumber {
		sequenceNumber = MinSequenceNumber
	} else {
		sequenceNumber++
	}
	return n
}
