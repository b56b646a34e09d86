package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidPacket is returned (wrapped) whenever a packet fails structural
// validation: bad magic, an unsupported version, inconsistent size fields,
// a malformed variable header, or an out-of-range variable header id.
var ErrInvalidPacket = errors.New("wire: invalid packet")

// Variable headers are encoded as a run of entries, each 4-byte aligned:
// id(2) length(2) utf8-bytes(length) padding(0-3 zero bytes to the next
// 4-byte boundary). The list ends at the first entry whose id is
// VarHeaderTerminator (0) or when the supplied byte range is exhausted.
func encodeVarHeaders(headers []VarHeader) ([]byte, error) {
	var out []byte
	for _, h := range headers {
		if h.ID < MinValidVarHeaderID || h.ID > MaxValidVarHeaderID {
			return nil, fmt.Errorf("%w: variable header id %d out of range", ErrInvalidPacket, h.ID)
		}
		entry := make([]byte, 4+len(h.Value))
		binary.BigEndian.PutUint16(entry[0:2], uint16(h.ID))
		binary.BigEndian.PutUint16(entry[2:4], uint16(len(h.Value)))
		copy(entry[4:], h.Value)
		if pad := (4 - len(entry)%4) % 4; pad > 0 {
			entry = append(entry, make([]byte, pad)...)
		}
		out = append(out, entry...)
	}
	term := make([]byte, 4)
	out = append(out, term...)
	return out, nil
}

func decodeVarHeaders(data []byte) ([]VarHeader, error) {
	var headers []VarHeader
	off := 0
	for off < len(data) {
		if off+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated variable header entry", ErrInvalidPacket)
		}
		id := VarHeaderID(binary.BigEndian.Uint16(data[off : off+2]))
		length := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		off += 4
		if id == VarHeaderTerminator {
			return headers, nil
		}
		if off+length > len(data) {
			return nil, fmt.Errorf("%w: variable header value overruns packet", ErrInvalidPacket)
		}
		value := string(data[off : off+length])
		off += length
		if pad := (4 - (4+length)%4) % 4; pad > 0 {
			off += pad
		}
		if id > MaxValidVarHeaderID {
			return nil, fmt.Errorf("%w: variable header id %d out of range", ErrInvalidPacket, id)
		}
		headers = append(headers, VarHeader{ID: id, Value: value})
	}
	return headers, nil
}
