package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// VarHeader is one entry in a packet's variable-length header list: a typed
// id, paired with its value. Unknown ids within the valid range are skipped
// by the reader rather than rejected, so new header kinds can be added
// without breaking older clients; ids outside the valid range are a
// protocol error.
type VarHeader struct {
	ID    VarHeaderID
	Value string
}

// Packet is the single wire unit exchanged with the broker: a fixed header,
// a terminated list of variable headers, a serialized properties map, and
// an opaque body. Framing uses an explicit size prefix and is big-endian
// throughout.
type Packet struct {
	Type             PacketType
	TransactionID    uint64
	ProducerID       uint64
	Expiration       uint64
	DeliveryTime     uint64
	DeliveryCount    uint32
	Priority         uint8
	Encryption       uint8
	Flags            uint16
	ConsumerID       uint64
	SysMessageID     SysMessageID
	VarHeaders       []VarHeader
	Properties       Properties
	Body             []byte
}

// Flag accessors. The codec never interprets these bits beyond storing
// them; callers use these typed accessors instead of raw bit math.

func (p *Packet) Persistent() bool         { return p.Flags&FlagPersistent != 0 }
func (p *Packet) Redelivered() bool        { return p.Flags&FlagRedelivered != 0 }
func (p *Packet) IsQueue() bool            { return p.Flags&FlagIsQueue != 0 }
func (p *Packet) SelectorsProcessed() bool { return p.Flags&FlagSelectorsProcessed != 0 }
func (p *Packet) SendAcknowledge() bool    { return p.Flags&FlagSendAcknowledge != 0 }
func (p *Packet) IsLast() bool             { return p.Flags&FlagIsLast != 0 }
func (p *Packet) ConsumerFlow() bool       { return p.Flags&FlagConsumerFlow != 0 }
func (p *Packet) FlowPaused() bool         { return p.Flags&FlagFlowPaused != 0 }
func (p *Packet) ConsumerFlowPaused() bool { return p.Flags&FlagConsumerFlowPaused != 0 }

func (p *Packet) setFlag(bit uint16, set bool) {
	if set {
		p.Flags |= bit
	} else {
		p.Flags &^= bit
	}
}

func (p *Packet) SetPersistent(v bool)         { p.setFlag(FlagPersistent, v) }
func (p *Packet) SetRedelivered(v bool)        { p.setFlag(FlagRedelivered, v) }
func (p *Packet) SetIsQueue(v bool)            { p.setFlag(FlagIsQueue, v) }
func (p *Packet) SetSelectorsProcessed(v bool) { p.setFlag(FlagSelectorsProcessed, v) }
func (p *Packet) SetSendAcknowledge(v bool)    { p.setFlag(FlagSendAcknowledge, v) }
func (p *Packet) SetIsLast(v bool)             { p.setFlag(FlagIsLast, v) }
func (p *Packet) SetConsumerFlow(v bool)       { p.setFlag(FlagConsumerFlow, v) }
func (p *Packet) SetFlowPaused(v bool)         { p.setFlag(FlagFlowPaused, v) }
func (p *Packet) SetConsumerFlowPaused(v bool) { p.setFlag(FlagConsumerFlowPaused, v) }

// varHeaderValue returns the first variable header with the given id.
func (p *Packet) varHeaderValue(id VarHeaderID) (string, bool) {
	for _, h := range p.VarHeaders {
		if h.ID == id {
			return h.Value, true
		}
	}
	return "", false
}

func (p *Packet) setVarHeader(id VarHeaderID, value string) {
	for i, h := range p.VarHeaders {
		if h.ID == id {
			p.VarHeaders[i].Value = value
			return
		}
	}
	p.VarHeaders = append(p.VarHeaders, VarHeader{ID: id, Value: value})
}

func (p *Packet) Destination() (string, bool)   { return p.varHeaderValue(VarHeaderDestination) }
func (p *Packet) SetDestination(v string)       { p.setVarHeader(VarHeaderDestination, v) }
func (p *Packet) MessageID() (string, bool)      { return p.varHeaderValue(VarHeaderMessageID) }
func (p *Packet) SetMessageID(v string)          { p.setVarHeader(VarHeaderMessageID, v) }
func (p *Packet) CorrelationID() (string, bool)  { return p.varHeaderValue(VarHeaderCorrelationID) }
func (p *Packet) SetCorrelationID(v string)      { p.setVarHeader(VarHeaderCorrelationID, v) }

// Encode writes the packet in full wire form to sink, honoring
// writeTimeout if sink implements a deadline setter (net.Conn does): a
// write deadline derived from the configured request timeout is set once
// before the packet's writes and cleared after them.
func Encode(sink io.Writer, p *Packet, writeTimeout time.Duration) error {
	type deadlineSetter interface {
		SetWriteDeadline(time.Time) error
	}
	if ds, ok := sink.(deadlineSetter); ok && writeTimeout > 0 {
		if err := ds.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return fmt.Errorf("wire: set write deadline: %w", err)
		}
		defer ds.SetWriteDeadline(time.Time{})
	}

	varHeaderBytes, err := encodeVarHeaders(p.VarHeaders)
	if err != nil {
		return err
	}
	propsBytes, err := p.Properties.Encode()
	if err != nil {
		return fmt.Errorf("wire: encode properties: %w", err)
	}

	packetSize := uint32(HeaderSize + len(varHeaderBytes) + len(propsBytes) + len(p.Body))

	hdr := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	binary.BigEndian.PutUint16(hdr[4:6], Version)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(p.Type))
	binary.BigEndian.PutUint32(hdr[8:12], packetSize)
	binary.BigEndian.PutUint64(hdr[12:20], p.TransactionID)
	binary.BigEndian.PutUint64(hdr[20:28], p.ProducerID)
	binary.BigEndian.PutUint64(hdr[28:36], p.Expiration)
	binary.BigEndian.PutUint64(hdr[36:44], p.DeliveryTime)
	binary.BigEndian.PutUint32(hdr[44:48], p.DeliveryCount)
	binary.BigEndian.PutUint32(hdr[48:52], uint32(HeaderSize+len(varHeaderBytes)))
	binary.BigEndian.PutUint32(hdr[52:56], uint32(len(propsBytes)))
	hdr[56] = p.Priority
	hdr[57] = p.Encryption
	binary.BigEndian.PutUint16(hdr[58:60], p.Flags)
	binary.BigEndian.PutUint64(hdr[60:68], p.ConsumerID)
	p.SysMessageID.encode(hdr[68:100])

	for _, chunk := range [][]byte{hdr, varHeaderBytes, propsBytes, p.Body} {
		if len(chunk) == 0 {
			continue
		}
		if _, err := sink.Write(chunk); err != nil {
			return fmt.Errorf("wire: write packet: %w", err)
		}
	}
	return nil
}

// Decode reads one complete packet from source, validating magic, version
// compatibility, and internal size consistency. Any inconsistency yields
// ErrInvalidPacket rather than a partially-populated Packet.
func Decode(source io.Reader) (*Packet, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(source, hdr); err != nil {
		return nil, fmt.Errorf("wire: read header: %w", err)
	}

	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %x", ErrInvalidPacket, magic)
	}
	version := binary.BigEndian.Uint16(hdr[4:6])
	if version > Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPacket, version)
	}

	p := &Packet{}
	p.Type = PacketType(binary.BigEndian.Uint16(hdr[6:8]))
	packetSize := binary.BigEndian.Uint32(hdr[8:12])
	p.TransactionID = binary.BigEndian.Uint64(hdr[12:20])
	p.ProducerID = binary.BigEndian.Uint64(hdr[20:28])
	p.Expiration = binary.BigEndian.Uint64(hdr[28:36])
	p.DeliveryTime = binary.BigEndian.Uint64(hdr[36:44])
	p.DeliveryCount = binary.BigEndian.Uint32(hdr[44:48])
	propertiesOffset := binary.BigEndian.Uint32(hdr[48:52])
	propertiesSize := binary.BigEndian.Uint32(hdr[52:56])
	p.Priority = hdr[56]
	p.Encryption = hdr[57]
	p.Flags = binary.BigEndian.Uint16(hdr[58:60])
	p.ConsumerID = binary.BigEndian.Uint64(hdr[60:68])
	p.SysMessageID = decodeSysMessageID(hdr[68:100])

	if packetSize < uint32(HeaderSize) || propertiesOffset < uint32(HeaderSize) ||
		propertiesOffset > packetSize || propertiesOffset+propertiesSize > packetSize {
		return nil, fmt.Errorf("%w: inconsistent sizes (packetSize=%d propertiesOffset=%d propertiesSize=%d)",
			ErrInvalidPacket, packetSize, propertiesOffset, propertiesSize)
	}

	varHeaderLen := propertiesOffset - uint32(HeaderSize)
	varHeaderBytes := make([]byte, varHeaderLen)
	if varHeaderLen > 0 {
		if _, err := io.ReadFull(source, varHeaderBytes); err != nil {
			return nil, fmt.Errorf("wire: read variable headers: %w", err)
		}
	}
	varHeaders, err := decodeVarHeaders(varHeaderBytes)
	if err != nil {
		return nil, err
	}
	p.VarHeaders = varHeaders

	propsBytes := make([]byte, propertiesSize)
	if propertiesSize > 0 {
		if _, err := io.ReadFull(source, propsBytes); err != nil {
			return nil, fmt.Errorf("wire: read properties: %w", err)
		}
	}
	props, err := DecodeProperties(propsBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: properties: %v", ErrInvalidPacket, err)
	}
	p.Properties = props

	bodyLen := packetSize - propertiesOffset - propertiesSize
	if bodyLen > 0 {
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(source, body); err != nil {
			return nil, fmt.Errorf("wire: read body: %w", err)
		}
		p.Body = body
	}

	return p, nil
}
