package mqc

import "github.com/nclabs/mqgo/pkg/wire"

// DeliveredMessage is the application-visible view of an inbound message
// packet. Per-type body decoding (text/bytes/stream/map/object) is left to
// the caller; this type exposes the raw body and the bookkeeping fields
// the session/consumer machinery needs.
type DeliveredMessage struct {
	ConsumerID   uint64
	SysMessageID wire.SysMessageID
	Type         wire.PacketType
	Redelivered  bool
	Properties   wire.Properties
	Body         []byte

	// AckProcessed reports that this message's AutoAck acknowledgement has
	// been sent. It stays false in DupsOkAck, ClientAck and Transacted
	// sessions, whose acknowledgements go through the session's ack ledger.
	AckProcessed bool

	// replyPacket carries the original *wire.Packet when this
	// DeliveredMessage wraps a protocol reply rather than an application
	// message; see protocol.go's ack queue plumbing.
	replyPacket *wire.Packet
}

func messageFromPacket(p *wire.Packet) *DeliveredMessage {
	return &DeliveredMessage{
		ConsumerID:   p.ConsumerID,
		SysMessageID: p.SysMessageID,
		Type:         p.Type,
		Redelivered:  p.Redelivered(),
		Properties:   p.Properties,
		Body:         p.Body,
	}
}
