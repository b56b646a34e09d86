package mqc

import (
	"github.com/nclabs/mqgo/pkg/auth"
	"github.com/nclabs/mqgo/pkg/mqerr"
	"github.com/nclabs/mqgo/pkg/wire"
)

// hello performs the HELLO/HELLO_REPLY/AUTHENTICATE_REQUEST/.../
// AUTHENTICATE_REPLY handshake. On success it records the broker-assigned
// connection id and leaves e.mech set for any later reauthentication.
func (e *Engine) hello(user, password string, authType string) (connectionID string, err error) {
	hello := &wire.Packet{Type: wire.TypeHello, Properties: wire.Properties{
		wire.PropProductVersion: GetMetaData().Version,
		wire.PropUserAgent:      productName,
	}}

	replies, err := e.writeAckedN(hello, 2)
	if err != nil {
		return "", err
	}
	helloReply, authRequest := replies[0], replies[1]
	if helloReply.Type != wire.TypeHelloReply {
		return "", mqerr.New(mqerr.UnexpectedAcknowledgement)
	}
	if err := checkStatus(helloReply); err != nil {
		return "", err
	}
	connID, _ := helloReply.Properties.GetString(wire.PropConnectionID)
	e.connectionID = connID

	if authRequest.Type != wire.TypeAuthenticateRequest {
		return "", mqerr.New(mqerr.InvalidAuthenticateRequest)
	}

	wireAuthType, _ := authRequest.Properties.GetString(wire.PropAuthType)
	if wireAuthType == "" {
		wireAuthType = authType
	}
	mech, err := auth.New(wireAuthType, user, password)
	if err != nil {
		return "", err
	}
	e.mech = mech

	sess, err := mech.Authenticate()
	if err != nil {
		return "", err
	}

	current := authRequest
	for {
		replyBody, err := sess.Challenge(current.Body)
		if err != nil {
			return "", err
		}
		reply := &wire.Packet{Type: wire.TypeAuthenticate, Body: replyBody}
		next, err := e.writeAcked(reply)
		if err != nil {
			return "", err
		}
		switch next.Type {
		case wire.TypeAuthenticateRequest:
			current = next
			continue
		case wire.TypeAuthenticateReply:
			if err := checkStatus(next); err != nil {
				return "", err
			}
			return connID, nil
		default:
			return "", mqerr.New(mqerr.UnexpectedAcknowledgement)
		}
	}
}

// goodBye sends GOODBYE, optionally waiting for GOODBYE_REPLY.
func (e *Engine) goodBye(expectReply bool) error {
	pkt := &wire.Packet{Type: wire.TypeGoodbye}
	if !expectReply {
		return e.writeUnacked(pkt)
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeGoodbyeReply)
	return err
}

// ping sends a one-shot unacked PING.
func (e *Engine) ping() error {
	return e.writeUnacked(&wire.Packet{Type: wire.TypePing})
}

func (e *Engine) setClientID(id string) error {
	pkt := &wire.Packet{Type: wire.TypeSetClientID, Properties: wire.Properties{wire.PropClientID: id}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeSetClientIDReply)
	return err
}

func (e *Engine) createDestination(d Destination) error {
	pkt := &wire.Packet{Type: wire.TypeCreateDestination, Properties: wire.Properties{
		wire.PropDestination: d.Name,
		wire.PropDestType:    d.destType(),
	}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeCreateDestinationReply)
	return err
}

func (e *Engine) deleteDestination(d Destination) error {
	pkt := &wire.Packet{Type: wire.TypeDestroyDestination, Properties: wire.Properties{
		wire.PropDestination: d.Name,
		wire.PropDestType:    d.destType(),
	}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeDestroyDestinationReply)
	return err
}

func (e *Engine) unsubscribeDurable(name string) error {
	pkt := &wire.Packet{Type: wire.TypeUnsubscribeDurable, Properties: wire.Properties{
		wire.PropDurableName: name,
	}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeUnsubscribeDurableReply)
	return err
}

// registerProducer sends ADD_PRODUCER and returns the broker-assigned
// producer id plus the initial flow credit (chunkBytes, chunkSize).
func (e *Engine) registerProducer(sessionID uint64, d Destination) (producerID uint64, chunkBytes, chunkSize int64, err error) {
	pkt := &wire.Packet{Type: wire.TypeAddProducer, Properties: wire.Properties{
		wire.PropSessionID:    int64(sessionID),
		wire.PropDestination:  d.Name,
		wire.PropDestType:     d.destType(),
	}}
	reply, err := e.writeAckedExpecting(pkt, wire.TypeAddProducerReply)
	if err != nil {
		return 0, 0, 0, err
	}
	pid, _ := reply.Properties.GetInt64(wire.PropProducerID)
	bytes, _ := reply.Properties.GetInt64(wire.PropBytes)
	size, _ := reply.Properties.GetInt64(wire.PropSize)
	if bytes == 0 {
		bytes = -1
	}
	if size == 0 {
		size = -1
	}
	return uint64(pid), bytes, size, nil
}

func (e *Engine) unregisterProducer(producerID uint64) error {
	pkt := &wire.Packet{Type: wire.TypeDeleteProducer, ProducerID: producerID}
	_, err := e.writeAckedExpecting(pkt, wire.TypeDeleteProducerReply)
	return err
}

// registerConsumer sends ADD_CONSUMER and blocks until the dispatcher
// goroutine has both received ADD_CONSUMER_REPLY and finished wiring c's
// receive queue into the connection (see handleAddConsumerReply), rather
// than returning as soon as the reply arrives the way every other verb
// does: the wiring has to happen-before any message for the new consumer
// id can be read, or the dispatcher could drop it first.
func (e *Engine) registerConsumer(c *Consumer) error {
	ackID := e.nextAck()
	queue := e.ackQueues.register(ackID)
	defer e.ackQueues.remove(ackID)
	e.pendingConsumers.register(ackID, c)
	defer e.pendingConsumers.remove(ackID)

	props := wire.Properties{
		wire.PropSessionID:   int64(c.session.id),
		wire.PropDestination: c.destination.Name,
		wire.PropDestType:    c.destination.destType(),
	}
	if c.selector != "" {
		props[wire.PropSelector] = c.selector
	}
	if c.durableName != "" {
		props[wire.PropDurableName] = c.durableName
	}
	if c.sharedSubscriptionName != "" {
		props[wire.PropSharedSubscriptionName] = c.sharedSubscriptionName
		props[wire.PropJMSShare] = true
	}
	props[wire.PropNoLocal] = c.noLocal

	pkt := &wire.Packet{Type: wire.TypeAddConsumer, ConsumerID: ackID, Properties: props}
	pkt.SetSendAcknowledge(true)
	if err := e.writeUnacked(pkt); err != nil {
		return err
	}

	msg, ok := queue.DequeueWait(e.ackTimeout)
	if !ok {
		if queue.IsClosed() {
			return mqerr.New(mqerr.BrokerConnectionClosed)
		}
		return mqerr.New(mqerr.Timeout)
	}
	reply, err := packetFromAckReply(msg)
	if err != nil {
		return err
	}
	if reply.Type != wire.TypeAddConsumerReply {
		return mqerr.New(mqerr.UnexpectedAcknowledgement)
	}
	return checkStatus(reply)
}

func (e *Engine) unregisterConsumer(consumerID uint64) error {
	pkt := &wire.Packet{Type: wire.TypeDeleteConsumer, Properties: wire.Properties{
		wire.PropConsumerID: int64(consumerID),
	}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeDeleteConsumerReply)
	return err
}

// writeJmsMessage sends an outbound message packet (type chosen by the
// caller per body kind) unacked, unless ackOnProduce asks for a send
// reply (JMQAckOnProduce configuration).
func (e *Engine) writeJmsMessage(pkt *wire.Packet, ackOnProduce bool) error {
	if !ackOnProduce {
		return e.writeUnacked(pkt)
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeSendReply)
	return err
}

// acknowledge sends one ACKNOWLEDGE frame whose body is the concatenation
// of (consumerId:64, systemMessageId) entries.
func (e *Engine) acknowledge(sessionID uint64, entries []ackEntry, block bool) error {
	pkt := buildAckPacket(wire.TypeAcknowledge, sessionID, entries)
	if !block {
		return e.writeUnacked(pkt)
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeAcknowledgeReply)
	return err
}

func (e *Engine) acknowledgeExpired(entries []ackEntry, block bool) error {
	pkt := buildAckPacket(wire.TypeAcknowledge, 0, entries)
	pkt.Properties[wire.PropAckType] = wire.AckTypeDeadRequest
	if !block {
		return e.writeUnacked(pkt)
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeAcknowledgeReply)
	return err
}

func (e *Engine) redeliver(sessionID uint64, entries []ackEntry, setRedelivered bool, block bool) error {
	pkt := buildAckPacket(wire.TypeRedeliver, sessionID, entries)
	pkt.Properties[wire.PropSetRedelivered] = setRedelivered
	if !block {
		return e.writeUnacked(pkt)
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeRedeliverReply)
	return err
}

// ackEntry is one (consumerId, systemMessageId) pair in an
// acknowledge/redeliver body.
type ackEntry struct {
	ConsumerID   uint64
	SysMessageID wire.SysMessageID
}

func buildAckPacket(t wire.PacketType, sessionID uint64, entries []ackEntry) *wire.Packet {
	body := make([]byte, 0, len(entries)*(8+wire.SysMessageIDSize))
	for _, e := range entries {
		var idBuf [8]byte
		for i := 0; i < 8; i++ {
			idBuf[i] = byte(e.ConsumerID >> (56 - 8*i))
		}
		body = append(body, idBuf[:]...)
		sidBuf := make([]byte, wire.SysMessageIDSize)
		// wire.EncodeSysMessageID writes the id's 32-byte wire layout.
		wire.EncodeSysMessageID(e.SysMessageID, sidBuf)
		body = append(body, sidBuf...)
	}
	return &wire.Packet{
		Type: t,
		Properties: wire.Properties{
			wire.PropSessionID: int64(sessionID),
			wire.PropQuantity:  int32(len(entries)),
		},
		Body: body,
	}
}

func (e *Engine) registerSession(ackMode int32) (sessionID uint64, err error) {
	pkt := &wire.Packet{Type: wire.TypeCreateSession, Properties: wire.Properties{
		wire.PropAckMode: ackMode,
	}}
	reply, err := e.writeAckedExpecting(pkt, wire.TypeCreateSessionReply)
	if err != nil {
		return 0, err
	}
	sid, ok := reply.Properties.GetInt64(wire.PropSessionID)
	if !ok {
		return 0, mqerr.New(mqerr.InvalidPacket)
	}
	return uint64(sid), nil
}

func (e *Engine) unregisterSession(sessionID uint64) error {
	pkt := &wire.Packet{Type: wire.TypeDestroySession, Properties: wire.Properties{
		wire.PropSessionID: int64(sessionID),
	}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeDestroySessionReply)
	return err
}

// start/stop take sessionID==0 to mean "all sessions" (Connection.start/stop).
func (e *Engine) start(sessionID uint64) error {
	pkt := &wire.Packet{Type: wire.TypeStart}
	if sessionID != 0 {
		pkt.Properties = wire.Properties{wire.PropSessionID: int64(sessionID)}
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeStartReply)
	return err
}

func (e *Engine) stop(sessionID uint64) error {
	pkt := &wire.Packet{Type: wire.TypeStop}
	if sessionID != 0 {
		pkt.Properties = wire.Properties{wire.PropSessionID: int64(sessionID)}
	}
	_, err := e.writeAckedExpecting(pkt, wire.TypeStopReply)
	return err
}

func (e *Engine) startTransaction(sessionID uint64, xaFlags int32, xid []byte) (transactionID uint64, err error) {
	props := wire.Properties{wire.PropSessionID: int64(sessionID)}
	if xid != nil {
		props[wire.PropXAFlags] = xaFlags
	}
	pkt := &wire.Packet{Type: wire.TypeStartTransaction, Properties: props, Body: xid}
	reply, err := e.writeAckedExpecting(pkt, wire.TypeStartTransactionReply)
	if err != nil {
		return 0, err
	}
	tid, ok := reply.Properties.GetInt64(wire.PropTransactionID)
	if !ok {
		return 0, mqerr.New(mqerr.InvalidPacket)
	}
	return uint64(tid), nil
}

func (e *Engine) endTransaction(transactionID uint64, xaFlags int32) error {
	pkt := &wire.Packet{Type: wire.TypeEndTransaction, TransactionID: transactionID,
		Properties: wire.Properties{wire.PropXAFlags: xaFlags}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeEndTransactionReply)
	return err
}

func (e *Engine) prepareTransaction(transactionID uint64) error {
	pkt := &wire.Packet{Type: wire.TypePrepareTransaction, TransactionID: transactionID}
	_, err := e.writeAckedExpecting(pkt, wire.TypePrepareTransactionReply)
	return err
}

func (e *Engine) commitTransaction(transactionID uint64, onePhase bool) error {
	pkt := &wire.Packet{Type: wire.TypeCommitTransaction, TransactionID: transactionID,
		Properties: wire.Properties{wire.PropXAOnePhase: onePhase}}
	_, err := e.writeAckedExpecting(pkt, wire.TypeCommitTransactionReply)
	return err
}

func (e *Engine) rollbackTransaction(transactionID uint64) error {
	pkt := &wire.Packet{Type: wire.TypeRollbackTransaction, TransactionID: transactionID}
	_, err := e.writeAckedExpecting(pkt, wire.TypeRollbackTransactionReply)
	return err
}

// recoverTransaction returns the broker's pending XID vector, each entry
// format-id(4) + gtrid-length(1) + bqual-length(1) + data(up to 128) per
// the XA interface.
func (e *Engine) recoverTransaction(xaFlags int32) ([]Xid, error) {
	pkt := &wire.Packet{Type: wire.TypeRecoverTransaction, Properties: wire.Properties{
		wire.PropXAFlags: xaFlags,
	}}
	reply, err := e.writeAckedExpecting(pkt, wire.TypeRecoverTransactionReply)
	if err != nil {
		return nil, err
	}
	return decodeXids(reply.Body)
}

func (e *Engine) resumeFlow(consumerID uint64, chunkCount int32) error {
	pkt := &wire.Packet{Type: wire.TypeResumeFlow}
	props := wire.Properties{}
	if consumerID != 0 {
		props[wire.PropConsumerID] = int64(consumerID)
	}
	props[wire.PropSize] = chunkCount
	pkt.Properties = props
	return e.writeUnacked(pkt)
}
