package mqc

import (
	"io"

	"github.com/nclabs/mqgo/pkg/wire"
)

// dispatchLoop is the single reader goroutine for a Connection: it reads
// one frame at a time and routes it by packet type.
func (c *Connection) dispatchLoop() {
	defer close(c.readerDone)
	for {
		pkt, err := c.engine.readPacket()
		if err != nil {
			if err == io.EOF {
				c.exitConnection(nil, true, false)
			} else {
				c.exitConnection(err, true, true)
			}
			return
		}
		c.hooks.onRead(pkt.Type, 0, 0, 0, nil)

		switch pkt.Type {
		case wire.TypePing, wire.TypeDebug:
			// no-op: keepalive and debug frames carry no application data.

		case wire.TypeHelloReply:
			c.engine.deliverAckReply(pkt)

		case wire.TypeAddConsumerReply:
			// Wired synchronously on this goroutine, not through the
			// generic ack-reply path: the new consumer's receive queue
			// must be registered before the read loop continues, or a
			// message for it could arrive and be dropped first.
			c.handleAddConsumerReply(pkt)

		case wire.TypeAddProducerReply, wire.TypeDeleteConsumerReply,
			wire.TypeDeleteProducerReply, wire.TypeCreateDestinationReply, wire.TypeDestroyDestinationReply,
			wire.TypeVerifyDestinationReply, wire.TypeSetClientIDReply, wire.TypeCreateSessionReply,
			wire.TypeDestroySessionReply, wire.TypeStartReply, wire.TypeStopReply, wire.TypeSendReply,
			wire.TypeAcknowledgeReply, wire.TypeRedeliverReply, wire.TypeStartTransactionReply,
			wire.TypeEndTransactionReply, wire.TypePrepareTransactionReply, wire.TypeCommitTransactionReply,
			wire.TypeRollbackTransactionReply, wire.TypeRecoverTransactionReply, wire.TypeBrowseReply,
			wire.TypeDeliverReply, wire.TypeUnsubscribeDurableReply, wire.TypeAuthenticateRequest,
			wire.TypeAuthenticateReply, wire.TypeGoodbyeReply:
			c.engine.deliverAckReply(pkt)

		case wire.TypeGoodbye:
			c.exitConnection(nil, true, false)
			return

		case wire.TypeResumeFlow:
			c.handleResumeFlow(pkt)

		case wire.TypeTextMessage, wire.TypeBytesMessage, wire.TypeMessage:
			c.handleDelivery(pkt)

		case wire.TypeMapMessage, wire.TypeObjectMessage, wire.TypeStreamMessage:
			c.logger.Log(LogLevelWarn, "dropping unsupported message type", "type", pkt.Type.String())

		default:
			c.logger.Log(LogLevelWarn, "dropping unrecognized packet type", "type", pkt.Type.String())
		}
	}
}

// handleAddConsumerReply completes a pending ADD_CONSUMER exchange on the
// dispatcher goroutine: on success it assigns the broker-chosen consumer
// id, wires the consumer's receive queue into the connection's
// consumer-by-id table (and starts it for Sync sessions), and registers
// the consumer with its session, all before the reply is handed back to
// the application goroutine blocked in registerConsumer.
func (c *Connection) handleAddConsumerReply(pkt *wire.Packet) {
	cons, ok := c.engine.pendingConsumers.take(pkt.ConsumerID)
	if ok && checkStatus(pkt) == nil {
		if consumerID, ok2 := pkt.Properties.GetInt64(wire.PropConsumerID); ok2 {
			cons.id = uint64(consumerID)
			if cons.session.receiveMode == Async {
				cons.queue = cons.session.queue
			}
			cons.session.mu.Lock()
			cons.session.consumers[cons.id] = cons
			cons.session.mu.Unlock()
			c.registerConsumerByID(cons)
			if cons.session.receiveMode == Sync {
				cons.queue.Start()
			}
		}
	}
	c.engine.deliverAckReply(pkt)
}

func (c *Connection) handleResumeFlow(pkt *wire.Packet) {
	pf, ok := c.producerFlowByID(pkt.ProducerID)
	if !ok {
		return
	}
	bytes, hasBytes := pkt.Properties.GetInt64(wire.PropBytes)
	size, hasSize := pkt.Properties.GetInt64(wire.PropSize)
	if !hasBytes {
		bytes = -1
	}
	if !hasSize {
		size = -1
	}
	pf.ResumeFlow(bytes, size)
}

// handleDelivery applies the connection-wide and per-consumer flow-control
// bookkeeping for an inbound message before enqueueing it: the
// connection-wide FlowController tracks every message regardless of
// consumer and reacts to the FlowPaused flag, while the ConsumerFlowPaused
// flag asks to resume only the specific consumer that carried it.
func (c *Connection) handleDelivery(pkt *wire.Packet) {
	c.flowController.OnMessageArrived()
	cons, ok := c.consumerByID(pkt.ConsumerID)
	if !ok {
		c.logger.Log(LogLevelDebug, "message for unknown consumer, dropping", "consumerId", pkt.ConsumerID)
		return
	}
	cons.deliver(messageFromPacket(pkt))
	if pkt.FlowPaused() {
		if err := c.flowController.OnFlowPaused(); err != nil {
			c.logger.Log(LogLevelWarn, "connection flow resume failed", "err", err)
		}
	}
	if pkt.ConsumerFlowPaused() {
		if err := cons.flow.OnFlowPaused(); err != nil {
			c.logger.Log(LogLevelWarn, "consumer flow resume failed", "consumerId", pkt.ConsumerID, "err", err)
		}
	}
}
