package mqc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nclabs/mqgo/pkg/auth"
	"github.com/nclabs/mqgo/pkg/mqerr"
	"github.com/nclabs/mqgo/pkg/wire"
)

// ackQueueTable is the keyed map of in-flight ack-id -> ReceiveQueue the
// read dispatcher delivers *_REPLY packets into: one monitor per table,
// never nested with any other table's lock.
type ackQueueTable struct {
	mu    sync.Mutex
	table map[uint64]*ReceiveQueue
}

func newAckQueueTable() *ackQueueTable {
	return &ackQueueTable{table: make(map[uint64]*ReceiveQueue)}
}

func (t *ackQueueTable) register(ackID uint64) *ReceiveQueue {
	q := NewReceiveQueue()
	q.Start() // ack queues are never gated by Connection.stop/start
	t.mu.Lock()
	t.table[ackID] = q
	t.mu.Unlock()
	return q
}

func (t *ackQueueTable) lookup(ackID uint64) (*ReceiveQueue, bool) {
	t.mu.Lock()
	q, ok := t.table[ackID]
	t.mu.Unlock()
	return q, ok
}

func (t *ackQueueTable) remove(ackID uint64) {
	t.mu.Lock()
	delete(t.table, ackID)
	t.mu.Unlock()
}

// closeAll wakes every outstanding ack waiter, used from exitConnection.
func (t *ackQueueTable) closeAll() {
	t.mu.Lock()
	for id, q := range t.table {
		q.Close(false)
		delete(t.table, id)
	}
	t.mu.Unlock()
}

// Engine is the protocol engine: it maps high-level verbs to packet
// exchanges, correlating replies by ack-id (an ack-id keying a
// ReceiveQueue each write-expecting-a-reply blocks on until the matching
// reply arrives or the ack timeout expires).
type Engine struct {
	transport Transport
	logger    Logger
	hooks     hooks

	ackQueues        *ackQueueTable
	pendingConsumers *pendingConsumerTable

	nextAckID uint64

	writeTimeout time.Duration
	ackTimeout   time.Duration

	connectionID string
	mech         auth.Mechanism

	lastWriteNanos int64
}

// NewEngine builds an Engine over an already-connected Transport.
func NewEngine(t Transport, logger Logger, writeTimeout, ackTimeout time.Duration, hks hooks) *Engine {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Engine{
		transport:        t,
		logger:           logger,
		hooks:            hks,
		ackQueues:        newAckQueueTable(),
		pendingConsumers: newPendingConsumerTable(),
		writeTimeout:     writeTimeout,
		ackTimeout:       ackTimeout,
	}
}

// pendingConsumerTable is the keyed map of in-flight ADD_CONSUMER ack-id ->
// *Consumer the dispatcher consults to wire a newly added consumer's
// receive queue in before the application goroutine blocked on the
// exchange resumes.
type pendingConsumerTable struct {
	mu    sync.Mutex
	table map[uint64]*Consumer
}

func newPendingConsumerTable() *pendingConsumerTable {
	return &pendingConsumerTable{table: make(map[uint64]*Consumer)}
}

func (t *pendingConsumerTable) register(ackID uint64, c *Consumer) {
	t.mu.Lock()
	t.table[ackID] = c
	t.mu.Unlock()
}

func (t *pendingConsumerTable) remove(ackID uint64) {
	t.mu.Lock()
	delete(t.table, ackID)
	t.mu.Unlock()
}

// take removes and returns the pending consumer for ackID, if any.
func (t *pendingConsumerTable) take(ackID uint64) (*Consumer, bool) {
	t.mu.Lock()
	c, ok := t.table[ackID]
	if ok {
		delete(t.table, ackID)
	}
	t.mu.Unlock()
	return c, ok
}

func (e *Engine) nextAck() uint64 { return atomic.AddUint64(&e.nextAckID, 1) }

// readPacket reads one frame from the transport; the dispatcher is the
// only caller.
func (e *Engine) readPacket() (*wire.Packet, error) {
	return wire.Decode(e.transport.Conn())
}

// writeUnacked emits pkt and returns without waiting for any reply.
func (e *Engine) writeUnacked(pkt *wire.Packet) error {
	atomic.StoreInt64(&e.lastWriteNanos, time.Now().UnixNano())
	start := time.Now()
	err := wire.Encode(e.transport.Conn(), pkt, e.writeTimeout)
	e.hooks.onWrite(pkt.Type, 0, 0, time.Since(start), err)
	return err
}

// idleSince reports how long it has been since the last write on this
// engine, used by the ping timer to skip sending a PING when other
// traffic has kept the connection demonstrably alive.
func (e *Engine) idleSince() time.Duration {
	last := atomic.LoadInt64(&e.lastWriteNanos)
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// writeAcked allocates an ack-id, registers a fresh ReceiveQueue under it,
// sets ConsumerID/SendAcknowledge on pkt, writes it, and blocks for one
// reply with the configured ack timeout. On every exit path the ack-id is
// removed from the table.
func (e *Engine) writeAcked(pkt *wire.Packet) (*wire.Packet, error) {
	replies, err := e.writeAckedN(pkt, 1)
	if err != nil {
		return nil, err
	}
	return replies[0], nil
}

// writeAckedN is writeAcked generalized to HELLO's two-reply case (a
// status reply followed by a follow-up AUTHENTICATE_REQUEST).
func (e *Engine) writeAckedN(pkt *wire.Packet, n int) ([]*wire.Packet, error) {
	ackID := e.nextAck()
	queue := e.ackQueues.register(ackID)
	defer e.ackQueues.remove(ackID)

	pkt.ConsumerID = ackID
	pkt.SetSendAcknowledge(true)

	if err := e.writeUnacked(pkt); err != nil {
		return nil, err
	}

	out := make([]*wire.Packet, 0, n)
	for i := 0; i < n; i++ {
		msg, ok := queue.DequeueWait(e.ackTimeout)
		if !ok {
			if queue.IsClosed() {
				return nil, mqerr.New(mqerr.BrokerConnectionClosed)
			}
			return nil, mqerr.New(mqerr.Timeout)
		}
		reply, err := packetFromAckReply(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, reply)
	}
	return out, nil
}

// writeAckedExpecting is writeAcked plus a check that the reply's packet
// type is one of want; otherwise it surfaces UnexpectedAcknowledgement.
func (e *Engine) writeAckedExpecting(pkt *wire.Packet, want ...wire.PacketType) (*wire.Packet, error) {
	reply, err := e.writeAcked(pkt)
	if err != nil {
		return nil, err
	}
	for _, w := range want {
		if reply.Type == w {
			return reply, checkStatus(reply)
		}
	}
	return nil, mqerr.New(mqerr.UnexpectedAcknowledgement)
}

// checkStatus surfaces a non-OK JMQStatus property as a mapped error.
func checkStatus(p *wire.Packet) error {
	status, ok := p.Properties.GetInt32(wire.PropStatus)
	if !ok {
		return nil
	}
	reason, _ := p.Properties.GetString(wire.PropReason)
	return mqerr.ErrorFromStatus(status, reason)
}

// deliverAckReply is called by the dispatcher to hand an incoming *_REPLY
// to its waiting ack queue.
func (e *Engine) deliverAckReply(p *wire.Packet) {
	q, ok := e.ackQueues.lookup(p.ConsumerID)
	if !ok {
		e.logger.Log(LogLevelDebug, "reply for unknown ack id, dropping", "ackId", p.ConsumerID, "type", p.Type.String())
		return
	}
	q.Enqueue(ackReplyMessage(p))
}

// ackReplyMessage/packetFromAckReply round-trip a *wire.Packet through the
// DeliveredMessage the ReceiveQueue carries, since ReceiveQueue is shared
// between reply correlation and message delivery.
func ackReplyMessage(p *wire.Packet) *DeliveredMessage {
	m := messageFromPacket(p)
	m.replyPacket = p
	return m
}

func packetFromAckReply(m *DeliveredMessage) (*wire.Packet, error) {
	if m == nil || m.replyPacket == nil {
		return nil, mqerr.New(mqerr.InvalidPacket)
	}
	return m.replyPacket, nil
}
