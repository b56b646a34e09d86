package mqc

import (
	"sync"
	"time"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// AckMode selects how a Session acknowledges delivered messages.
type AckMode int32

const (
	AutoAck AckMode = iota
	ClientAck
	DupsOkAck
	Transacted
)

// ReceiveMode selects whether a Session's consumers deliver through
// blocking Receive calls or through an onMessage listener fed by a
// dedicated delivery goroutine.
type ReceiveMode int8

const (
	Sync ReceiveMode = iota
	Async
)

// DupsOkLimit is the default ledger size at which DupsOkAck flushes.
const DupsOkLimit = 10

// Session is a single-threaded ordered delivery context, owning zero or
// more Consumers and Producers.
type Session struct {
	conn *Connection
	id   uint64

	ackMode     AckMode
	receiveMode ReceiveMode

	// sessionMu serializes close/recover/commit/rollback/acknowledge
	// against the async delivery goroutine. The delivery goroutine holds
	// sessionMu for the full span of one message's processing (onMessage
	// through its own post-delivery acknowledge) and calls the unexported
	// onMessageDelivered directly rather than through a lock-acquiring
	// entry point.
	sessionMu sync.Mutex

	// queue is the session-wide receive queue shared by every consumer
	// when receiveMode==Async; unused for Sync sessions, where each
	// Consumer owns its own queue instead.
	queue        *ReceiveQueue
	deliveryDone chan struct{}

	mu        sync.Mutex
	consumers map[uint64]*Consumer
	producers map[uint64]*Producer
	closed    bool

	// pendingAcks accumulates (consumerId, systemMessageId) pairs between
	// explicit Acknowledge calls in ClientAck mode, and within a single
	// flush in DupsOkAck mode (AutoAck does not use it). In Transacted mode it accumulates
	// the whole span of one transaction, flushed by Commit or redelivered
	// and discarded by Rollback.
	pendingAcks []ackEntry

	// xid/transactionID hold this session's current XA branch
	// association, set by XAResource.Start and cleared by Commit/
	// Rollback. For a non-XA transacted session, transactionID instead
	// tracks the locally-driven transaction this client starts on
	// creation and restarts after every commit/rollback.
	xid           *Xid
	transactionID uint64
}

func newSession(conn *Connection, id uint64, ackMode AckMode, receiveMode ReceiveMode) (*Session, error) {
	s := &Session{
		conn:        conn,
		id:          id,
		ackMode:     ackMode,
		receiveMode: receiveMode,
		consumers:   make(map[uint64]*Consumer),
		producers:   make(map[uint64]*Producer),
	}
	if ackMode == Transacted {
		tid, err := s.startNewTransaction()
		if err != nil {
			return nil, err
		}
		s.transactionID = tid
	}
	if receiveMode == Async {
		s.queue = NewReceiveQueue()
		s.queue.Start()
		s.deliveryDone = make(chan struct{})
		go s.deliveryLoop()
	}
	return s, nil
}

// startNewTransaction allocates a fresh non-XA transaction id for this
// session, retrying the START_TRANSACTION exchange whenever the broker
// reports the proposed id already in use.
func (s *Session) startNewTransaction() (uint64, error) {
	for {
		tid, err := s.conn.engine.startTransaction(s.id, 0, nil)
		if err == nil {
			return tid, nil
		}
		if kind, ok := mqerr.KindOf(err); ok && kind == mqerr.TransactionIDInUse {
			continue
		}
		return 0, err
	}
}

// deliveryLoop is the async session's dedicated delivery goroutine:
// dequeue, resolve the target consumer by consumer id, invoke its
// listener, apply the ack-mode flush rule, mark the dequeue complete.
func (s *Session) deliveryLoop() {
	defer close(s.deliveryDone)
	for {
		msg, ok := s.queue.DequeueWait(365 * 24 * time.Hour)
		if !ok {
			if s.queue.IsClosed() {
				return
			}
			continue
		}
		cons, found := s.consumerByID(msg.ConsumerID)
		if !found {
			s.queue.ReceiveDone()
			continue
		}

		s.sessionMu.Lock()
		if cons.listener != nil {
			cons.listener(msg)
		}
		if err := cons.flow.OnMessageDelivered(); err != nil {
			s.conn.logger.Log(LogLevelWarn, "consumer flow resume failed in delivery loop", "err", err)
		}
		if err := s.conn.flowController.OnMessageDelivered(); err != nil {
			s.conn.logger.Log(LogLevelWarn, "connection flow resume failed in delivery loop", "err", err)
		}
		if err := s.onMessageDelivered(cons, msg); err != nil {
			s.conn.logger.Log(LogLevelWarn, "acknowledge failed in delivery loop", "err", err)
		}
		s.sessionMu.Unlock()

		s.queue.ReceiveDone()
	}
}

func (s *Session) consumerByID(id uint64) (*Consumer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[id]
	return c, ok
}

// CreateConsumer subscribes to a destination within this session.
func (s *Session) CreateConsumer(d Destination, opts ConsumerOptions) (*Consumer, error) {
	c, err := newConsumer(s, d, opts)
	if err != nil {
		return nil, err
	}
	c.flow = NewFlowController(s.conn.flowLimitEnabled, s.conn.flowChunkCount, s.conn.flowWaterMark,
		func() error { return s.conn.engine.resumeFlow(c.id, s.conn.flowChunkCount) })
	if err := s.conn.engine.registerConsumer(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateProducer registers a producer for a destination within this
// session.
func (s *Session) CreateProducer(d Destination, opts ProducerOptions) (*Producer, error) {
	id, chunkBytes, chunkSize, err := s.conn.engine.registerProducer(s.id, d)
	if err != nil {
		return nil, err
	}
	p := newProducer(s, d, id, chunkBytes, chunkSize, opts)
	s.mu.Lock()
	s.producers[id] = p
	s.mu.Unlock()
	return p, nil
}

// UnsubscribeDurable removes a durable subscription by name. While a
// consumer on this connection is still open on that durable name it
// returns CannotUnsubscribeActiveConsumer without contacting the broker;
// a rejection from the broker is returned as the kind its status maps to.
func (s *Session) UnsubscribeDurable(name string) error {
	s.conn.mu.Lock()
	for _, c := range s.conn.consumersByID {
		if c.durableName == name {
			s.conn.mu.Unlock()
			return mqerr.New(mqerr.CannotUnsubscribeActiveConsumer)
		}
	}
	s.conn.mu.Unlock()
	return s.conn.engine.unsubscribeDurable(name)
}

func (s *Session) removeConsumer(c *Consumer) {
	s.mu.Lock()
	delete(s.consumers, c.id)
	s.mu.Unlock()
}

func (s *Session) removeProducer(p *Producer) {
	s.mu.Lock()
	delete(s.producers, p.id)
	s.mu.Unlock()
}

// onMessageDelivered applies this session's ack-mode flush rule after a
// message has been handed to the application:
//   - AutoAck: acknowledge immediately, one message at a time, and mark
//     the message AckProcessed.
//   - DupsOkAck: accumulate and flush once the consumer's queue drains to
//     empty or the ledger reaches DupsOkLimit entries, trading at-least-once acknowledgement latency for fewer round
//     trips.
//   - ClientAck: accumulate; the application must call Acknowledge.
//   - Transacted: accumulate; flushed by Commit, redelivered and
//     discarded by Rollback.
func (s *Session) onMessageDelivered(c *Consumer, m *DeliveredMessage) error {
	entry := ackEntry{ConsumerID: m.ConsumerID, SysMessageID: m.SysMessageID}
	switch s.ackMode {
	case AutoAck:
		if err := s.conn.engine.acknowledge(s.id, []ackEntry{entry}, true); err != nil {
			return err
		}
		m.AckProcessed = true
		return nil
	case DupsOkAck:
		s.mu.Lock()
		s.pendingAcks = append(s.pendingAcks, entry)
		flush := len(s.pendingAcks) >= DupsOkLimit || c.queue.Len() == 0
		pending := s.pendingAcks
		if flush {
			s.pendingAcks = nil
		}
		s.mu.Unlock()
		if flush {
			return s.conn.engine.acknowledge(s.id, pending, false)
		}
		return nil
	case ClientAck, Transacted:
		s.mu.Lock()
		s.pendingAcks = append(s.pendingAcks, entry)
		s.mu.Unlock()
		m.AckProcessed = false
		return nil
	default:
		return mqerr.New(mqerr.InvalidArgument)
	}
}

// Acknowledge flushes every accumulated acknowledgement in ClientAck mode.
// Transacted sessions flush as part of Commit instead.
func (s *Session) Acknowledge() error {
	if s.ackMode != ClientAck {
		return mqerr.New(mqerr.NotTransactedSession)
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.mu.Lock()
	pending := s.pendingAcks
	s.pendingAcks = nil
	s.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	return s.conn.engine.acknowledge(s.id, pending, true)
}

// Recover redelivers every unacknowledged message in a ClientAck session.
func (s *Session) Recover() error {
	if s.ackMode != ClientAck {
		return mqerr.New(mqerr.NotTransactedSession)
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.mu.Lock()
	pending := s.pendingAcks
	s.pendingAcks = nil
	s.mu.Unlock()
	return s.conn.engine.redeliver(s.id, pending, true, true)
}

// Commit flushes pending acknowledgements, ends the current transaction,
// and starts a fresh one. The ledger is only cleared once
// commitTransaction has confirmed success, so a failed commit leaves
// pendingAcks intact for a retry rather than silently losing track of
// which messages were actually committed. Non-XA transacted sessions
// drive the local transaction lifecycle through startTransaction/
// commitTransaction directly rather than through an XAResource.
func (s *Session) Commit() error {
	if s.ackMode != Transacted {
		return mqerr.New(mqerr.NotTransactedSession)
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.mu.Lock()
	pending := s.pendingAcks
	tid := s.transactionID
	s.mu.Unlock()

	if len(pending) > 0 {
		if err := s.conn.engine.acknowledge(s.id, pending, false); err != nil {
			return err
		}
	}
	if err := s.conn.engine.commitTransaction(tid, true); err != nil {
		return err
	}
	s.mu.Lock()
	s.pendingAcks = nil
	s.mu.Unlock()

	newTid, err := s.startNewTransaction()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.transactionID = newTid
	s.mu.Unlock()
	return nil
}

// Rollback redelivers every message accumulated in the current
// transaction's ledger, rolls the transaction back, and starts a fresh
// one. Every message delivered since the last startTransaction and not
// yet committed is included in the redeliver block, mirroring Recover's
// handling of the ClientAck ledger.
func (s *Session) Rollback() error {
	if s.ackMode != Transacted {
		return mqerr.New(mqerr.NotTransactedSession)
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.mu.Lock()
	pending := s.pendingAcks
	s.pendingAcks = nil
	tid := s.transactionID
	s.mu.Unlock()

	if len(pending) > 0 {
		if err := s.conn.engine.redeliver(s.id, pending, true, true); err != nil {
			return err
		}
	}
	if err := s.conn.engine.rollbackTransaction(tid); err != nil {
		return err
	}

	newTid, err := s.startNewTransaction()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.transactionID = newTid
	s.mu.Unlock()
	return nil
}

// Close unregisters this session and every consumer/producer under it:
// producers first, then the session stops (awaiting any in-flight async
// delivery), then consumers, then (for a non-XA transacted session) a
// rollback of the open transaction, then the async delivery goroutine is
// torn down, then DESTROY_SESSION.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	consumers := make([]*Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		consumers = append(consumers, c)
	}
	producers := make([]*Producer, 0, len(s.producers))
	for _, p := range s.producers {
		producers = append(producers, p)
	}
	ackMode := s.ackMode
	s.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	if s.receiveMode == Async {
		// Stop awaits any in-flight delivery (receiveInProgress clears
		// only after the delivery goroutine releases sessionMu below)
		// before Close proceeds to tear down consumers.
		s.queue.Stop()
	}

	for _, c := range consumers {
		c.Close()
	}

	s.sessionMu.Lock()
	if ackMode == Transacted && s.xid == nil {
		_ = s.conn.engine.rollbackTransaction(s.transactionID)
	}
	s.sessionMu.Unlock()

	if s.receiveMode == Async {
		s.queue.Close(true)
		<-s.deliveryDone
	}
	s.conn.unregisterSessionByID(s.id)
	return s.conn.engine.unregisterSession(s.id)
}
