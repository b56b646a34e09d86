package mqc

import (
	"sync"
	"time"
)

// ReceiveQueue is a thread-safe FIFO of received packets: a
// monitor-guarded deque with closed/stopped/receiveInProgress state and a
// reference count of blocked waiters, realized here with sync.Mutex +
// sync.Cond because no channel shape expresses "wake on enqueue, close, OR
// stop-state-change, but re-check spuriously" as cleanly.
type ReceiveQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items []*QueuedPacket

	closed            bool
	stopped           bool
	receiveInProgress bool
	references        int
	stopWaiters       []chan struct{}
}

// QueuedPacket is one entry on a ReceiveQueue: either a delivered packet or
// the nil sentinel used to wake every waiter on close.
type QueuedPacket struct {
	Packet *DeliveredMessage
}

// NewReceiveQueue returns a queue that starts stopped: DequeueWait hands
// out nothing until Start is called on the queue. Connection.Start does
// not start queues; the ack-queue table, the dispatcher's
// ADD_CONSUMER_REPLY handling (Sync consumers) and newSession (Async
// sessions) each call Start.
func NewReceiveQueue() *ReceiveQueue {
	q := &ReceiveQueue{stopped: true}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a packet and wakes every waiter. Enqueue after Close is
// still permitted.
func (q *ReceiveQueue) Enqueue(p *DeliveredMessage) {
	q.mu.Lock()
	q.items = append(q.items, &QueuedPacket{Packet: p})
	q.cond.Broadcast()
	q.mu.Unlock()
}

// DequeueWait blocks until a packet is available, the queue is closed, or
// timeout elapses (a negative timeout waits without limit; a timeout of
// exactly 0 never blocks). It returns nil,
// false only for close or timeout.
func (q *ReceiveQueue) DequeueWait(timeout time.Duration) (*DeliveredMessage, bool) {
	q.mu.Lock()
	q.references++

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for len(q.items) == 0 || q.stopped {
		if q.closed {
			break
		}
		if timeout == 0 {
			break
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			q.waitFor(remaining)
		} else {
			q.cond.Wait()
		}
	}

	var out *DeliveredMessage
	ok := false
	if !q.stopped && !q.closed && len(q.items) > 0 {
		head := q.items[0]
		q.items = q.items[1:]
		q.receiveInProgress = true
		out = head.Packet
		ok = out != nil
	}

	q.references--
	if q.references == 0 {
		for _, w := range q.stopWaiters {
			close(w)
		}
		q.stopWaiters = nil
	}
	q.mu.Unlock()
	return out, ok
}

// waitFor waits on the condition variable for up to d, using a helper
// goroutine since sync.Cond has no timed wait.
func (q *ReceiveQueue) waitFor(d time.Duration) {
	timedOut := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		close(timedOut)
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.cond.Wait()
}

// ReceiveDone clears the receive-in-progress bit that gates Stop, called by
// the delivery loop after fully processing a dequeued message.
func (q *ReceiveQueue) ReceiveDone() {
	q.mu.Lock()
	q.receiveInProgress = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Close marks the queue closed, wakes every waiter with the close
// sentinel, and optionally blocks until no goroutine remains inside
// DequeueWait.
func (q *ReceiveQueue) Close(wait bool) {
	q.mu.Lock()
	q.closed = true
	q.stopped = false
	q.items = append(q.items, &QueuedPacket{Packet: nil})
	q.cond.Broadcast()
	var done chan struct{}
	if wait && q.references > 0 {
		done = make(chan struct{})
		q.stopWaiters = append(q.stopWaiters, done)
	}
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop pauses delivery, waiting for any in-flight ReceiveDone to clear
// before returning.
func (q *ReceiveQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	for q.receiveInProgress {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Start resumes delivery.
func (q *ReceiveQueue) Start() {
	q.mu.Lock()
	q.stopped = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// IsClosed reports whether Close has been called, used by callers that
// need to tell a closed queue apart from a plain DequeueWait timeout.
func (q *ReceiveQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len reports the number of queued (non-sentinel) packets, used by
// DupsOkAck's "flush when the session queue drains to empty" rule.
func (q *ReceiveQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Packet != nil {
			n++
		}
	}
	return n
}
