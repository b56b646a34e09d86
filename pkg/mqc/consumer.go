package mqc

import (
	"time"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// Consumer subscribes to a destination within a session, with flow
// control layered on top. A Sync consumer owns its ReceiveQueue; once the
// broker confirms an Async consumer, its queue is the session's shared one.
type Consumer struct {
	session     *Session
	destination Destination
	selector    string

	durableName            string
	sharedSubscriptionName string
	noLocal                bool

	id uint64

	queue *ReceiveQueue
	flow  *FlowController

	// listener, if set, is invoked by the owning session's async delivery
	// goroutine for every message arriving on this consumer. Only
	// meaningful when the owning session was created with ReceiveMode
	// Async; Sync sessions deliver through Receive instead.
	listener func(*DeliveredMessage)
}

// ConsumerOptions configures a new Consumer; zero value is a plain
// non-durable, non-shared subscription with no selector.
type ConsumerOptions struct {
	Selector               string
	DurableName            string
	SharedSubscriptionName string
	NoLocal                bool
}

func newConsumer(s *Session, d Destination, opts ConsumerOptions) (*Consumer, error) {
	if d.IsQueue && opts.DurableName != "" {
		return nil, mqerr.New(mqerr.QueueConsumerCannotBeDurable)
	}
	if opts.SharedSubscriptionName != "" && d.IsQueue {
		return nil, mqerr.New(mqerr.SharedSubscriptionNotTopic)
	}
	c := &Consumer{
		session:                s,
		destination:            d,
		selector:               opts.Selector,
		durableName:            opts.DurableName,
		sharedSubscriptionName: opts.SharedSubscriptionName,
		noLocal:                opts.NoLocal,
		queue:                  NewReceiveQueue(),
	}
	return c, nil
}

// Destination returns the destination this consumer is subscribed to.
func (c *Consumer) Destination() Destination { return c.destination }

// DurableName returns the durable subscription name, or "" if this is a
// non-durable consumer.
func (c *Consumer) DurableName() string { return c.durableName }

// SetMessageListener registers fn as this consumer's async delivery
// callback. Only valid on a consumer whose session was created with
// ReceiveMode Async; calling Receive on such a consumer is a caller error
// since the session's delivery goroutine is already draining its queue.
func (c *Consumer) SetMessageListener(fn func(*DeliveredMessage)) error {
	if c.session.receiveMode != Async {
		return mqerr.New(mqerr.InvalidArgument)
	}
	c.listener = fn
	return nil
}

// Receive blocks for up to timeout for the next message (timeout<=0 waits
// indefinitely; pass a tiny positive duration for a non-blocking poll,
// since DequeueWait(0) means "never block").
func (c *Consumer) Receive(timeout time.Duration) (*DeliveredMessage, error) {
	if timeout <= 0 {
		timeout = 365 * 24 * time.Hour
	}
	msg, ok := c.queue.DequeueWait(timeout)
	if !ok {
		if c.queue.IsClosed() {
			return nil, mqerr.New(mqerr.ConsumerNotInSession)
		}
		return nil, nil // timed out, no message
	}
	if err := c.flow.OnMessageDelivered(); err != nil {
		c.queue.ReceiveDone()
		return nil, err
	}
	if err := c.session.conn.flowController.OnMessageDelivered(); err != nil {
		c.queue.ReceiveDone()
		return nil, err
	}
	if err := c.session.onMessageDelivered(c, msg); err != nil {
		c.queue.ReceiveDone()
		return nil, err
	}
	c.queue.ReceiveDone()
	return msg, nil
}

// deliver is called by the session's dispatch path when a message for
// this consumer arrives off the wire.
func (c *Consumer) deliver(m *DeliveredMessage) {
	c.flow.OnMessageArrived()
	c.queue.Enqueue(m)
}

// Close unsubscribes this consumer. For a durable subscription that is
// not also being unsubscribed, the caller should not call Close; use
// Session.UnsubscribeDurable instead once no consumer references the
// subscription.
func (c *Consumer) Close() error {
	if err := c.session.conn.engine.unregisterConsumer(c.id); err != nil {
		return err
	}
	if c.session.receiveMode != Async {
		c.queue.Close(true)
	}
	c.session.removeConsumer(c)
	c.session.conn.unregisterConsumerByID(c.id)
	return nil
}
