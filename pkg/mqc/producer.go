package mqc

import (
	"time"

	"github.com/nclabs/mqgo/pkg/wire"
)

// Producer sends messages to one destination within a session, subject to
// the broker's per-producer flow credit, tracked by a ProducerFlow (see
// flowcontrol.go).
type Producer struct {
	session     *Session
	destination Destination
	id          uint64
	flow        *ProducerFlow

	ackOnProduce bool
	deliveryMode bool // true = persistent
	priority     uint8
}

// ProducerOptions configures a new Producer.
type ProducerOptions struct {
	Persistent   bool
	Priority     uint8
	AckOnProduce bool
}

func newProducer(s *Session, d Destination, id uint64, chunkBytes, chunkSize int64, opts ProducerOptions) *Producer {
	priority := opts.Priority
	if priority == 0 {
		priority = wire.DefaultPriority
	}
	p := &Producer{
		session:      s,
		destination:  d,
		id:           id,
		flow:         NewProducerFlow(id, chunkBytes, chunkSize, s.conn.onThrottle),
		ackOnProduce: opts.AckOnProduce,
		deliveryMode: opts.Persistent,
		priority:     priority,
	}
	s.conn.registerProducerFlow(id, p.flow)
	return p
}

// Send transmits body as a message of the given wire packet type (the
// application layer, outside this package, decides text vs. bytes vs.
// stream vs. map vs. object). Send blocks while the producer has no flow
// credit.
func (p *Producer) Send(packetType wire.PacketType, properties wire.Properties, body []byte) error {
	if err := p.flow.CheckFlowControl(len(body)); err != nil {
		return err
	}
	pkt := &wire.Packet{
		Type:         packetType,
		ProducerID:   p.id,
		Priority:     p.priority,
		Properties:   properties,
		Body:         body,
		SysMessageID: wire.SysMessageID{Sequence: wire.NextSequenceNumber()},
	}
	pkt.SetPersistent(p.deliveryMode)
	pkt.SetDestination(p.destination.Name)
	pkt.SetIsQueue(p.destination.IsQueue)
	return p.session.conn.engine.writeJmsMessage(pkt, p.ackOnProduce)
}

// Close unregisters this producer with the broker and releases any
// goroutine blocked in Send.
func (p *Producer) Close() error {
	p.flow.Close(nil)
	err := p.session.conn.engine.unregisterProducer(p.id)
	p.session.removeProducer(p)
	p.session.conn.unregisterProducerFlow(p.id)
	return err
}
