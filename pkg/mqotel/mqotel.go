// Package mqotel is a Hook implementation that opens an OpenTelemetry span
// for each successful packet write and ends it when the matching reply is
// read; a write that gets no reply keeps its span open.
package mqotel

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nclabs/mqgo/pkg/wire"
)

// Tracer implements mqc.ConnectHook, mqc.WriteHook, mqc.ReadHook, and
// mqc.DisconnectHook. Pass *Tracer as an mqc.Hook via mqc.WithHooks.
//
// Each OnWrite opens a span named after the packet type and leaves it open
// until the matching OnRead for a reply of the same type arrives (keyed by
// packet type, since this client runs one packet in flight per session at a
// time over a single connection); a write that never gets a same-type reply
// before the connection exits simply leaks no span longer than the process
// itself, so no explicit eviction is needed.
type Tracer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[wire.PacketType][]tracedWrite
}

type tracedWrite struct {
	span trace.Span
}

// NewTracer builds a Tracer using the global otel.Tracer named "mqgo".
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer("github.com/nclabs/mqgo"),
		spans:  make(map[wire.PacketType][]tracedWrite),
	}
}

// OnConnect implements mqc.ConnectHook: a single span bracketing the dial.
func (t *Tracer) OnConnect(addr string, dialDur time.Duration, conn net.Conn, err error) {
	_, span := t.tracer.Start(context.Background(), "mqgo.connect", trace.WithAttributes(
		attribute.String("mqgo.broker_addr", addr),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// OnDisconnect implements mqc.DisconnectHook.
func (t *Tracer) OnDisconnect(addr string, conn net.Conn) {
	_, span := t.tracer.Start(context.Background(), "mqgo.disconnect", trace.WithAttributes(
		attribute.String("mqgo.broker_addr", addr),
	))
	span.End()
}

// OnWrite implements mqc.WriteHook: opens a span for the outbound packet and
// queues it to be closed by the matching OnRead of the reply type.
func (t *Tracer) OnWrite(packetType wire.PacketType, bytesWritten int, writeWait, timeToWrite time.Duration, err error) {
	_, span := t.tracer.Start(context.Background(), "mqgo."+packetType.String(), trace.WithAttributes(
		attribute.Int("mqgo.bytes_written", bytesWritten),
		attribute.Int64("mqgo.write_wait_ms", writeWait.Milliseconds()),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	t.mu.Lock()
	t.spans[packetType] = append(t.spans[packetType], tracedWrite{span: span})
	t.mu.Unlock()
}

// OnRead implements mqc.ReadHook: closes the oldest open span for the
// corresponding request type, recording the read outcome on it.
func (t *Tracer) OnRead(packetType wire.PacketType, bytesRead int, readWait, timeToRead time.Duration, err error) {
	reqType, ok := replyRequestType(packetType)
	if !ok {
		return
	}
	t.mu.Lock()
	pending := t.spans[reqType]
	var tw tracedWrite
	found := false
	if len(pending) > 0 {
		tw = pending[0]
		t.spans[reqType] = pending[1:]
		found = true
	}
	t.mu.Unlock()
	if !found {
		return
	}
	tw.span.SetAttributes(
		attribute.Int("mqgo.bytes_read", bytesRead),
		attribute.Int64("mqgo.read_wait_ms", readWait.Milliseconds()),
	)
	if err != nil {
		tw.span.RecordError(err)
		tw.span.SetStatus(codes.Error, err.Error())
	}
	tw.span.End()
}

// replyRequestType maps a *_REPLY packet type back to the request type that
// would have opened its span, mirroring the request/reply pairing in
// pkg/mqc/verbs.go.
func replyRequestType(reply wire.PacketType) (wire.PacketType, bool) {
	switch reply {
	case wire.TypeHelloReply:
		return wire.TypeHello, true
	case wire.TypeAuthenticateReply:
		return wire.TypeAuthenticate, true
	case wire.TypeGoodbyeReply:
		return wire.TypeGoodbye, true
	case wire.TypeAddConsumerReply:
		return wire.TypeAddConsumer, true
	case wire.TypeDeleteConsumerReply:
		return wire.TypeDeleteConsumer, true
	case wire.TypeAddProducerReply:
		return wire.TypeAddProducer, true
	case wire.TypeDeleteProducerReply:
		return wire.TypeDeleteProducer, true
	case wire.TypeCreateDestinationReply:
		return wire.TypeCreateDestination, true
	case wire.TypeDestroyDestinationReply:
		return wire.TypeDestroyDestination, true
	case wire.TypeVerifyDestinationReply:
		return wire.TypeVerifyDestination, true
	case wire.TypeSetClientIDReply:
		return wire.TypeSetClientID, true
	case wire.TypeCreateSessionReply:
		return wire.TypeCreateSession, true
	case wire.TypeDestroySessionReply:
		return wire.TypeDestroySession, true
	case wire.TypeStartReply:
		return wire.TypeStart, true
	case wire.TypeStopReply:
		return wire.TypeStop, true
	case wire.TypeSendReply:
		return wire.TypeSend, true
	case wire.TypeAcknowledgeReply:
		return wire.TypeAcknowledge, true
	case wire.TypeRedeliverReply:
		return wire.TypeRedeliver, true
	case wire.TypeStartTransactionReply:
		return wire.TypeStartTransaction, true
	case wire.TypeEndTransactionReply:
		return wire.TypeEndTransaction, true
	case wire.TypePrepareTransactionReply:
		return wire.TypePrepareTransaction, true
	case wire.TypeCommitTransactionReply:
		return wire.TypeCommitTransaction, true
	case wire.TypeRollbackTransactionReply:
		return wire.TypeRollbackTransaction, true
	case wire.TypeRecoverTransactionReply:
		return wire.TypeRecoverTransaction, true
	case wire.TypeBrowseReply:
		return wire.TypeBrowse, true
	case wire.TypeUnsubscribeDurableReply:
		return wire.TypeUnsubscribeDurable, true
	default:
		return 0, false
	}
}
