// Package mqerr defines the closed taxonomy of errors this client can
// return, and the mapping from broker status codes onto that taxonomy: a
// closed, comparable error-per-code table rather than ad hoc fmt.Errorf
// strings.
package mqerr

import (
	"errors"
	"fmt"

	"github.com/nclabs/mqgo/pkg/wire"
)

// Kind is a closed enumeration of error categories this client can
// surface. It is comparable and safe to switch on.
type Kind int

const (
	Success Kind = iota
	InvalidHandle
	OutOfMemory
	InvalidArgument
	NullArgument
	UnsupportedArgument
	Timeout
	NotFound
	ReusedID
	InvalidPacket
	UnexpectedAcknowledgement
	UnrecognizedPacketType
	UnsupportedMessageType
	UnsupportedAuthType
	AuthMismatch
	AdminKeyAuthMismatch
	InvalidAuthenticateRequest
	InvalidLogin
	InvalidClientID
	ClientIDInUse
	BrokerBadRequest
	BrokerForbidden
	BrokerPreconditionFailed
	BrokerConflict
	BrokerGone
	BrokerResourceFull
	BrokerEntityTooLarge
	BrokerError
	BrokerNotImplemented
	BrokerUnavailable
	BrokerBadVersion
	BrokerConnectionClosed
	CouldNotConnect
	ConcurrentDeadlock
	SessionClosed
	MessageNotInSession
	ConsumerNotInSession
	ProducerNotInSession
	ProducerClosed
	ConsumerNoDurableName
	ConsumerNoSubscriptionName
	QueueConsumerCannotBeDurable
	SharedSubscriptionNotTopic
	CannotUnsubscribeActiveConsumer
	DestinationConsumerLimitExceeded
	InvalidMessageSelector
	NotTransactedSession
	TransactedSession
	TransactionIDInUse
	InvalidTransactionID
	XaSessionInProgress
	NotXaConnection
	ThreadOutsideXaTransaction
	SslInitError
	Base64EncodeFailure
	Md5HashFailure
	SendNotFound
	SendTooLarge
	SendResourceFull
	IncompatibleLibrary
	CouldNotCreateThread
)

var kindNames = map[Kind]string{
	Success:                           "success",
	InvalidHandle:                     "invalid handle",
	OutOfMemory:                       "out of memory",
	InvalidArgument:                   "invalid argument",
	NullArgument:                      "null argument",
	UnsupportedArgument:               "unsupported argument",
	Timeout:                           "timeout",
	NotFound:                          "not found",
	ReusedID:                          "id already in use",
	InvalidPacket:                     "invalid packet",
	UnexpectedAcknowledgement:         "unexpected acknowledgement",
	UnrecognizedPacketType:            "unrecognized packet type",
	UnsupportedMessageType:            "unsupported message type",
	UnsupportedAuthType:               "unsupported authentication type",
	AuthMismatch:                      "authentication mismatch",
	AdminKeyAuthMismatch:              "admin key authentication mismatch",
	InvalidAuthenticateRequest:        "invalid authenticate request",
	InvalidLogin:                      "invalid login",
	InvalidClientID:                   "invalid client id",
	ClientIDInUse:                     "client id in use",
	BrokerBadRequest:                  "broker: bad request",
	BrokerForbidden:                   "broker: forbidden",
	BrokerPreconditionFailed:          "broker: precondition failed",
	BrokerConflict:                    "broker: conflict",
	BrokerGone:                        "broker: gone",
	BrokerResourceFull:                "broker: resource full",
	BrokerEntityTooLarge:              "broker: entity too large",
	BrokerError:                       "broker: internal error",
	BrokerNotImplemented:              "broker: not implemented",
	BrokerUnavailable:                 "broker: unavailable",
	BrokerBadVersion:                  "broker: bad version",
	BrokerConnectionClosed:            "broker connection closed",
	CouldNotConnect:                   "could not connect",
	ConcurrentDeadlock:                "concurrent deadlock detected",
	SessionClosed:                     "session closed",
	MessageNotInSession:               "message not in session",
	ConsumerNotInSession:              "consumer not in session",
	ProducerNotInSession:              "producer not in session",
	ProducerClosed:                    "producer closed",
	ConsumerNoDurableName:             "consumer has no durable name",
	ConsumerNoSubscriptionName:        "consumer has no subscription name",
	QueueConsumerCannotBeDurable:      "queue consumer cannot be durable",
	SharedSubscriptionNotTopic:        "shared subscription requires a topic",
	CannotUnsubscribeActiveConsumer:   "cannot unsubscribe an active consumer",
	DestinationConsumerLimitExceeded:  "destination consumer limit exceeded",
	InvalidMessageSelector:            "invalid message selector",
	NotTransactedSession:              "session is not transacted",
	TransactedSession:                 "session is transacted",
	TransactionIDInUse:                "transaction id in use",
	InvalidTransactionID:              "invalid transaction id",
	XaSessionInProgress:               "xa session already in progress",
	NotXaConnection:                   "not an xa connection",
	ThreadOutsideXaTransaction:        "thread is outside an xa transaction",
	SslInitError:                      "tls initialization error",
	Base64EncodeFailure:               "base64 encode failure",
	Md5HashFailure:                    "md5 hash failure",
	SendNotFound:                      "send: destination not found",
	SendTooLarge:                      "send: message too large",
	SendResourceFull:                  "send: resource full",
	IncompatibleLibrary:               "incompatible library version",
	CouldNotCreateThread:              "could not create goroutine worker",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the concrete error type this package returns. It carries a Kind,
// an optional broker status code (0 if not applicable), and an optional
// wrapped cause.
type Error struct {
	Kind   Kind
	Status int32
	Cause  error
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, mqerr.New(kind)) style sentinel comparisons by
// Kind alone, ignoring Status/Cause/Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a bare *Error of the given kind, suitable as an errors.Is
// sentinel target.
func New(kind Kind) *Error { return &Error{Kind: kind} }

// Wrap builds an *Error of the given kind wrapping cause with detail.
func Wrap(kind Kind, cause error, detail string) *Error {
	return &Error{Kind: kind, Cause: cause, Detail: detail}
}

// WithStatus builds an *Error of the given kind carrying a broker status
// code, e.g. for reply packets whose JMQStatus property is not StatusOK.
func WithStatus(kind Kind, status int32, detail string) *Error {
	return &Error{Kind: kind, Status: status, Detail: detail}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error, else false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Success, false
}

// FromStatus maps a broker status code onto a Kind. Any status code not
// explicitly listed here falls through to BrokerError.
func FromStatus(code int32) Kind {
	switch code {
	case wire.StatusOK:
		return Success
	case wire.StatusBadRequest:
		return BrokerBadRequest
	case wire.StatusUnauthorized:
		return InvalidLogin
	case wire.StatusForbidden:
		return BrokerForbidden
	case wire.StatusNotFound:
		return NotFound
	case wire.StatusTimeout:
		return Timeout
	case wire.StatusConflict:
		return BrokerConflict
	case wire.StatusGone:
		return BrokerGone
	case wire.StatusPreconditionFailed:
		return BrokerPreconditionFailed
	case wire.StatusInvalidLogin:
		return InvalidLogin
	case wire.StatusResourceFull:
		return BrokerResourceFull
	case wire.StatusEntityTooLarge:
		return BrokerEntityTooLarge
	case wire.StatusNotAllowed:
		return BrokerForbidden
	case wire.StatusError:
		return BrokerError
	case wire.StatusNotImplemented:
		return BrokerNotImplemented
	case wire.StatusUnavailable:
		return BrokerUnavailable
	case wire.StatusBadVersion:
		return BrokerBadVersion
	default:
		return BrokerError
	}
}

// ErrorFromStatus is a convenience combining FromStatus and WithStatus for
// the common case of turning a reply packet's status property straight
// into a returnable error.
func ErrorFromStatus(code int32, detail string) error {
	kind := FromStatus(code)
	if kind == Success {
		return nil
	}
	return WithStatus(kind, code, detail)
}
