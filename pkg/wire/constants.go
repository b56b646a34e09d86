// Package wire implements the framed binary packet protocol spoken between
// this client and the broker: a fixed 100-byte header, a sequence of typed
// variable headers, a serialized properties map, and an opaque body.
package wire

// Magic is the fixed constant every packet header must start with. Never
// change this; it is a wire compatibility contract with the broker.
const Magic uint32 = 469754818

// Version is the wire protocol version this client speaks.
const Version uint16 = 301

// HeaderSize is the fixed size, in bytes, of a packet header: magic(4) +
// version(2) + packetType(2) + packetSize(4) + transactionID(8) +
// producerID(8) + expiration(8) + deliveryTime(8) + deliveryCount(4) +
// propertiesOffset(4) + propertiesSize(4) + priority(1) + encryption(1) +
// flags(2) + consumerID(8) + SysMessageID(32) = 100.
const HeaderSize = 100

// DefaultPriority is the priority assigned to a message when the
// application does not set one.
const DefaultPriority uint8 = 5

// NullConsumerID is the sentinel consumer id used before a consumer is
// registered with the broker.
const NullConsumerID uint64 = 0

// Sequence numbers wrap from MaxSequenceNumber back to MinSequenceNumber.
const (
	MaxSequenceNumber uint32 = 1<<31 - 1
	MinSequenceNumber uint32 = 0
)

// PacketType enumerates the 16-bit packet type field. Values are internal
// to this implementation and are not taken from any particular broker's
// numbering; this module holds only the client side of the protocol.
type PacketType uint16

const (
	TypeReserved PacketType = iota

	TypeHello
	TypeHelloReply
	TypeAuthenticateRequest
	TypeAuthenticate
	TypeAuthenticateReply
	TypeGoodbye
	TypeGoodbyeReply
	TypePing
	TypeDebug

	TypeAddConsumer
	TypeAddConsumerReply
	TypeDeleteConsumer
	TypeDeleteConsumerReply
	TypeAddProducer
	TypeAddProducerReply
	TypeDeleteProducer
	TypeDeleteProducerReply

	TypeCreateDestination
	TypeCreateDestinationReply
	TypeDestroyDestination
	TypeDestroyDestinationReply
	TypeVerifyDestination
	TypeVerifyDestinationReply

	TypeSetClientID
	TypeSetClientIDReply

	TypeCreateSession
	TypeCreateSessionReply
	TypeDestroySession
	TypeDestroySessionReply

	TypeStart
	TypeStartReply
	TypeStop
	TypeStopReply

	TypeSend
	TypeSendReply

	TypeTextMessage
	TypeBytesMessage
	TypeMessage
	TypeMapMessage
	TypeObjectMessage
	TypeStreamMessage

	TypeAcknowledge
	TypeAcknowledgeReply
	TypeRedeliver
	TypeRedeliverReply

	TypeResumeFlow

	TypeStartTransaction
	TypeStartTransactionReply
	TypeEndTransaction
	TypeEndTransactionReply
	TypePrepareTransaction
	TypePrepareTransactionReply
	TypeCommitTransaction
	TypeCommitTransactionReply
	TypeRollbackTransaction
	TypeRollbackTransactionReply
	TypeRecoverTransaction
	TypeRecoverTransactionReply

	TypeBrowse
	TypeBrowseReply
	TypeDeliverReply

	TypeUnsubscribeDurable
	TypeUnsubscribeDurableReply
)

func (t PacketType) String() string {
	if s, ok := packetTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

var packetTypeNames = map[PacketType]string{
	TypeHello:                   "HELLO",
	TypeHelloReply:              "HELLO_REPLY",
	TypeAuthenticateRequest:     "AUTHENTICATE_REQUEST",
	TypeAuthenticate:            "AUTHENTICATE",
	TypeAuthenticateReply:       "AUTHENTICATE_REPLY",
	TypeGoodbye:                 "GOODBYE",
	TypeGoodbyeReply:            "GOODBYE_REPLY",
	TypePing:                    "PING",
	TypeDebug:                   "DEBUG",
	TypeAddConsumer:             "ADD_CONSUMER",
	TypeAddConsumerReply:        "ADD_CONSUMER_REPLY",
	TypeDeleteConsumer:          "DELETE_CONSUMER",
	TypeDeleteConsumerReply:     "DELETE_CONSUMER_REPLY",
	TypeAddProducer:             "ADD_PRODUCER",
	TypeAddProducerReply:        "ADD_PRODUCER_REPLY",
	TypeDeleteProducer:          "DELETE_PRODUCER",
	TypeDeleteProducerReply:     "DELETE_PRODUCER_REPLY",
	TypeCreateDestination:       "CREATE_DESTINATION",
	TypeCreateDestinationReply:  "CREATE_DESTINATION_REPLY",
	TypeDestroyDestination:      "DESTROY_DESTINATION",
	TypeDestroyDestinationReply: "DESTROY_DESTINATION_REPLY",
	TypeVerifyDestination:       "VERIFY_DESTINATION",
	TypeVerifyDestinationReply:  "VERIFY_DESTINATION_REPLY",
	TypeSetClientID:             "SET_CLIENTID",
	TypeSetClientIDReply:        "SET_CLIENTID_REPLY",
	TypeCreateSession:           "CREATE_SESSION",
	TypeCreateSessionReply:      "CREATE_SESSION_REPLY",
	TypeDestroySession:          "DESTROY_SESSION",
	TypeDestroySessionReply:     "DESTROY_SESSION_REPLY",
	TypeStart:                   "START",
	TypeStartReply:              "START_REPLY",
	TypeStop:                    "STOP",
	TypeStopReply:               "STOP_REPLY",
	TypeSend:                    "SEND",
	TypeSendReply:               "SEND_REPLY",
	TypeTextMessage:             "TEXT_MESSAGE",
	TypeBytesMessage:            "BYTES_MESSAGE",
	TypeMessage:                 "MESSAGE",
	TypeMapMessage:              "MAP_MESSAGE",
	TypeObjectMessage:           "OBJECT_MESSAGE",
	TypeStreamMessage:           "STREAM_MESSAGE",
	TypeAcknowledge:             "ACKNOWLEDGE",
	TypeAcknowledgeReply:        "ACKNOWLEDGE_REPLY",
	TypeRedeliver:               "REDELIVER",
	TypeRedeliverReply:          "REDELIVER_REPLY",
	TypeResumeFlow:              "RESUME_FLOW",
	TypeStartTransaction:        "START_TRANSACTION",
	TypeStartTransactionReply:   "START_TRANSACTION_REPLY",
	TypeEndTransaction:          "END_TRANSACTION",
	TypeEndTransactionReply:     "END_TRANSACTION_REPLY",
	TypePrepareTransaction:      "PREPARE_TRANSACTION",
	TypePrepareTransactionReply: "PREPARE_TRANSACTION_REPLY",
	TypeCommitTransaction:       "COMMIT_TRANSACTION",
	TypeCommitTransactionReply:  "COMMIT_TRANSACTION_REPLY",
	TypeRollbackTransaction:     "ROLLBACK_TRANSACTION",
	TypeRollbackTransactionReply: "ROLLBACK_TRANSACTION_REPLY",
	TypeRecoverTransaction:      "RECOVER_TRANSACTION",
	TypeRecoverTransactionReply: "RECOVER_TRANSACTION_REPLY",
	TypeBrowse:                  "BROWSE",
	TypeBrowseReply:             "BROWSE_REPLY",
	TypeDeliverReply:            "DELIVER_REPLY",
	TypeUnsubscribeDurable:      "UNSUBSCRIBE_DURABLE",
	TypeUnsubscribeDurableReply: "UNSUBSCRIBE_DURABLE_REPLY",
}

// VarHeaderID enumerates the closed set of recognized variable-header
// identifiers. Ids between MinValidVarHeaderID and the terminator that are
// not in this set are skipped, not rejected; ids below MinValidVarHeaderID
// (i.e. 0, the terminator) end the list.
type VarHeaderID uint16

const (
	VarHeaderTerminator      VarHeaderID = 0
	VarHeaderDestination     VarHeaderID = 1
	VarHeaderMessageID       VarHeaderID = 2
	VarHeaderCorrelationID   VarHeaderID = 3
	VarHeaderReplyTo         VarHeaderID = 4
	VarHeaderMessageType     VarHeaderID = 5
	VarHeaderDestinationClass VarHeaderID = 6
	VarHeaderReplyToClass    VarHeaderID = 7
	VarHeaderTransactionID   VarHeaderID = 8
	VarHeaderProducerID      VarHeaderID = 9
	VarHeaderDeliveryTime    VarHeaderID = 10
	VarHeaderDeliveryCount   VarHeaderID = 11

	MinValidVarHeaderID = VarHeaderDestination
	MaxValidVarHeaderID = VarHeaderDeliveryCount
)

// Flags, a 16-bit bitmap carried in every packet header. The codec does not
// interpret these; it only preserves them.
const (
	FlagPersistent uint16 = 1 << iota
	FlagRedelivered
	FlagIsQueue
	FlagSelectorsProcessed
	FlagSendAcknowledge
	FlagIsLast
	FlagConsumerFlow
	FlagFlowPaused
	FlagConsumerFlowPaused
)

// Header property names. These are part of the wire contract with the
// broker and must not be renamed.
const (
	PropConnectionID          = "JMQConnectionID"
	PropSessionID             = "JMQSessionID"
	PropAckMode               = "JMQAckMode"
	PropDestination           = "JMQDestination"
	PropDestType              = "JMQDestType"
	PropSelector              = "JMQSelector"
	PropDurableName           = "JMQDurableName"
	PropSharedSubscriptionName = "JMQSharedSubscriptionName"
	PropJMSShare              = "JMQJMSShare"
	PropNoLocal               = "JMQNoLocal"
	PropReconnect             = "JMQReconnect"
	PropSize                  = "JMQSize"
	PropShare                 = "JMQShare"
	PropProducerID            = "JMQProducerID"
	PropBytes                 = "JMQBytes"
	PropConsumerID            = "JMQConsumerID"
	PropTransactionID         = "JMQTransactionID"
	PropClientID              = "JMQClientID"
	PropStatus                = "JMQStatus"
	PropReason                = "JMQReason"
	PropAuthType              = "JMQAuthType"
	PropChallenge             = "JMQChallenge"
	PropProtocolLevel         = "JMQProtocolLevel"
	PropProductVersion        = "JMQVersion"
	PropBlock                 = "JMQBlock"
	PropSetRedelivered        = "JMQSetRedelivered"
	PropUserAgent             = "JMQUserAgent"
	PropBodyType              = "JMQBodyType"
	PropAckType               = "JMQAckType"
	PropDeadReason            = "JMQDeadReason"
	PropXAFlags               = "JMQXAFlags"
	PropXAOnePhase            = "JMQXAOnePhase"
	PropQuantity              = "JMQQuantity"
	PropRedeliver             = "JMQRedeliver"
	PropPingInterval          = "JMQPingInterval"
)

// Authentication type strings, exact wire values.
const (
	AuthTypeBasic     = "basic"
	AuthTypeDigest    = "digest"
	AuthTypeAdminKey  = "jmqadminkey"
)

// Ack type values carried in PropAckType.
const (
	AckTypeAcknowledgeRequest int32 = 0
	AckTypeUndeliverableRequest int32 = 1
	AckTypeDeadRequest int32 = 2
)

// Dead reason values carried in PropDeadReason.
const (
	DeadReasonUndeliverable int32 = 0
	DeadReasonExpired       int32 = 1
)

// Status codes from the broker, a subset of HTTP codes.
const (
	StatusUnknown            int32 = 0
	StatusOK                 int32 = 200
	StatusBadRequest         int32 = 400
	StatusUnauthorized       int32 = 401
	StatusForbidden          int32 = 403
	StatusNotFound           int32 = 404
	StatusNotAllowed         int32 = 405
	StatusTimeout            int32 = 408
	StatusConflict           int32 = 409
	StatusGone               int32 = 410
	StatusPreconditionFailed int32 = 412
	StatusInvalidLogin       int32 = 413
	StatusResourceFull       int32 = 414
	StatusEntityTooLarge     int32 = 423
	StatusError              int32 = 500
	StatusNotImplemented     int32 = 501
	StatusUnavailable        int32 = 503
	StatusBadVersion         int32 = 505
)
