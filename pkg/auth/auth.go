// Package auth implements the client side of the two authentication
// mechanisms this broker speaks: basic and digest. Mechanism/Session
// generalize a multi-step SASL-style exchange down to this protocol's
// single authenticate/challenge/reply round trip.
package auth

import (
	"encoding/binary"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// Mechanism produces authentication Sessions for a single set of
// credentials. A Connection holds at most one Mechanism. The broker picks
// the type: the handshake reads JMQAuthType from the broker's
// AUTHENTICATE_REQUEST (falling back to the configured type) and builds
// the matching Mechanism; the HELLO request carries no JMQAuthType.
type Mechanism interface {
	// Name is the wire value of the JMQAuthType property (wire.AuthTypeBasic
	// or wire.AuthTypeDigest).
	Name() string
	// Authenticate begins a new authentication session.
	Authenticate() (Session, error)
}

// Session carries the per-connection state of one authentication exchange.
// Challenge consumes the broker's AUTHENTICATE_REQUEST payload (empty for
// basic auth, a nonce for digest auth) and produces the client's reply
// payload for the AUTHENTICATE packet's body.
type Session interface {
	Challenge(request []byte) (reply []byte, err error)
}

// writeUTF8 appends a 2-byte big-endian length prefix followed by s's UTF-8
// bytes, matching SerialDataOutputStream::writeUTF8String in the original
// client (used for both the username and the hashed-credential fields of
// an authenticate reply).
func writeUTF8(dst []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, s...)
	return dst
}

// New returns the Mechanism named by typ (wire.AuthTypeBasic or
// wire.AuthTypeDigest) for the given credentials.
func New(typ, username, password string) (Mechanism, error) {
	switch typ {
	case "basic":
		return Basic(username, password), nil
	case "digest":
		return Digest(username, password), nil
	default:
		return nil, mqerr.Wrap(mqerr.UnsupportedAuthType, nil, typ)
	}
}
