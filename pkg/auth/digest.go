package auth

import (
	"crypto/md5"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// digestMechanism implements "digest" authentication: MD5("user:pass") is
// hashed again with the broker's nonce appended, the combined hash is
// interpreted as a signed (two's-complement) big integer and rendered as
// lowercase hex with a leading '-' if negative, then the username and
// hashed credential are written length-prefixed.
type digestMechanism struct {
	username, password string
}

// Digest returns a Mechanism that authenticates via the broker's MD5
// challenge-response scheme.
func Digest(username, password string) Mechanism {
	return &digestMechanism{username: username, password: password}
}

func (m *digestMechanism) Name() string { return "digest" }

func (m *digestMechanism) Authenticate() (Session, error) {
	return &digestSession{m: m}, nil
}

type digestSession struct{ m *digestMechanism }

func (s *digestSession) Challenge(nonce []byte) ([]byte, error) {
	if s.m.username == "" || s.m.password == "" {
		return nil, mqerr.New(mqerr.NullArgument)
	}
	userpwd := s.m.username + ":" + s.m.password
	hashedUserpwd := signedMD5Hex(userpwd)

	credential := append([]byte(hashedUserpwd+":"), nonce...)
	hashedCredential := signedMD5Hex(string(credential))

	var out []byte
	out = writeUTF8(out, s.m.username)
	out = writeUTF8(out, hashedCredential)
	return out, nil
}

// signedMD5Hex MD5-hashes s, treats the 16-byte digest as a signed
// two's-complement big-endian integer, and renders it in lowercase hex
// with leading zero nibbles dropped (except the final nibble) and a
// leading '-' when the top bit of the original digest was set.
func signedMD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	signed, negative := convertMD5HashToSigned(sum)

	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(signed)*2+1)
	if negative {
		out = append(out, '-')
	}
	leadingZeroes := true
	for i, b := range signed {
		hi, lo := (b>>4)&0x0F, b&0x0F
		if leadingZeroes && hi == 0 && lo == 0 && i != len(signed)-1 {
			continue
		}
		if !leadingZeroes || hi != 0 {
			out = append(out, hexDigits[hi])
		}
		out = append(out, hexDigits[lo])
		leadingZeroes = false
	}
	return string(out)
}

// convertMD5HashToSigned mirrors
// JMQDigestAuthenticationHandler::convertMD5HashToSigned: if the digest's
// top bit is clear it is returned unchanged (non-negative); otherwise it
// is negated (bitwise complement plus one, i.e. two's complement) and
// reported negative.
func convertMD5HashToSigned(hash [16]byte) (signed [16]byte, negative bool) {
	if hash[0]&0x80 == 0 {
		return hash, false
	}
	negative = true
	for i, b := range hash {
		signed[i] = b ^ 0xFF
	}
	carry := 1
	for i := len(signed) - 1; i >= 0 && carry == 1; i-- {
		sum := int(signed[i]) + carry
		if sum > 255 {
			carry = 1
			sum = 0
		} else {
			carry = 0
		}
		signed[i] = byte(sum)
	}
	return signed, true
}
