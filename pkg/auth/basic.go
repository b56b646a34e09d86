package auth

import (
	"encoding/base64"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// basicMechanism implements "basic" authentication: the client replies to
// an (empty) AUTHENTICATE_REQUEST with its username and base64-encoded
// password, each length-prefixed.
type basicMechanism struct {
	username, password string
}

// Basic returns a Mechanism that authenticates with a plaintext username
// and a base64-encoded password.
func Basic(username, password string) Mechanism {
	return &basicMechanism{username: username, password: password}
}

func (m *basicMechanism) Name() string { return "basic" }

func (m *basicMechanism) Authenticate() (Session, error) {
	return &basicSession{m: m}, nil
}

type basicSession struct{ m *basicMechanism }

func (s *basicSession) Challenge(request []byte) ([]byte, error) {
	if s.m.password == "" {
		return nil, mqerr.New(mqerr.UnsupportedArgument)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(s.m.password))
	var out []byte
	out = writeUTF8(out, s.m.username)
	out = writeUTF8(out, encoded)
	return out, nil
}
