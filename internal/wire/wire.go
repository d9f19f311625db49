// Package wire defines the newline-delimited JSON control-plane protocol
// shared by the ControlServer and the SwitchboardClient: the message
// shapes, the discriminator, and the parsing that turns a raw line into one
// of them.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates control-plane messages.
type Type string

const (
	TypeRegister   Type = "register"
	TypeUnregister Type = "unregister"
	TypeAck        Type = "ack"
)

// ErrUnknownType is returned by Parse for a type value it does not recognize.
var ErrUnknownType = errors.New("unknown message type")

// Register is sent client -> server to claim a hostname.
type Register struct {
	Type   Type   `json:"type"`
	Origin string `json:"origin" validate:"required,url"`
	Host   string `json:"host" validate:"required"`
	Port   int    `json:"port" validate:"required,min=1,max=65535"`
}

// NewRegister builds a well-formed Register envelope.
func NewRegister(origin, host string, port int) Register {
	return Register{Type: TypeRegister, Origin: origin, Host: host, Port: port}
}

// Unregister is sent client -> server to release a hostname.
type Unregister struct {
	Type   Type   `json:"type"`
	Origin string `json:"origin" validate:"required,url"`
}

// NewUnregister builds a well-formed Unregister envelope.
func NewUnregister(origin string) Unregister {
	return Unregister{Type: TypeUnregister, Origin: origin}
}

// Ack is sent server -> client in reply to Register/Unregister.
type Ack struct {
	Type    Type   `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AckOK and AckError build well-formed Ack envelopes.
func AckOK() Ack { return Ack{Type: TypeAck, Success: true} }
func AckError(msg string) Ack { return Ack{Type: TypeAck, Success: false, Error: msg} }

type envelope struct {
	Type Type `json:"type"`
}

// Parse decodes a single newline-framed JSON line into one of Register,
// Unregister or Ack. A malformed line returns the json error wrapped with a
// "malformed ..." prefix (not ErrUnknownType), so callers can distinguish it (protocol error, connection-closing) from an
// ErrUnknownType, which a caller may instead answer with an Ack error and
// keep the connection open.
func Parse(line []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	switch env.Type {
	case TypeRegister:
		var m Register
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("malformed register: %w", err)
		}
		return m, nil
	case TypeUnregister:
		var m Unregister
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("malformed unregister: %w", err)
		}
		return m, nil
	case TypeAck:
		var m Ack
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("malformed ack: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
