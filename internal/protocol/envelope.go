package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chatsync/pkg/errs"
)

type EnvelopeType string

const (
	TypeConnect     EnvelopeType = "CONNECT"
	TypeConnected   EnvelopeType = "CONNECTED"
	TypeError       EnvelopeType = "ERROR"
	TypeSubscribe   EnvelopeType = "SUBSCRIBE"
	TypeUnsubscribe EnvelopeType = "UNSUBSCRIBE"
	TypeSend        EnvelopeType = "SEND"
	TypeMessage     EnvelopeType = "MESSAGE"
	TypeDisconnect  EnvelopeType = "DISCONNECT"
)

var ErrUnroutable = errors.New("frame action has no outbound channel")

// Envelope это внешний слой кадра на проводе.
type Envelope struct {
	Type        EnvelopeType    `json:"type"`
	ID          string          `json:"id,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Token       string          `json:"token,omitempty"`
	Message     string          `json:"message,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

func Connect(token string) Envelope {
	return Envelope{Type: TypeConnect, Token: token}
}

func Subscribe(id, topic string) Envelope {
	return Envelope{Type: TypeSubscribe, ID: id, Destination: topic}
}

func Unsubscribe(id string) Envelope {
	return Envelope{Type: TypeUnsubscribe, ID: id}
}

// Send заворачивает кадр в SEND по каналу, соответствующему action.
func Send(f Frame) (Envelope, error) {
	dest, ok := ChannelFor(f.Action)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnroutable, f.Action)
	}
	body, err := json.Marshal(f)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode frame: %w", err)
	}
	return Envelope{Type: TypeSend, Destination: dest, Body: body}, nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %v", errs.ErrDecode, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: envelope without type", errs.ErrDecode)
	}
	return env, nil
}

// DecodeFrame достаёт кадр из MESSAGE.
func DecodeFrame(env Envelope) (Frame, error) {
	if len(env.Body) == 0 {
		return Frame{}, fmt.Errorf("%w: empty body on %s", errs.ErrDecode, env.Destination)
	}
	var f Frame
	if err := json.Unmarshal(env.Body, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: frame: %v", errs.ErrDecode, err)
	}
	if f.Action == "" {
		return Frame{}, fmt.Errorf("%w: frame without action", errs.ErrDecode)
	}
	return f, nil
}
