package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/chatsync/pkg/errs"
)

func TestChannelFor_EachOutboundActionHasDistinctChannel(t *testing.T) {
	tests := map[Action]string{
		ActionSendMessage: ChannelSend,
		ActionTypingStart: ChannelTyping,
		ActionTypingStop:  ChannelTyping,
		ActionMarkRead:    ChannelRead,
		ActionJoinRoom:    ChannelJoin,
		ActionLeaveRoom:   ChannelLeave,
		ActionPing:        ChannelPing,
	}
	for a, want := range tests {
		got, ok := ChannelFor(a)
		if !ok || got != want {
			t.Errorf("ChannelFor(%s) = %q,%v want %q", a, got, ok, want)
		}
	}
	if _, ok := ChannelFor(ActionNewMessage); ok {
		t.Errorf("inbound action must not be routable")
	}
}

func TestSend_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := Send(Frame{Action: ActionSendMessage, ChatRoomID: 7, Content: "hi", Timestamp: ts})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if env.Type != TypeSend || env.Destination != ChannelSend {
		t.Fatalf("envelope = %+v", env)
	}

	raw, _ := json.Marshal(Envelope{Type: TypeMessage, Destination: TopicShared, Body: env.Body})
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	f, err := DecodeFrame(got)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if f.ChatRoomID != 7 || f.Content != "hi" || !f.Timestamp.Equal(ts) {
		t.Fatalf("frame = %+v", f)
	}
}

func TestSend_Unroutable(t *testing.T) {
	if _, err := Send(Frame{Action: ActionUserOnline}); !errors.Is(err, ErrUnroutable) {
		t.Fatalf("expected ErrUnroutable, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{`{`, `{}`, `[]`} {
		if _, err := DecodeEnvelope([]byte(raw)); !errors.Is(err, errs.ErrDecode) {
			t.Errorf("DecodeEnvelope(%s) error = %v, want ErrDecode", raw, err)
		}
	}

	bad := []Envelope{
		{Type: TypeMessage},
		{Type: TypeMessage, Body: json.RawMessage(`"nope"`)},
		{Type: TypeMessage, Body: json.RawMessage(`{"content":"no action"}`)},
	}
	for _, env := range bad {
		if _, err := DecodeFrame(env); !errors.Is(err, errs.ErrDecode) {
			t.Errorf("DecodeFrame(%s) error = %v, want ErrDecode", env.Body, err)
		}
	}
}

func TestTypingTopic(t *testing.T) {
	if got := TypingTopic(42); got != "/topic/typing.42" {
		t.Fatalf("TypingTopic(42) = %q", got)
	}
}
