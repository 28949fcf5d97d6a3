// Package apex is a small client for the AlphaPoint APEX gateway.
//
// Every APEX message is a frame {"m": type, "i": sequence, "n": function,
// "o": payload} where the payload is itself a JSON document serialised into a
// string. Requests carry an even, increasing sequence number that the
// matching reply echoes back.
package apex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageType is the "m" field of a frame.
type MessageType int

const (
	TypeRequest     MessageType = 0
	TypeReply       MessageType = 1
	TypeSubscribe   MessageType = 2
	TypeEvent       MessageType = 3
	TypeUnsubscribe MessageType = 4
	TypeError       MessageType = 5
)

// Frame is one APEX message.
type Frame struct {
	Type     MessageType `json:"m"`
	Seq      uint64      `json:"i"`
	Function string      `json:"n"`
	Payload  string      `json:"o"`
}

// NewFrame marshals payload into the frame's string body.
func NewFrame(t MessageType, seq uint64, function string, payload any) (Frame, error) {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", function, err)
	}
	return Frame{Type: t, Seq: seq, Function: function, Payload: string(body)}, nil
}

// Raw returns the payload as raw JSON.
func (f Frame) Raw() json.RawMessage {
	return json.RawMessage(f.Payload)
}

// Embedded decodes a value the venue sends either as a JSON document or as
// a string containing one (TemplateForm, DepositInfo, transaction details).
// An empty string or null leaves the zero value.
type Embedded[T any] struct {
	Value T
}

func (e *Embedded[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = bytes.TrimSpace([]byte(s))
		if len(b) == 0 || bytes.Equal(b, []byte("null")) {
			return nil
		}
	}
	return json.Unmarshal(b, &e.Value)
}

// MarshalJSON writes the string-embedded form the venue expects.
func (e Embedded[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(raw))
}
