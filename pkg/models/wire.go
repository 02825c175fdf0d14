package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidTopic is returned for empty topics or topics containing whitespace.
var ErrInvalidTopic = errors.New("invalid topic")

// DefaultTopic is the topic every listener subscribes to besides its own.
const DefaultTopic = "default"

// WireMessage is a single text line: the topic, one space, then the payload.
type WireMessage struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Validate checks that the topic can be recovered from the encoded line.
func (m WireMessage) Validate() error {
	if m.Topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.IndexFunc(m.Topic, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidTopic, m.Topic)
	}
	return nil
}

// Encode returns the line sent on the wire.
func (m WireMessage) Encode() string {
	return m.Topic + " " + m.Payload
}

// ParseWireMessage splits a line on its first space. A line without a space
// is a topic with an empty payload.
func ParseWireMessage(line string) (WireMessage, error) {
	topic, payload, _ := strings.Cut(line, " ")
	msg := WireMessage{Topic: topic, Payload: payload}
	if err := msg.Validate(); err != nil {
		return WireMessage{}, err
	}
	return msg, nil
}
