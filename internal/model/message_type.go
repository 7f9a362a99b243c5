package model

import "fmt"

// MessageType is one of the three daily message slots.
type MessageType string

const (
	TypeMorning MessageType = "morning"
	TypeFlirty  MessageType = "flirty"
	TypeNight   MessageType = "night"
)

// AllTypes returns every message type in preference order. The order matters
// for startup catch-up when multiple windows overlap.
func AllTypes() []MessageType {
	return []MessageType{TypeMorning, TypeFlirty, TypeNight}
}

func (t MessageType) Valid() bool {
	switch t {
	case TypeMorning, TypeFlirty, TypeNight:
		return true
	}
	return false
}

func (t MessageType) String() string {
	return string(t)
}

// ParseMessageType converts a raw string into a MessageType.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown message type %q", s)
	}
	return t, nil
}
