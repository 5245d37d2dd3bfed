package storage

import (
	"encoding/json"
	"strings"
)

// ChangeType is the kind of change carried by a Message.
type ChangeType string

const (
	ChangeSet    ChangeType = "set"
	ChangeRemove ChangeType = "remove"
)

// Message describes a change made in another execution context.
type Message struct {
	Type  ChangeType `json:"type"`
	Key   string     `json:"key"`
	Value any        `json:"value,omitempty"`
}

// ChannelName returns the broadcast channel name shared by every store that
// targets the same logical table.
func ChannelName(database, table string) string {
	return database + "." + table
}

// ParseMessage validates a payload received from a channel.
//
// Accepted payloads are Message, *Message, generic JSON objects
// (map[string]any) and JSON text ([]byte, json.RawMessage, string).
// Anything else, an unknown type or a missing key is rejected.
func ParseMessage(data any) (Message, bool) {
	switch v := data.(type) {
	case Message:
		return v, v.valid()
	case *Message:
		if v == nil {
			return Message{}, false
		}
		return *v, v.valid()
	case map[string]any:
		return fromObject(v)
	case json.RawMessage:
		return fromJSON(v)
	case []byte:
		return fromJSON(v)
	case string:
		if !strings.HasPrefix(strings.TrimSpace(v), "{") {
			return Message{}, false
		}
		return fromJSON([]byte(v))
	default:
		return Message{}, false
	}
}

func (m Message) valid() bool {
	if m.Key == "" {
		return false
	}
	return m.Type == ChangeSet || m.Type == ChangeRemove
}

func fromJSON(data []byte) (Message, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return Message{}, false
	}
	return fromObject(obj)
}

func fromObject(obj map[string]any) (Message, bool) {
	typ, ok := obj["type"].(string)
	if !ok {
		return Message{}, false
	}
	key, ok := obj["key"].(string)
	if !ok {
		return Message{}, false
	}
	msg := Message{Type: ChangeType(typ), Key: key, Value: obj["value"]}
	return msg, msg.valid()
}
