package notify

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the wire format of published events.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// Marshal encodes e in the given format.
func Marshal(enc Encoding, e Event) ([]byte, error) {
	switch enc {
	case EncodingMsgpack:
		b, err := msgpack.Marshal(&e)
		if err != nil {
			return nil, fmt.Errorf("notify: marshal msgpack: %w", err)
		}
		return b, nil
	case EncodingJSON, "":
		b, err := json.Marshal(&e)
		if err != nil {
			return nil, fmt.Errorf("notify: marshal json: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("notify: unknown encoding %q", enc)
	}
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(enc Encoding, b []byte) (Event, error) {
	var e Event
	var err error
	switch enc {
	case EncodingMsgpack:
		err = msgpack.Unmarshal(b, &e)
	case EncodingJSON, "":
		err = json.Unmarshal(b, &e)
	default:
		err = fmt.Errorf("unknown encoding %q", enc)
	}
	if err != nil {
		return Event{}, fmt.Errorf("notify: unmarshal: %w", err)
	}
	return e, nil
}
