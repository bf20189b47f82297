package reverb

import (
	"encoding/json"
	"fmt"
)

// Encode renders n in the gateway wire format, including the "op" field and,
// for track events, the "type" field. DecodeFrame(Encode(n)) yields n.
func Encode(n Notification) ([]byte, error) {
	if n == nil {
		return nil, NewError("cannot encode a nil notification", ErrCodeUnknown)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return nil, WrapError(err, ErrCodeUnknown, "marshal notification")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, WrapError(err, ErrCodeUnknown, "split notification fields")
	}

	fields["op"] = json.RawMessage(fmt.Sprintf("%q", n.Op()))
	if ev, ok := n.(TrackEvent); ok {
		fields["type"] = json.RawMessage(fmt.Sprintf("%q", ev.EventType()))
	}
	return json.Marshal(fields)
}
