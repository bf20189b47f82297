package reverb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DecodeFrame parses one text frame and decodes it into a Notification.
// Numbers are kept as json.Number so 64-bit values survive the parse.
func DecodeFrame(data []byte) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, WrapError(err, ErrCodeDecode, "malformed frame")
	}
	if payload == nil {
		return nil, NewDecodeError("frame is not a JSON object")
	}
	return Decode(payload)
}

// Decode reads the "op" discriminator of payload and decodes the rest.
func Decode(payload map[string]any) (Notification, error) {
	raw, err := requireString(payload, "", "op")
	if err != nil {
		return nil, err
	}
	op, ok := ParseOpType(raw)
	if !ok {
		return nil, NewDecodeError(fmt.Sprintf("unknown op %q", raw)).AddDetail("op", raw)
	}
	return DecodePayload(op, payload)
}

// DecodePayload decodes payload as the variant selected by op. Any missing or
// mistyped required field fails the whole decode.
func DecodePayload(op OpType, payload map[string]any) (Notification, error) {
	var (
		n   Notification
		err error
	)
	switch op {
	case OpReady:
		n, err = decodeReady(payload)
	case OpPlayerUpdate:
		n, err = decodePlayerUpdate(payload)
	case OpStats:
		n, err = decodeStats(payload, "")
	case OpEvent:
		n, err = decodeEvent(payload)
	default:
		return nil, NewDecodeError(fmt.Sprintf("unknown op %q", op)).AddDetail("op", string(op))
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// DecodeStats decodes a stats object without an op field, as served by the
// REST stats route.
func DecodeStats(payload map[string]any) (Stats, error) {
	return decodeStats(payload, "")
}

func decodeReady(p map[string]any) (Ready, error) {
	resumed, err := requireBool(p, "", "resumed")
	if err != nil {
		return Ready{}, err
	}
	sessionID, err := requireString(p, "", "sessionId")
	if err != nil {
		return Ready{}, err
	}
	return Ready{Resumed: resumed, SessionID: sessionID}, nil
}

func decodePlayerUpdate(p map[string]any) (PlayerUpdate, error) {
	guildID, err := requireGuildID(p)
	if err != nil {
		return PlayerUpdate{}, err
	}
	rawState, err := requireObject(p, "", "state")
	if err != nil {
		return PlayerUpdate{}, err
	}

	var state PlayerState
	if state.Time, err = requireInt(rawState, "state", "time"); err != nil {
		return PlayerUpdate{}, err
	}
	if state.Position, err = optionalInt(rawState, "state", "position"); err != nil {
		return PlayerUpdate{}, err
	}
	if state.Connected, err = requireBool(rawState, "state", "connected"); err != nil {
		return PlayerUpdate{}, err
	}
	if state.Ping, err = requireInt(rawState, "state", "ping"); err != nil {
		return PlayerUpdate{}, err
	}
	return PlayerUpdate{GuildID: guildID, State: state}, nil
}

func decodeStats(p map[string]any, prefix string) (Stats, error) {
	var (
		s   Stats
		err error
	)
	if s.Players, err = requireCount(p, prefix, "players"); err != nil {
		return Stats{}, err
	}
	if s.PlayingPlayers, err = requireCount(p, prefix, "playingPlayers"); err != nil {
		return Stats{}, err
	}
	if s.Uptime, err = requireInt(p, prefix, "uptime"); err != nil {
		return Stats{}, err
	}

	mem, err := requireObject(p, prefix, "memory")
	if err != nil {
		return Stats{}, err
	}
	memPath := join(prefix, "memory")
	if s.Memory.Used, err = requireInt(mem, memPath, "used"); err != nil {
		return Stats{}, err
	}
	if s.Memory.Free, err = requireInt(mem, memPath, "free"); err != nil {
		return Stats{}, err
	}
	if s.Memory.Allocated, err = requireInt(mem, memPath, "allocated"); err != nil {
		return Stats{}, err
	}
	if s.Memory.Reservable, err = requireInt(mem, memPath, "reservable"); err != nil {
		return Stats{}, err
	}

	cpu, err := requireObject(p, prefix, "cpu")
	if err != nil {
		return Stats{}, err
	}
	cpuPath := join(prefix, "cpu")
	if s.CPU.Cores, err = requireCount(cpu, cpuPath, "cores"); err != nil {
		return Stats{}, err
	}
	if s.CPU.SystemLoad, err = requireFloat(cpu, cpuPath, "systemLoad"); err != nil {
		return Stats{}, err
	}
	if s.CPU.LavalinkLoad, err = requireFloat(cpu, cpuPath, "lavalinkLoad"); err != nil {
		return Stats{}, err
	}

	raw := p["frameStats"]
	if isFalsy(raw) {
		return s, nil
	}
	frames, ok := raw.(map[string]any)
	if !ok {
		return Stats{}, missingField(join(prefix, "frameStats"), "object")
	}
	fsPath := join(prefix, "frameStats")
	var fs FrameStats
	if fs.Sent, err = requireInt(frames, fsPath, "sent"); err != nil {
		return Stats{}, err
	}
	if fs.Nulled, err = requireInt(frames, fsPath, "nulled"); err != nil {
		return Stats{}, err
	}
	if fs.Deficit, err = requireInt(frames, fsPath, "deficit"); err != nil {
		return Stats{}, err
	}
	s.FrameStats = &fs
	return s, nil
}

// eventName returns the sub-discriminator of an "event" op. Lavalink sends it
// as "type"; "event" is accepted as well. A null key counts as absent.
func eventName(p map[string]any) (string, error) {
	for _, key := range []string{"type", "event"} {
		if v, ok := p[key]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return "", missingField(key, "string")
			}
			return s, nil
		}
	}
	return "", missingField("type", "string")
}

func decodeEvent(p map[string]any) (TrackEvent, error) {
	name, err := eventName(p)
	if err != nil {
		return nil, err
	}
	et, ok := ParseEventType(name)
	if !ok {
		return nil, NewDecodeError(fmt.Sprintf("unknown event type %q", name)).AddDetail("event_type", name)
	}

	guildID, err := requireGuildID(p)
	if err != nil {
		return nil, err
	}

	switch et {
	case EventTrackStart:
		track, err := requireString(p, "", "encodedTrack")
		if err != nil {
			return nil, err
		}
		return TrackStart{GuildID: guildID, EncodedTrack: track}, nil

	case EventTrackEnd:
		track, err := requireString(p, "", "encodedTrack")
		if err != nil {
			return nil, err
		}
		raw, err := requireString(p, "", "reason")
		if err != nil {
			return nil, err
		}
		reason, ok := ParseTrackEndReason(raw)
		if !ok {
			return nil, NewDecodeError(fmt.Sprintf("unknown track end reason %q", raw)).AddDetail("field", "reason")
		}
		return TrackEnd{GuildID: guildID, EncodedTrack: track, Reason: reason}, nil

	case EventTrackStuck:
		track, err := requireString(p, "", "encodedTrack")
		if err != nil {
			return nil, err
		}
		threshold, err := requireInt(p, "", "thresholdMs")
		if err != nil {
			return nil, err
		}
		return TrackStuck{GuildID: guildID, EncodedTrack: track, ThresholdMs: threshold}, nil

	case EventTrackException:
		track, err := requireString(p, "", "encodedTrack")
		if err != nil {
			return nil, err
		}
		detail, err := decodeExceptionDetail(p)
		if err != nil {
			return nil, err
		}
		return TrackException{GuildID: guildID, EncodedTrack: track, Exception: detail}, nil

	case EventWebSocketClosed:
		code, err := requireInt(p, "", "code")
		if err != nil {
			return nil, err
		}
		reason, err := requireString(p, "", "reason")
		if err != nil {
			return nil, err
		}
		byRemote, err := requireBool(p, "", "byRemote")
		if err != nil {
			return nil, err
		}
		return WebSocketClosed{GuildID: guildID, Code: int(code), Reason: reason, ByRemote: byRemote}, nil
	}
	return nil, NewDecodeError(fmt.Sprintf("unknown event type %q", et))
}

func decodeExceptionDetail(p map[string]any) (TrackExceptionDetail, error) {
	raw, err := requireObject(p, "", "exception")
	if err != nil {
		return TrackExceptionDetail{}, err
	}

	var detail TrackExceptionDetail
	if detail.Message, err = optionalString(raw, "exception", "message"); err != nil {
		return TrackExceptionDetail{}, err
	}
	if detail.Cause, err = requireString(raw, "exception", "cause"); err != nil {
		return TrackExceptionDetail{}, err
	}
	sev, err := requireString(raw, "exception", "severity")
	if err != nil {
		return TrackExceptionDetail{}, err
	}
	severity, ok := ParseExceptionSeverity(sev)
	if !ok {
		return TrackExceptionDetail{}, NewDecodeError(fmt.Sprintf("unknown exception severity %q", sev)).
			AddDetail("field", "exception.severity")
	}
	detail.Severity = severity
	return detail, nil
}

// requireGuildID parses the decimal-string guild id. An integral JSON number
// is tolerated.
func requireGuildID(p map[string]any) (uint64, error) {
	v, ok := p["guildId"]
	if !ok || v == nil {
		return 0, missingField("guildId", "decimal string")
	}
	switch id := v.(type) {
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, NewDecodeError(fmt.Sprintf("field %q: %q is not a 64-bit decimal id", "guildId", id)).
				AddDetail("field", "guildId")
		}
		return n, nil
	case json.Number:
		n, err := strconv.ParseUint(id.String(), 10, 64)
		if err != nil {
			return 0, missingField("guildId", "decimal string")
		}
		return n, nil
	}
	return 0, missingField("guildId", "decimal string")
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func requireObject(p map[string]any, prefix, key string) (map[string]any, error) {
	v, ok := p[key].(map[string]any)
	if !ok {
		return nil, missingField(join(prefix, key), "object")
	}
	return v, nil
}

func requireString(p map[string]any, prefix, key string) (string, error) {
	v, ok := p[key].(string)
	if !ok {
		return "", missingField(join(prefix, key), "string")
	}
	return v, nil
}

func optionalString(p map[string]any, prefix, key string) (*string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, missingField(join(prefix, key), "string or null")
	}
	return &s, nil
}

func requireBool(p map[string]any, prefix, key string) (bool, error) {
	v, ok := p[key].(bool)
	if !ok {
		return false, missingField(join(prefix, key), "bool")
	}
	return v, nil
}

func requireInt(p map[string]any, prefix, key string) (int64, error) {
	n, ok := toInt(p[key])
	if !ok {
		return 0, missingField(join(prefix, key), "integer")
	}
	return n, nil
}

// requireCount is requireInt narrowed to a non-negative int.
func requireCount(p map[string]any, prefix, key string) (int, error) {
	n, err := requireInt(p, prefix, key)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxInt {
		return 0, missingField(join(prefix, key), "non-negative integer")
	}
	return int(n), nil
}

func optionalInt(p map[string]any, prefix, key string) (*int64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := toInt(v)
	if !ok {
		return nil, missingField(join(prefix, key), "integer or null")
	}
	return &n, nil
}

func requireFloat(p map[string]any, prefix, key string) (float64, error) {
	switch v := p[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f, nil
		}
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, missingField(join(prefix, key), "number")
}

// toInt accepts the numeric shapes a payload map can carry: json.Number from
// DecodeFrame, float64 from a plain json.Unmarshal, Go ints from hand-built maps.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// floatToInt accepts whole numbers that fit in an int64. 2^63 itself is
// representable as a float64 but not as an int64, hence the open upper bound.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// isFalsy matches the values the server uses to mean "no frame stats".
func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case float64:
		return x == 0
	case int:
		return x == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
