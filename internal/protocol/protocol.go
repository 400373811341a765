package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event names emitted by the playback daemon.
const (
	EventSongLoaded       = "song_loaded"
	EventSongStarting     = "song_starting"
	EventSongFinished     = "song_finished"
	EventPlaybackComplete = "playback_complete"
	EventPlaybackError    = "playback_error"
)

// Socket naming for daemon endpoint discovery. Each daemon instance binds
// SocketPrefix<pid>SocketSuffix in the temp directory so concurrent daemons
// don't collide; clients pick the newest live candidate.
const (
	SocketPrefix = "walrio_player_"
	SocketSuffix = ".sock"
)

// Event is one lifecycle notification broadcast to subscribers, serialized
// as a single line of JSON on the wire.
type Event struct {
	Type      string                 `json:"type"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp float64                `json:"timestamp"`
}

// NewEvent builds an event with the current wall-clock timestamp.
func NewEvent(name string, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{
		Type:      "event",
		Event:     name,
		Data:      data,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// Encode serializes the event as one newline-terminated JSON line.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseEvent decodes one JSON line into an Event.
func ParseEvent(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if e.Type != "event" {
		return Event{}, fmt.Errorf("not an event message: type %q", e.Type)
	}
	return e, nil
}

// String returns the Data value for key as a string, or "" if absent.
func (e Event) String(key string) string {
	if v, ok := e.Data[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Bool returns the Data value for key as a bool.
func (e Event) Bool(key string) bool {
	v, ok := e.Data[key].(bool)
	return ok && v
}

// Float returns the Data value for key as a float64, or 0 if absent.
// JSON numbers decode to float64 in the generic map; in-process events
// may still carry the producer's int.
func (e Event) Float(key string) float64 {
	switch v := e.Data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// IsOK reports whether a command reply indicates success.
func IsOK(reply string) bool {
	return strings.HasPrefix(reply, "OK:")
}

// ReplyPayload strips "OK: " / "ERROR: " from a reply line.
func ReplyPayload(reply string) string {
	reply = strings.TrimSpace(reply)
	if idx := strings.Index(reply, ":"); idx != -1 {
		return strings.TrimSpace(reply[idx+1:])
	}
	return reply
}
