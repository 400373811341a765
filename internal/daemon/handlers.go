package daemon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func isSubscribe(cmd string) bool {
	return strings.TrimSpace(cmd) == "subscribe"
}

// dispatch parses one textual command and runs it against the engine.
// Replies are single lines prefixed "OK:" or "ERROR:".
func (s *Server) dispatch(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "ERROR: Empty command"
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "play", "p":
		seek := -1.0
		if len(args) > 0 {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil || v < 0 {
				return "ERROR: Invalid seek position"
			}
			seek = v
		}
		if err := s.engine.Play(seek); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: Play"

	case "pause", "ps":
		if err := s.engine.Pause(); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: Pause"

	case "resume", "r":
		if err := s.engine.Resume(); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: Resume"

	case "stop", "s":
		if err := s.engine.Stop(); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: Stop"

	case "status":
		return "OK: " + s.engine.StateValue().String()

	case "position", "pos":
		return fmt.Sprintf("OK: %.3f", s.engine.Position())

	case "duration":
		return fmt.Sprintf("OK: %.3f", s.engine.Duration())

	case "volume":
		if len(args) != 1 {
			return "ERROR: Invalid volume value"
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "ERROR: Invalid volume value"
		}
		if err := s.engine.SetVolume(v); err != nil {
			return "ERROR: Invalid volume value"
		}
		return fmt.Sprintf("OK: Volume set to %g", v)

	case "seek":
		if len(args) != 1 {
			return "ERROR: Failed to seek"
		}
		sec, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "ERROR: Failed to seek"
		}
		if err := s.engine.Seek(sec); err != nil {
			return "ERROR: Failed to seek"
		}
		return fmt.Sprintf("OK: Seeked to %g", sec)

	case "loop":
		if len(args) != 1 {
			return "ERROR: Invalid loop mode"
		}
		mode := strings.ToLower(args[0])
		if err := s.engine.SetLoopMode(mode); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return fmt.Sprintf("OK: Loop mode set to %s", mode)

	case "load":
		if len(args) == 0 {
			return "ERROR: Failed to load (no path given)"
		}
		// Paths may contain spaces; everything after the verb is the path.
		path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd), fields[0]))
		if err := s.engine.Load(path); err != nil {
			return fmt.Sprintf("ERROR: Failed to load %s", path)
		}
		return fmt.Sprintf("OK: Loaded %s", path)

	case "state":
		data, err := json.Marshal(s.engine.Snapshot())
		if err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "OK: " + string(data)

	case "quit":
		s.engine.Stop()
		s.doneOnce.Do(func() { close(s.done) })
		return "OK: Quitting"

	default:
		return fmt.Sprintf("ERROR: Unknown command '%s'", verb)
	}
}
