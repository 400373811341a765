package metadata

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/TAPSOSS/walrio/internal/queue"
)

// Lookup probes an audio file with ffprobe and builds a Track from its
// tags. Front ends call this before inserting into the queue; playback
// itself never needs it.
func Lookup(path string) (*queue.Track, error) {
	tags, err := probeTags(path)
	if err != nil {
		return nil, err
	}

	track := &queue.Track{
		URL:         path,
		Title:       tags["title"],
		Artist:      tags["artist"],
		Album:       tags["album"],
		AlbumArtist: tags["album_artist"],
	}
	if track.AlbumArtist == "" {
		track.AlbumArtist = tags["albumartist"]
	}
	if d, err := strconv.ParseFloat(tags["duration"], 64); err == nil {
		track.Duration = d
	}
	track.Year = parseYear(tags["date"])
	if track.Year == 0 {
		track.Year = parseYear(tags["year"])
	}
	return track, nil
}

// probeTags extracts format tags plus duration from a file using ffprobe
func probeTags(source string) (map[string]string, error) {
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file does not exist: %s", source)
		}
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-print_format", "default=noprint_wrappers=1",
		"-show_entries", "format_tags",
		source,
	)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nstderr: %s", err, stderr.String())
	}

	tags := parseTagOutput(out.String())

	// Duration lives under format, not format_tags
	cmd = exec.Command("ffprobe",
		"-v", "error",
		"-print_format", "default=noprint_wrappers=1:nokey=1",
		"-show_entries", "format=duration",
		source,
	)

	out.Reset()
	stderr.Reset()
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err == nil {
		if duration := strings.TrimSpace(out.String()); duration != "" && duration != "N/A" {
			tags["duration"] = duration
		}
	}

	return tags, nil
}

// parseTagOutput turns ffprobe's TAG:key=value lines into a lowercase map
func parseTagOutput(output string) map[string]string {
	tags := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Split on first '=' to handle values that contain '='
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.ToLower(strings.TrimPrefix(parts[0], "TAG:"))
		value := strings.TrimSpace(parts[1])

		if value != "" {
			tags[key] = value
		}
	}
	return tags
}

// parseYear pulls the year out of a date tag, which may be "2019",
// "2019-03-01", or empty.
func parseYear(date string) int {
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}
