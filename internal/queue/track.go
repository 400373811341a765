package queue

import (
	"os"
	"strings"
)

// Track represents a single playable item. URL is its identity and never
// changes; FileMissing is flipped in place as the file disappears or
// reappears on disk.
type Track struct {
	URL         string
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Year        int
	Duration    float64 // seconds
	FileMissing bool
}

// FilePath returns the local filesystem path for the track, stripping a
// file:// prefix if present.
func (t *Track) FilePath() string {
	return strings.TrimPrefix(t.URL, "file://")
}

// Available probes the filesystem and updates FileMissing to match.
func (t *Track) Available() bool {
	_, err := os.Stat(t.FilePath())
	t.FileMissing = err != nil
	return !t.FileMissing
}

// DisplayName returns a human-readable label for log and UI output.
func (t *Track) DisplayName() string {
	if t.Title == "" {
		return t.FilePath()
	}
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}
