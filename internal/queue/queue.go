package queue

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"
)

// RepeatMode controls what happens when the current track ends.
type RepeatMode string

const (
	RepeatOff   RepeatMode = "off"
	RepeatTrack RepeatMode = "track"
	RepeatQueue RepeatMode = "queue"
)

// ParseRepeatMode validates a repeat mode string.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(s) {
	case RepeatOff, RepeatTrack, RepeatQueue:
		return RepeatMode(s), nil
	}
	return "", fmt.Errorf("invalid repeat mode: %q", s)
}

// Manager orders tracks for playback with shuffle, repeat, and
// bidirectional history navigation.
//
// playbackHistory records every index left behind, enabling a universal
// previous button. forwardHistory records indices skipped by previous so a
// following next replays the exact path the user diverged from.
// forwardQueue is a precomputed permutation of not-recently-played indices:
// shuffle draws from it head-first, which guarantees every track plays once
// before any repeat within a cycle.
type Manager struct {
	mu sync.Mutex

	songs   []*Track
	current int

	repeat  RepeatMode
	shuffle bool

	playbackHistory []int
	forwardQueue    []int
	forwardHistory  []int

	rng *rand.Rand
}

// NewManager creates a manager over an initial track list (may be empty).
func NewManager(songs []*Track) *Manager {
	return &Manager{
		songs:  songs,
		repeat: RepeatOff,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRepeatMode changes the repeat mode. Mode changes preserve the forward
// queue so toggling repeat off resumes the predicted shuffle order.
func (m *Manager) SetRepeatMode(mode RepeatMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeat = mode
}

// RepeatModeValue returns the current repeat mode.
func (m *Manager) RepeatModeValue() RepeatMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repeat
}

// SetShuffle enables or disables shuffle. Shuffle only takes effect while
// repeat is off.
func (m *Manager) SetShuffle(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shuffle = enabled
}

// ShuffleEffective reports whether shuffle is actively used: shuffle
// requested AND repeat mode off.
func (m *Manager) ShuffleEffective() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuffleEffective()
}

func (m *Manager) shuffleEffective() bool {
	return m.shuffle && m.repeat == RepeatOff
}

// CurrentSong returns the track at the current index, or nil.
func (m *Manager) CurrentSong() *Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSong()
}

func (m *Manager) currentSong() *Track {
	if m.current >= 0 && m.current < len(m.songs) {
		return m.songs[m.current]
	}
	return nil
}

// CurrentIndex returns the current playback index.
func (m *Manager) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Len returns the number of tracks in the queue.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.songs)
}

// HasSongs reports whether the queue is non-empty.
func (m *Manager) HasSongs() bool {
	return m.Len() > 0
}

// Tracks returns a copy of the queue contents.
func (m *Manager) Tracks() []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Track, len(m.songs))
	copy(out, m.songs)
	return out
}

// NextTrack advances to the next track. Resolution order: forward history
// (replaying a path diverged from by previous), track repeat (stay put),
// queue repeat (wrap), effective shuffle (forward queue draw), sequential.
// Returns false when a sequential advance runs past the end; the caller
// decides whether that stops playback.
func (m *Manager) NextTrack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextTrack()
}

func (m *Manager) nextTrack() bool {
	if len(m.songs) == 0 {
		return false
	}

	// Forward history wins over everything: it restores the exact track
	// the user skipped away from with previous.
	if len(m.forwardHistory) > 0 {
		m.playbackHistory = append(m.playbackHistory, m.current)
		m.current = m.forwardHistory[len(m.forwardHistory)-1]
		m.forwardHistory = m.forwardHistory[:len(m.forwardHistory)-1]
		return true
	}

	if m.repeat == RepeatTrack {
		// Stay on the same track; no history push.
		return true
	}

	if m.repeat == RepeatQueue {
		m.playbackHistory = append(m.playbackHistory, m.current)
		m.current = (m.current + 1) % len(m.songs)
		return true
	}

	if m.shuffleEffective() {
		next := m.nextShuffleIndex()
		if len(m.forwardQueue) > 0 && next == m.forwardQueue[0] {
			m.forwardQueue = m.forwardQueue[1:]
		}
		m.playbackHistory = append(m.playbackHistory, m.current)
		m.current = next
		return true
	}

	// Sequential: a failed advance leaves the index on the last track.
	if m.current+1 >= len(m.songs) {
		return false
	}
	m.playbackHistory = append(m.playbackHistory, m.current)
	m.current++
	return true
}

// nextShuffleIndex returns the head of the forward queue, regenerating it
// when exhausted. The regenerated permutation covers indices absent from
// the last len(songs) history entries (excluding current); once all have
// been played recently it falls back to all indices except current.
func (m *Manager) nextShuffleIndex() int {
	if len(m.forwardQueue) > 0 {
		return m.forwardQueue[0]
	}

	recent := m.playbackHistory
	if len(recent) > len(m.songs) {
		recent = recent[len(recent)-len(m.songs):]
	}

	all := lo.Range(len(m.songs))
	unplayed := lo.Filter(all, func(i int, _ int) bool {
		return i != m.current && !lo.Contains(recent, i)
	})
	if len(unplayed) == 0 {
		unplayed = lo.Filter(all, func(i int, _ int) bool {
			return i != m.current
		})
	}
	if len(unplayed) == 0 {
		return m.current
	}

	m.rng.Shuffle(len(unplayed), func(i, j int) {
		unplayed[i], unplayed[j] = unplayed[j], unplayed[i]
	})
	m.forwardQueue = unplayed
	return m.forwardQueue[0]
}

// NextTrackSkipMissing advances like NextTrack but skips tracks whose files
// are missing on disk. Bounded by queue length so a queue of entirely
// missing files terminates. With track repeat active and the current file
// missing, the repeat is suspended for one advance rather than looping on a
// dead file forever.
func (m *Manager) NextTrackSkipMissing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.songs) == 0 {
		return false
	}

	if m.repeat == RepeatTrack {
		cur := m.currentSong()
		if cur != nil && !cur.Available() {
			m.repeat = RepeatOff
			ok := m.nextTrack()
			m.repeat = RepeatTrack
			return ok
		}
		return true
	}

	for attempts := 0; attempts < len(m.songs); attempts++ {
		if !m.nextTrack() {
			return false
		}
		if song := m.currentSong(); song != nil && song.Available() {
			return true
		}
	}
	return false
}

// PreviousTrack steps back through playback history. Returns false with no
// history or while track repeat is active (previous is undefined while
// intentionally looping one track). The index being left is pushed onto
// forward history so the next NextTrack restores it exactly.
func (m *Manager) PreviousTrack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.songs) == 0 || m.repeat == RepeatTrack {
		return false
	}
	if len(m.playbackHistory) == 0 {
		return false
	}

	m.forwardHistory = append(m.forwardHistory, m.current)
	m.current = m.playbackHistory[len(m.playbackHistory)-1]
	m.playbackHistory = m.playbackHistory[:len(m.playbackHistory)-1]
	return true
}

// SetCurrentIndex jumps to a specific track. A manual jump invalidates the
// precomputed shuffle prediction and any pending redo path, so both forward
// structures are cleared.
func (m *Manager) SetCurrentIndex(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.songs) {
		return false
	}
	if m.current != index {
		m.playbackHistory = append(m.playbackHistory, m.current)
	}
	m.current = index
	m.forwardQueue = nil
	m.forwardHistory = nil
	return true
}

// AddSong appends one track to the queue.
func (m *Manager) AddSong(t *Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs = append(m.songs, t)
}

// AddSongs appends multiple tracks and clears playback history, since the
// old history indexes a queue shape that no longer reflects the session.
func (m *Manager) AddSongs(tracks []*Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs = append(m.songs, tracks...)
	m.playbackHistory = nil
}

// RemoveSong deletes the track at index. Removing a track before the
// current one shifts the current index down; removing the current track at
// the end of the queue clamps the index to 0.
func (m *Manager) RemoveSong(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.songs) {
		return false
	}
	m.songs = append(m.songs[:index], m.songs[index+1:]...)
	if index < m.current {
		m.current--
	} else if index == m.current && m.current >= len(m.songs) {
		m.current = 0
	}
	// The navigation structures hold indices into the old queue shape;
	// a stale entry would later pop an out-of-range current index.
	m.playbackHistory = reindexAfterRemove(m.playbackHistory, index)
	m.forwardQueue = reindexAfterRemove(m.forwardQueue, index)
	m.forwardHistory = reindexAfterRemove(m.forwardHistory, index)
	return true
}

// reindexAfterRemove drops the removed index from a position list and
// shifts the entries behind it down one.
func reindexAfterRemove(indices []int, removed int) []int {
	out := indices[:0]
	for _, i := range indices {
		if i == removed {
			continue
		}
		if i > removed {
			i--
		}
		out = append(out, i)
	}
	return out
}

// ShuffleQueue physically reorders the track list, keeping the current
// track current at its new position.
func (m *Manager) ShuffleQueue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.songs) == 0 {
		return false
	}
	cur := m.currentSong()
	m.rng.Shuffle(len(m.songs), func(i, j int) {
		m.songs[i], m.songs[j] = m.songs[j], m.songs[i]
	})
	if cur != nil {
		for i, s := range m.songs {
			if s == cur {
				m.current = i
				break
			}
		}
	} else {
		m.current = 0
	}
	return true
}

// PlayRandomSong jumps to a random index without reordering the queue.
// Like any manual jump it clears the forward queue.
func (m *Manager) PlayRandomSong() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.songs) == 0 {
		return false
	}
	m.playbackHistory = append(m.playbackHistory, m.current)
	m.current = m.rng.Intn(len(m.songs))
	m.forwardQueue = nil
	return true
}

// Clear empties the queue and resets all navigation state.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs = nil
	m.current = 0
	m.playbackHistory = nil
	m.forwardQueue = nil
	m.forwardHistory = nil
}

// HandleSongFinished advances past a naturally finished track, skipping
// missing files. Returns (false, nil) when the queue is exhausted; queue
// exhaustion is a quiet stop, not an error.
func (m *Manager) HandleSongFinished() (bool, *Track) {
	if m.NextTrackSkipMissing() {
		if next := m.CurrentSong(); next != nil {
			return true, next
		}
	}
	return false, nil
}

// ForwardState exposes the forward queue and forward history lengths.
// Zero/zero after a manual jump is part of the navigation contract.
func (m *Manager) ForwardState() (forwardQueue, forwardHistory int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forwardQueue), len(m.forwardHistory)
}
