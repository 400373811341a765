package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/TAPSOSS/walrio/internal/protocol"
)

// State is the transport state of the engine.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateFinished
)

// String returns the protocol status word for the state.
func (s State) String() string {
	switch s {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateFinished:
		return "Finished"
	default:
		return "Stopped"
	}
}

// Loop modes. A numeric string ("3") repeats the track that many extra
// times. Loop mode is a transport-local feature distinct from queue-level
// repeat: callers that want the queue to own advancement set "none".
const (
	LoopNone     = "none"
	LoopInfinite = "infinite"
)

// ValidateLoopMode checks a loop mode string.
func ValidateLoopMode(mode string) error {
	if mode == LoopNone || mode == LoopInfinite {
		return nil
	}
	n, err := strconv.Atoi(mode)
	if err != nil || n <= 0 {
		return fmt.Errorf("loop mode must be 'none', a positive number, or 'infinite'")
	}
	return nil
}

// Session is a snapshot of the player state.
type Session struct {
	CurrentFile string  `json:"current_file"`
	IsPlaying   bool    `json:"is_playing"`
	IsPaused    bool    `json:"is_paused"`
	IsFinished  bool    `json:"is_finished"`
	Position    float64 `json:"position"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
	LoopMode    string  `json:"loop_mode"`
	RepeatCount int     `json:"repeat_count"`
}

// eosSignal carries an end-of-stream notification from a pipeline callback
// to the bus watcher. The generation lets the watcher drop callbacks from
// playback sessions that were already replaced.
type eosSignal struct {
	gen uint64
}

// Engine wraps exactly one decode/render pipeline instance, rebuilt per
// load. All mutating operations and end-of-stream handling share one
// mutex: command handlers and the bus watcher touch the same state.
type Engine struct {
	mu sync.Mutex

	factory  PipelineFactory
	pipeline Pipeline

	currentFile string
	state       State
	volume      float64
	loopMode    string
	repeatCount int
	gen         uint64

	sink func(protocol.Event)

	eosCh chan eosSignal
	quit  chan struct{}
	once  sync.Once
}

// New creates an engine using factory to build pipelines, and starts the
// bus watcher.
func New(factory PipelineFactory) *Engine {
	e := &Engine{
		factory:  factory,
		state:    StateStopped,
		volume:   1.0,
		loopMode: LoopNone,
		eosCh:    make(chan eosSignal, 4),
		quit:     make(chan struct{}),
	}
	go e.watchBus()
	return e
}

// SetEventSink registers the callback receiving lifecycle events.
func (e *Engine) SetEventSink(sink func(protocol.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

func (e *Engine) emit(name string, data map[string]interface{}) {
	if e.sink != nil {
		e.sink(protocol.NewEvent(name, data))
	}
}

// watchBus drains end-of-stream notifications. The ticker wake-up exists
// so the loop observes shutdown within its poll interval instead of
// blocking indefinitely.
func (e *Engine) watchBus() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.quit:
			return
		case sig := <-e.eosCh:
			e.handleEOS(sig)
		case <-ticker.C:
		}
	}
}

// Load replaces the pipeline with a fresh one for path. Failure retains
// the prior session state.
func (e *Engine) Load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("not a file: %s", path)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	gen := e.gen
	p, err := e.factory(abs, func() {
		select {
		case e.eosCh <- eosSignal{gen: gen}:
		default:
			log.Printf("engine: dropped EOS signal (bus full)")
		}
	})
	if err != nil {
		e.gen-- // keep the old generation live
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	if e.pipeline != nil {
		e.pipeline.Close()
	}
	e.pipeline = p
	e.pipeline.SetVolume(e.volume)
	e.currentFile = abs
	e.state = StateStopped
	e.repeatCount = 0

	e.emit(protocol.EventSongLoaded, map[string]interface{}{"file": abs})
	log.Printf("Loaded: %s", path)
	return nil
}

// Play starts playback, optionally from a seek position in seconds (pass a
// negative value for "from the current position"). A paused engine
// resumes; a finished one restarts from zero with the repeat count reset.
func (e *Engine) Play(seekPos float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil {
		return fmt.Errorf("no file loaded")
	}

	switch e.state {
	case StatePlaying:
		return nil
	case StatePaused:
		if seekPos >= 0 {
			if err := e.pipeline.Seek(secondsToDuration(seekPos)); err != nil {
				return fmt.Errorf("failed to seek: %w", err)
			}
		}
		e.pipeline.Resume()
		e.state = StatePlaying
		return nil
	case StateFinished:
		// Implicit restart: back to zero, repeats reset.
		if err := e.pipeline.Seek(0); err != nil {
			return fmt.Errorf("failed to restart: %w", err)
		}
		e.repeatCount = 0
	}

	if seekPos >= 0 {
		if err := e.pipeline.Seek(secondsToDuration(seekPos)); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
	}
	e.repeatCount = 0
	if err := e.pipeline.Play(); err != nil {
		e.state = StateStopped
		e.emit(protocol.EventPlaybackError, map[string]interface{}{
			"file":  e.currentFile,
			"error": err.Error(),
		})
		return fmt.Errorf("failed to start playback: %w", err)
	}
	e.state = StatePlaying

	data := map[string]interface{}{
		"file":      e.currentFile,
		"duration":  e.pipeline.Duration().Seconds(),
		"is_repeat": false,
	}
	if seekPos > 0 {
		data["seek_position"] = seekPos
	}
	e.emit(protocol.EventSongStarting, data)
	return nil
}

// Pause pauses playback. Pausing while not playing is an error reply at
// the protocol layer but leaves state untouched.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying || e.pipeline == nil {
		return fmt.Errorf("player is not currently playing")
	}
	e.pipeline.Pause()
	e.state = StatePaused
	return nil
}

// Resume resumes paused playback.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused || e.pipeline == nil {
		return fmt.Errorf("player is not currently paused")
	}
	e.pipeline.Resume()
	e.state = StatePlaying
	return nil
}

// Stop halts playback and rewinds. Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline != nil {
		e.pipeline.Pause()
		if err := e.pipeline.Seek(0); err != nil {
			log.Printf("engine: rewind on stop failed: %v", err)
		}
	}
	e.state = StateStopped
	return nil
}

// Seek moves to a position in seconds within the current file.
func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil {
		return fmt.Errorf("no file loaded")
	}
	if seconds < 0 {
		return fmt.Errorf("seek position cannot be negative")
	}
	if d := e.pipeline.Duration().Seconds(); d > 0 && seconds > d {
		return fmt.Errorf("seek position %.1fs exceeds duration %.1fs", seconds, d)
	}
	return e.pipeline.Seek(secondsToDuration(seconds))
}

// SetVolume sets playback volume in [0, 1].
func (e *Engine) SetVolume(v float64) error {
	if v < 0.0 || v > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
	if e.pipeline != nil {
		e.pipeline.SetVolume(v)
	}
	return nil
}

// SetLoopMode sets the intra-track loop mode.
func (e *Engine) SetLoopMode(mode string) error {
	if err := ValidateLoopMode(mode); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// Repeat count resets on the next fresh playback, not here.
	e.loopMode = mode
	return nil
}

// Position returns the current position in seconds. Reads share the
// dispatch mutex so a concurrent command never exposes a half-mutated
// pipeline.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline == nil {
		return 0
	}
	return e.pipeline.Position().Seconds()
}

// Duration returns the duration of the loaded file in seconds.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline == nil {
		return 0
	}
	return e.pipeline.Duration().Seconds()
}

// StateValue returns the current transport state.
func (e *Engine) StateValue() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns the full player session state.
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Session{
		CurrentFile: e.currentFile,
		IsPlaying:   e.state == StatePlaying,
		IsPaused:    e.state == StatePaused,
		IsFinished:  e.state == StateFinished,
		Volume:      e.volume,
		LoopMode:    e.loopMode,
		RepeatCount: e.repeatCount,
	}
	if e.pipeline != nil {
		s.Position = e.pipeline.Position().Seconds()
		s.Duration = e.pipeline.Duration().Seconds()
	}
	return s
}

// handleEOS resolves an end-of-stream notification: debounce spurious
// signals, announce the finish, then either loop the same pipeline
// in-place or transition to Finished. The pipeline stays queryable at its
// end position until the next load or play.
func (e *Engine) handleEOS(sig eosSignal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sig.gen != e.gen || e.pipeline == nil {
		return // stale callback from a replaced pipeline
	}
	if e.state != StatePlaying {
		return
	}
	// Some backends fire EOS immediately after a seek back to zero.
	if e.pipeline.Position() < time.Second {
		return
	}

	e.emit(protocol.EventSongFinished, map[string]interface{}{
		"file":         e.currentFile,
		"repeat_count": e.repeatCount,
		"loop_mode":    e.loopMode,
	})

	if e.shouldLoop() {
		e.repeatCount++
		e.emit(protocol.EventSongStarting, map[string]interface{}{
			"file":         e.currentFile,
			"is_repeat":    true,
			"repeat_count": e.repeatCount,
		})
		// Same pipeline, no reload: rewind and requeue for a gapless
		// intra-track repeat.
		if err := e.pipeline.Seek(0); err != nil {
			log.Printf("engine: loop rewind failed: %v", err)
			e.state = StateStopped
			e.emit(protocol.EventPlaybackError, map[string]interface{}{
				"file":  e.currentFile,
				"error": err.Error(),
			})
			return
		}
		if err := e.pipeline.Play(); err != nil {
			log.Printf("engine: loop restart failed: %v", err)
			e.state = StateStopped
			e.emit(protocol.EventPlaybackError, map[string]interface{}{
				"file":  e.currentFile,
				"error": err.Error(),
			})
		}
		return
	}

	e.state = StateFinished
	e.emit(protocol.EventPlaybackComplete, map[string]interface{}{
		"file":          e.currentFile,
		"total_repeats": e.repeatCount,
	})
}

func (e *Engine) shouldLoop() bool {
	if e.loopMode == LoopInfinite {
		return true
	}
	if n, err := strconv.Atoi(e.loopMode); err == nil {
		return e.repeatCount < n
	}
	return false
}

// Close stops the bus watcher and releases the pipeline.
func (e *Engine) Close() {
	e.once.Do(func() { close(e.quit) })
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline != nil {
		e.pipeline.Close()
		e.pipeline = nil
	}
	e.state = StateStopped
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
