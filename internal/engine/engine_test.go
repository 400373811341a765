package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TAPSOSS/walrio/internal/protocol"
)

// fakePipeline simulates a decode/render instance so the state machine
// can be exercised without an audio device.
type fakePipeline struct {
	mu      sync.Mutex
	onEOS   func()
	playing bool
	pos     time.Duration
	dur     time.Duration
	vol     float64
	closed  bool
	plays   int
}

func (f *fakePipeline) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	f.plays++
	return nil
}

func (f *fakePipeline) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakePipeline) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
}

func (f *fakePipeline) Seek(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = d
	return nil
}

func (f *fakePipeline) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vol = v
}

func (f *fakePipeline) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakePipeline) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dur
}

func (f *fakePipeline) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// finish simulates the stream playing to its end.
func (f *fakePipeline) finish() {
	f.mu.Lock()
	f.pos = f.dur
	eos := f.onEOS
	f.mu.Unlock()
	eos()
}

type fakeFactory struct {
	mu        sync.Mutex
	pipelines []*fakePipeline
}

func (ff *fakeFactory) build(path string, onEOS func()) (Pipeline, error) {
	p := &fakePipeline{onEOS: onEOS, dur: 30 * time.Second}
	ff.mu.Lock()
	ff.pipelines = append(ff.pipelines, p)
	ff.mu.Unlock()
	return p, nil
}

func (ff *fakeFactory) last() *fakePipeline {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.pipelines[len(ff.pipelines)-1]
}

type eventCollector struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (c *eventCollector) sink(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) snapshot() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Event, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor polls until at least n events arrived.
func (c *eventCollector) waitFor(t *testing.T, n int) []protocol.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		evs := c.snapshot()
		if len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d: %v", n, len(c.snapshot()), c.snapshot())
	return nil
}

func tempAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(t *testing.T) (*Engine, *fakeFactory, *eventCollector) {
	t.Helper()
	ff := &fakeFactory{}
	col := &eventCollector{}
	e := New(ff.build)
	e.SetEventSink(col.sink)
	t.Cleanup(e.Close)
	return e, ff, col
}

func TestLoadEmitsSongLoaded(t *testing.T) {
	e, ff, col := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	evs := col.waitFor(t, 1)
	if evs[0].Event != protocol.EventSongLoaded {
		t.Fatalf("expected %s, got %s", protocol.EventSongLoaded, evs[0].Event)
	}
	if got := evs[0].String("file"); got != path {
		t.Errorf("file = %q, want %q", got, path)
	}
	if e.StateValue() != StateStopped {
		t.Errorf("state after load = %v, want Stopped", e.StateValue())
	}
	if len(ff.pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %d", len(ff.pipelines))
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	e, ff, _ := newTestEngine(t)
	if err := e.Load("/nonexistent/file.mp3"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(ff.pipelines) != 0 {
		t.Errorf("pipeline built for missing file")
	}
}

func TestLoadReplacesPipeline(t *testing.T) {
	e, ff, _ := newTestEngine(t)
	a := tempAudioFile(t, "a.mp3")
	b := tempAudioFile(t, "b.mp3")

	if err := e.Load(a); err != nil {
		t.Fatal(err)
	}
	first := ff.last()
	if err := e.Load(b); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Error("previous pipeline not closed on reload")
	}
	if e.Snapshot().CurrentFile != b {
		t.Errorf("current file = %q, want %q", e.Snapshot().CurrentFile, b)
	}
}

func TestPlayPauseResumeStop(t *testing.T) {
	e, ff, _ := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}

	if err := e.Pause(); err == nil {
		t.Error("pause before play should fail")
	}
	if err := e.Resume(); err == nil {
		t.Error("resume before pause should fail")
	}

	if err := e.Play(-1); err != nil {
		t.Fatalf("play: %v", err)
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.StateValue())
	}

	if err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if e.StateValue() != StatePaused {
		t.Fatalf("state = %v, want Paused", e.StateValue())
	}
	if ff.last().playing {
		t.Error("pipeline still playing while paused")
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.StateValue())
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if e.StateValue() != StateStopped {
		t.Fatalf("state = %v, want Stopped", e.StateValue())
	}
	if got := ff.last().Position(); got != 0 {
		t.Errorf("position after stop = %v, want 0", got)
	}
	// Stop is idempotent.
	if err := e.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestPlayWhilePausedResumesWithoutRestart(t *testing.T) {
	e, ff, _ := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	if err := e.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.StateValue())
	}
	if ff.last().plays != 1 {
		t.Errorf("play count = %d, want 1 (resume must not requeue)", ff.last().plays)
	}
}

func TestPlayWithSeekPosition(t *testing.T) {
	e, ff, col := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(12.5); err != nil {
		t.Fatal(err)
	}
	if got := ff.last().Position(); got != secondsToDuration(12.5) {
		t.Errorf("position = %v, want 12.5s", got)
	}
	evs := col.waitFor(t, 2)
	start := evs[1]
	if start.Event != protocol.EventSongStarting {
		t.Fatalf("second event = %s, want %s", start.Event, protocol.EventSongStarting)
	}
	if got := start.Float("seek_position"); got != 12.5 {
		t.Errorf("seek_position = %v, want 12.5", got)
	}
	if start.Bool("is_repeat") {
		t.Error("fresh playback flagged as repeat")
	}
}

func TestSeekValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Seek(5); err == nil {
		t.Error("seek with no file should fail")
	}
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Seek(-1); err == nil {
		t.Error("negative seek should fail")
	}
	if err := e.Seek(31); err == nil {
		t.Error("seek past duration should fail")
	}
	if err := e.Seek(10); err != nil {
		t.Errorf("valid seek: %v", err)
	}
}

func TestVolume(t *testing.T) {
	e, ff, _ := newTestEngine(t)
	if err := e.SetVolume(1.5); err == nil {
		t.Error("volume above 1.0 should fail")
	}
	if err := e.SetVolume(-0.1); err == nil {
		t.Error("negative volume should fail")
	}
	if err := e.SetVolume(0.4); err != nil {
		t.Fatal(err)
	}
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	// Volume set before load applies to the new pipeline.
	if got := ff.last().vol; got != 0.4 {
		t.Errorf("pipeline volume = %v, want 0.4", got)
	}
}

func TestLoopModeValidation(t *testing.T) {
	for _, mode := range []string{"none", "infinite", "1", "17"} {
		if err := ValidateLoopMode(mode); err != nil {
			t.Errorf("ValidateLoopMode(%q) = %v, want nil", mode, err)
		}
	}
	for _, mode := range []string{"", "0", "-3", "twice", "inf"} {
		if err := ValidateLoopMode(mode); err == nil {
			t.Errorf("ValidateLoopMode(%q) = nil, want error", mode)
		}
	}
}

// Loop mode "2" plays the track three times in total: the original pass
// plus two repeats, each repeat announced as a starting event before the
// final completion.
func TestLoopCountedRepeats(t *testing.T) {
	e, ff, col := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.SetLoopMode("2"); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	col.waitFor(t, 2) // song_loaded, song_starting

	p := ff.last()
	p.finish()
	evs := col.waitFor(t, 4) // + song_finished, song_starting(repeat 1)
	if evs[2].Event != protocol.EventSongFinished {
		t.Fatalf("event 2 = %s, want %s", evs[2].Event, protocol.EventSongFinished)
	}
	if evs[3].Event != protocol.EventSongStarting || !evs[3].Bool("is_repeat") {
		t.Fatalf("event 3 = %+v, want repeat song_starting", evs[3])
	}
	if got := evs[3].Float("repeat_count"); got != 1 {
		t.Errorf("repeat_count = %v, want 1", got)
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing during loop", e.StateValue())
	}
	if got := p.Position(); got != 0 {
		t.Errorf("position after loop rewind = %v, want 0", got)
	}

	p.finish()
	col.waitFor(t, 6) // + song_finished, song_starting(repeat 2)

	p.finish()
	evs = col.waitFor(t, 8) // + song_finished, playback_complete
	last := evs[len(evs)-1]
	if last.Event != protocol.EventPlaybackComplete {
		t.Fatalf("final event = %s, want %s", last.Event, protocol.EventPlaybackComplete)
	}
	if got := last.Float("total_repeats"); got != 2 {
		t.Errorf("total_repeats = %v, want 2", got)
	}
	if e.StateValue() != StateFinished {
		t.Fatalf("state = %v, want Finished", e.StateValue())
	}
	// Same pipeline throughout: no reload between repeats.
	if len(ff.pipelines) != 1 {
		t.Errorf("pipelines built = %d, want 1", len(ff.pipelines))
	}
	// The finished pipeline stays queryable at its end position.
	if got := e.Position(); got != 30 {
		t.Errorf("position after finish = %v, want 30", got)
	}
}

func TestLoopNoneFinishesImmediately(t *testing.T) {
	e, ff, col := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	col.waitFor(t, 2)

	ff.last().finish()
	evs := col.waitFor(t, 4)
	if evs[2].Event != protocol.EventSongFinished {
		t.Fatalf("event 2 = %s, want %s", evs[2].Event, protocol.EventSongFinished)
	}
	if evs[3].Event != protocol.EventPlaybackComplete {
		t.Fatalf("event 3 = %s, want %s", evs[3].Event, protocol.EventPlaybackComplete)
	}
	if got := evs[3].Float("total_repeats"); got != 0 {
		t.Errorf("total_repeats = %v, want 0", got)
	}
}

// Playing again from Finished restarts from zero with repeats reset.
func TestPlayAfterFinishedRestarts(t *testing.T) {
	e, ff, col := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	col.waitFor(t, 2)
	ff.last().finish()
	col.waitFor(t, 4)

	if err := e.Play(-1); err != nil {
		t.Fatalf("play after finish: %v", err)
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.StateValue())
	}
	snap := e.Snapshot()
	if snap.RepeatCount != 0 {
		t.Errorf("repeat count after restart = %d, want 0", snap.RepeatCount)
	}
	if got := ff.last().Position(); got != 0 {
		t.Errorf("position after restart = %v, want 0", got)
	}
}

// End-of-stream signals in the first second of playback are backend
// noise and must not end the track.
func TestEOSDebounce(t *testing.T) {
	e, ff, col := newTestEngine(t)
	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	col.waitFor(t, 2)

	p := ff.last()
	p.mu.Lock()
	p.pos = 500 * time.Millisecond
	eos := p.onEOS
	p.mu.Unlock()
	eos()

	time.Sleep(50 * time.Millisecond)
	if got := len(col.snapshot()); got != 2 {
		t.Fatalf("events after spurious EOS = %d, want 2", got)
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.StateValue())
	}
}

// A callback from a pipeline that was replaced by a later load is ignored.
func TestStaleEOSIgnored(t *testing.T) {
	e, ff, col := newTestEngine(t)
	a := tempAudioFile(t, "a.mp3")
	b := tempAudioFile(t, "b.mp3")
	if err := e.Load(a); err != nil {
		t.Fatal(err)
	}
	old := ff.last()
	if err := e.Load(b); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	col.waitFor(t, 3) // loaded a, loaded b, starting b

	old.finish()
	time.Sleep(50 * time.Millisecond)
	for _, ev := range col.snapshot() {
		if ev.Event == protocol.EventSongFinished {
			t.Fatalf("stale pipeline produced song_finished: %+v", ev)
		}
	}
	if e.StateValue() != StatePlaying {
		t.Fatalf("state = %v, want Playing", e.StateValue())
	}
}

func TestSnapshot(t *testing.T) {
	e, _, _ := newTestEngine(t)
	snap := e.Snapshot()
	if snap.CurrentFile != "" || snap.IsPlaying || snap.Duration != 0 {
		t.Errorf("empty engine snapshot = %+v", snap)
	}
	if snap.LoopMode != LoopNone {
		t.Errorf("default loop mode = %q, want %q", snap.LoopMode, LoopNone)
	}
	if snap.Volume != 1.0 {
		t.Errorf("default volume = %v, want 1.0", snap.Volume)
	}

	path := tempAudioFile(t, "a.mp3")
	if err := e.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(-1); err != nil {
		t.Fatal(err)
	}
	snap = e.Snapshot()
	if !snap.IsPlaying || snap.IsPaused || snap.IsFinished {
		t.Errorf("snapshot flags = %+v, want playing only", snap)
	}
	if snap.Duration != 30 {
		t.Errorf("duration = %v, want 30", snap.Duration)
	}
}
