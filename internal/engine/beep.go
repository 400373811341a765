package engine

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

// initSpeaker opens the audio device once for the process lifetime. All
// pipelines resample to this rate.
func initSpeaker(rate beep.SampleRate) error {
	speakerOnce.Do(func() {
		speakerRate = rate
		speakerErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	return speakerErr
}

// beepPipeline renders one file through the process-wide speaker mixer.
// The streamer chain is streamer -> resample -> volume -> ctrl, queued as
// a sequence ending in the drain callback.
type beepPipeline struct {
	mu sync.Mutex

	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	volume   *effects.Volume
	ctrl     *beep.Ctrl
	onEOS    func()

	queued bool
	closed bool
}

// NewBeepPipeline decodes path with the decoder matching its extension
// and prepares it for output.
func NewBeepPipeline(path string, onEOS func()) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if err := initSpeaker(format.SampleRate); err != nil {
		streamer.Close()
		f.Close()
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}

	var chain beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		chain = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}
	vol := &effects.Volume{Streamer: chain, Base: 2, Volume: 0}
	ctrl := &beep.Ctrl{Streamer: vol, Paused: true}

	return &beepPipeline{
		file:     f,
		streamer: streamer,
		format:   format,
		volume:   vol,
		ctrl:     ctrl,
		onEOS:    onEOS,
	}, nil
}

func (p *beepPipeline) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pipeline closed")
	}
	if !p.queued {
		p.queued = true
		speaker.Play(beep.Seq(p.ctrl, beep.Callback(p.drained)))
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// drained runs inside the speaker mixer when the sequence plays out. It
// must not touch speaker or pipeline locks directly, so the bookkeeping
// and the owner callback run on a fresh goroutine.
func (p *beepPipeline) drained() {
	go func() {
		p.mu.Lock()
		p.queued = false
		closed := p.closed
		p.mu.Unlock()
		if !closed && p.onEOS != nil {
			p.onEOS()
		}
	}()
}

func (p *beepPipeline) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
}

func (p *beepPipeline) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
}

func (p *beepPipeline) Seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pipeline closed")
	}
	speaker.Lock()
	defer speaker.Unlock()
	return p.streamer.Seek(p.format.SampleRate.N(d))
}

func (p *beepPipeline) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	speaker.Lock()
	if v <= 0 {
		p.volume.Silent = true
	} else {
		p.volume.Silent = false
		p.volume.Volume = math.Log2(v)
	}
	speaker.Unlock()
}

func (p *beepPipeline) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(pos)
}

func (p *beepPipeline) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.format.SampleRate.D(p.streamer.Len())
}

// Close detaches the pipeline from the mixer. The sequence is drained by
// nulling the ctrl target so the mixer drops it on its next pass; the
// resulting callback reports a stale generation and is ignored upstream.
func (p *beepPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	speaker.Lock()
	p.ctrl.Paused = false
	p.ctrl.Streamer = nil
	speaker.Unlock()
	p.streamer.Close()
	p.file.Close()
}