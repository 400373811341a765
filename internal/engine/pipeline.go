package engine

import "time"

// Pipeline is a single decode/render instance for one audio file. The
// engine rebuilds the pipeline on every load; an intra-track loop reuses
// the same pipeline with a rewind and a fresh Play.
type Pipeline interface {
	// Play starts or requeues playback from the current position. After
	// the stream drains, the end-of-stream callback fires once per Play.
	Play() error
	// Pause suspends output without losing position.
	Pause()
	// Resume continues after Pause.
	Resume()
	// Seek moves to an absolute position.
	Seek(d time.Duration) error
	// SetVolume sets linear volume in [0, 1].
	SetVolume(v float64)
	Position() time.Duration
	Duration() time.Duration
	// Close releases the decoder. Any pending end-of-stream callback may
	// still fire afterwards and must be ignored by the owner.
	Close()
}

// PipelineFactory builds a pipeline for path. onEOS is invoked from a
// backend goroutine each time the stream plays to its end.
type PipelineFactory func(path string, onEOS func()) (Pipeline, error)
