package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TAPSOSS/walrio/internal/engine"
	"github.com/TAPSOSS/walrio/internal/protocol"
)

var (
	audioFile = flag.String("file", "", "Audio file to play (required)")
	loopMode  = flag.String("loop", "none", "Loop mode: none, N, or infinite")
	vol       = flag.Float64("volume", 1.0, "Volume 0.0-1.0")
)

func main() {
	flag.Parse()

	if *audioFile == "" {
		log.Fatal("Error: -file argument is required\n\nUsage: go run test_play_track.go -file <path> [-loop <mode>] [-volume <v>]\n\nExample:\n  go run test_play_track.go -file /path/to/audio.flac\n  go run test_play_track.go -file /path/to/audio.mp3 -loop 2")
	}

	log.Printf("=== Testing engine with single track ===")
	log.Printf("File: %s", *audioFile)
	log.Printf("Loop: %s", *loopMode)

	eng := engine.New(engine.NewBeepPipeline)
	defer eng.Close()

	done := make(chan struct{})
	eng.SetEventSink(func(ev protocol.Event) {
		log.Printf("Event: %s %v", ev.Event, ev.Data)
		if ev.Event == protocol.EventPlaybackComplete {
			close(done)
		}
	})

	if err := eng.SetVolume(*vol); err != nil {
		log.Fatalf("Failed to set volume: %v", err)
	}
	if err := eng.SetLoopMode(*loopMode); err != nil {
		log.Fatalf("Failed to set loop mode: %v", err)
	}
	if err := eng.Load(*audioFile); err != nil {
		log.Fatalf("Failed to load track: %v", err)
	}
	log.Printf("Duration: %.2fs", eng.Duration())

	if err := eng.Play(-1); err != nil {
		log.Fatalf("Failed to start playback: %v", err)
	}
	log.Printf("Playing...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		log.Printf("Playback completed successfully!")
	case <-sigChan:
		log.Printf("Interrupted, stopping...")
		eng.Stop()
	}
}
