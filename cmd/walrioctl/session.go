package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TAPSOSS/walrio/internal/client"
	"github.com/TAPSOSS/walrio/internal/config"
	"github.com/TAPSOSS/walrio/internal/engine"
	"github.com/TAPSOSS/walrio/internal/metadata"
	"github.com/TAPSOSS/walrio/internal/protocol"
	"github.com/TAPSOSS/walrio/internal/queue"
)

// runQueueSession plays a list of files through the daemon, advancing the
// queue on playback_complete events. The queue owns progression, so the
// daemon's own loop mode is disabled. Track repeat is the exception: it
// maps to an infinite intra-track loop for gapless repetition.
func runQueueSession(c *client.Client, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files given")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *repeatMode != "" {
		cfg.Queue.RepeatMode = *repeatMode
	}
	if *shuffle {
		cfg.Queue.Shuffle = true
	}
	repeat, err := queue.ParseRepeatMode(cfg.Queue.RepeatMode)
	if err != nil {
		return err
	}

	tracks := make([]*queue.Track, 0, len(files))
	for _, file := range files {
		track, err := metadata.Lookup(file)
		if err != nil {
			// No tags is not fatal; queue the bare path.
			log.Printf("No metadata for %s: %v", file, err)
			track = &queue.Track{URL: file}
		}
		tracks = append(tracks, track)
	}

	m := queue.NewManager(tracks)
	m.SetRepeatMode(repeat)
	m.SetShuffle(cfg.Queue.Shuffle)
	if *startIndex != 0 && !m.SetCurrentIndex(*startIndex) {
		return fmt.Errorf("start index %d out of range", *startIndex)
	}

	if *volume >= 0 {
		if _, err := c.CommandOK(fmt.Sprintf("volume %g", *volume)); err != nil {
			return err
		}
	}

	loopMode := engine.LoopNone
	if repeat == queue.RepeatTrack {
		loopMode = engine.LoopInfinite
	}
	if _, err := c.CommandOK("loop " + loopMode); err != nil {
		return err
	}

	// Subscribe before the first play so no lifecycle event is missed.
	stop := make(chan struct{})
	defer close(stop)
	events, err := c.Subscribe(stop)
	if err != nil {
		return err
	}

	if !startTrack(c, m, cfg.Queue.SkipMissing) {
		return fmt.Errorf("no playable file in queue")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			log.Printf("\nStopping playback...")
			c.Command("stop")
			return nil

		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("lost connection to daemon")
			}
			switch ev.Event {
			case protocol.EventPlaybackComplete:
				if !advance(c, m, cfg.Queue.SkipMissing) {
					log.Printf("Queue finished")
					return nil
				}
			case protocol.EventPlaybackError:
				log.Printf("Playback error on %s: %s", ev.String("file"), ev.String("error"))
				if !advance(c, m, cfg.Queue.SkipMissing) {
					return fmt.Errorf("no playable file left in queue")
				}
			}
		}
	}
}

// startTrack plays the queue's current track, skipping ahead if its file
// has gone missing.
func startTrack(c *client.Client, m *queue.Manager, skipMissing bool) bool {
	track := m.CurrentSong()
	if track == nil {
		return false
	}
	if skipMissing && !track.Available() {
		if !m.NextTrackSkipMissing() {
			return false
		}
		track = m.CurrentSong()
	}
	return playTrack(c, track)
}

// advance moves to the next queue entry after a track finished.
func advance(c *client.Client, m *queue.Manager, skipMissing bool) bool {
	if skipMissing {
		ok, next := m.HandleSongFinished()
		if !ok {
			return false
		}
		return playTrack(c, next)
	}
	if !m.NextTrack() {
		return false
	}
	return playTrack(c, m.CurrentSong())
}

func playTrack(c *client.Client, track *queue.Track) bool {
	if track == nil {
		return false
	}
	if _, err := c.CommandOK("load " + track.FilePath()); err != nil {
		log.Printf("Failed to load %s: %v", track.DisplayName(), err)
		return false
	}
	if _, err := c.CommandOK("play"); err != nil {
		log.Printf("Failed to play %s: %v", track.DisplayName(), err)
		return false
	}
	log.Printf("Now playing: %s", track.DisplayName())
	return true
}
