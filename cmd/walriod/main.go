package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TAPSOSS/walrio/internal/config"
	"github.com/TAPSOSS/walrio/internal/daemon"
	"github.com/TAPSOSS/walrio/internal/engine"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath(), "Path to configuration file")
	playFile   = flag.String("play", "", "Load and immediately play a file")
	volume     = flag.Float64("volume", -1, "Initial volume 0.0-1.0 (overrides config)")
	loopMode   = flag.String("loop", "", "Initial loop mode: none, N, or infinite (overrides config)")
	logFile    = flag.String("log-file", "", "Write logs to file instead of stderr")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *logFile == "" {
		*logFile = cfg.Daemon.LogFile
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	// Flag overrides on top of config
	if *volume >= 0 {
		cfg.Playback.Volume = *volume
	}
	if *loopMode != "" {
		cfg.Playback.LoopMode = *loopMode
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	// Create the playback engine
	eng := engine.New(engine.NewBeepPipeline)
	defer eng.Close()

	if err := eng.SetVolume(cfg.Playback.Volume); err != nil {
		log.Fatalf("Failed to set volume: %v", err)
	}
	if err := eng.SetLoopMode(cfg.Playback.LoopMode); err != nil {
		log.Fatalf("Failed to set loop mode: %v", err)
	}

	// Start the control server
	server := daemon.NewServer(eng)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start control server: %v", err)
	}
	defer server.Stop()

	log.Printf("Player daemon running (pid %d)", os.Getpid())

	// A positional file works the same as -play.
	if *playFile == "" && flag.NArg() > 0 {
		*playFile = flag.Arg(0)
	}
	if *playFile != "" {
		if err := eng.Load(*playFile); err != nil {
			log.Fatalf("Failed to load %s: %v", *playFile, err)
		}
		if err := eng.Play(-1); err != nil {
			log.Fatalf("Failed to start playback: %v", err)
		}
	}

	// Wait for interrupt signal or a quit command
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Printf("\nShutting down...")
	case <-server.Done():
		log.Printf("Quit command received, shutting down...")
	}

	if err := eng.Stop(); err != nil {
		log.Printf("Error stopping playback: %v", err)
	}
}
