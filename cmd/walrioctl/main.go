package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/TAPSOSS/walrio/internal/client"
	"github.com/TAPSOSS/walrio/internal/config"
	"github.com/TAPSOSS/walrio/internal/protocol"
)

var (
	socketPath = pflag.String("socket", "", "Daemon socket path (default: auto-discover)")
	configPath = pflag.String("config", config.DefaultConfigPath(), "Path to configuration file")
	wait       = pflag.Bool("wait", false, "Wait for a daemon to appear instead of failing")
	repeatMode = pflag.String("repeat", "", "Queue session repeat mode: off, track, queue")
	shuffle    = pflag.Bool("shuffle", false, "Queue session shuffle")
	startIndex = pflag.Int("start", 0, "Queue session starting track index")
	volume     = pflag.Float64("volume", -1, "Set volume before the queue session starts")
)

// passthrough verbs are sent to the daemon as-is.
var passthrough = map[string]bool{
	"play": true, "p": true,
	"pause": true, "ps": true,
	"resume": true, "r": true,
	"stop": true, "s": true,
	"status": true, "position": true, "pos": true, "duration": true,
	"volume": true, "seek": true, "loop": true, "load": true,
	"state": true, "quit": true,
}

func main() {
	pflag.Usage = usage
	pflag.Parse()
	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	verb := strings.ToLower(args[0])

	c, err := connect()
	if err != nil {
		log.Fatalf("%v", err)
	}

	switch {
	case passthrough[verb]:
		reply, err := c.Command(strings.Join(args, " "))
		if err != nil {
			log.Fatalf("Command failed: %v", err)
		}
		fmt.Println(reply)
		if !protocol.IsOK(reply) {
			os.Exit(1)
		}

	case verb == "events":
		if err := streamEvents(c); err != nil {
			log.Fatalf("%v", err)
		}

	case verb == "queue":
		if err := runQueueSession(c, args[1:]); err != nil {
			log.Fatalf("Queue session failed: %v", err)
		}

	case verb == "interactive":
		if err := runShell(c); err != nil {
			log.Fatalf("%v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", verb)
		usage()
		os.Exit(1)
	}
}

// connect resolves the daemon endpoint from the --socket flag or by
// discovery.
func connect() (*client.Client, error) {
	if *socketPath != "" {
		return client.New(*socketPath), nil
	}
	if *wait {
		path, err := client.WaitForSocket()
		if err != nil {
			return nil, err
		}
		return client.New(path), nil
	}
	return client.Discover()
}

// streamEvents prints the daemon's event stream until interrupted.
func streamEvents(c *client.Client) error {
	stop := make(chan struct{})
	events, err := c.Subscribe(stop)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			close(stop)
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			line, err := ev.Encode()
			if err != nil {
				continue
			}
			os.Stdout.Write(line)
		}
	}
}

func usage() {
	prog := os.Args[0]
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n", prog)
	fmt.Fprintf(os.Stderr, "\nPlayer commands:\n")
	fmt.Fprintf(os.Stderr, "  play | pause | resume | stop      Transport control\n")
	fmt.Fprintf(os.Stderr, "  load <file>                       Load a file into the player\n")
	fmt.Fprintf(os.Stderr, "  seek <seconds>                    Seek within the current file\n")
	fmt.Fprintf(os.Stderr, "  volume <0.0-1.0>                  Set volume\n")
	fmt.Fprintf(os.Stderr, "  loop <none|N|infinite>            Set intra-track loop mode\n")
	fmt.Fprintf(os.Stderr, "  status | position | duration      Query playback\n")
	fmt.Fprintf(os.Stderr, "  state                             Dump full player state as JSON\n")
	fmt.Fprintf(os.Stderr, "  quit                              Shut the daemon down\n")
	fmt.Fprintf(os.Stderr, "\nClient modes:\n")
	fmt.Fprintf(os.Stderr, "  events                            Stream daemon events as JSON lines\n")
	fmt.Fprintf(os.Stderr, "  queue <file> [file...]            Play a queue of files through the daemon\n")
	fmt.Fprintf(os.Stderr, "  interactive                       Interactive control shell\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	pflag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s load /music/song.flac && %s play\n", prog, prog)
	fmt.Fprintf(os.Stderr, "  %s --repeat queue --shuffle queue /music/*.mp3\n", prog)
	fmt.Fprintf(os.Stderr, "  %s events | jq .event\n", prog)
}
