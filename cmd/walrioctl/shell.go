package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/TAPSOSS/walrio/internal/client"
)

var shellCompleter = readline.NewPrefixCompleter(
	readline.PcItem("play"),
	readline.PcItem("pause"),
	readline.PcItem("resume"),
	readline.PcItem("stop"),
	readline.PcItem("load"),
	readline.PcItem("seek"),
	readline.PcItem("volume"),
	readline.PcItem("loop",
		readline.PcItem("none"),
		readline.PcItem("infinite"),
	),
	readline.PcItem("status"),
	readline.PcItem("position"),
	readline.PcItem("duration"),
	readline.PcItem("state"),
	readline.PcItem("quit"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

// runShell drives an interactive command loop against the daemon. Each
// line is one protocol command on its own connection, same as the
// one-shot mode.
func runShell(c *client.Client) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "walrio> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".walrioctl_history"),
		AutoComplete:    shellCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Connected to daemon at %s\n", c.SocketPath())
	fmt.Println("Type 'help' for commands, 'exit' to leave.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		verb := strings.ToLower(strings.Fields(line)[0])
		switch verb {
		case "exit":
			return nil
		case "help":
			printShellHelp()
		default:
			reply, err := c.Command(line)
			if err != nil {
				fmt.Printf("ERROR: %v\n", err)
				continue
			}
			fmt.Println(reply)
			if verb == "quit" {
				return nil
			}
		}
	}
}

func printShellHelp() {
	fmt.Println("Commands:")
	fmt.Println("  load <file>           Load a file into the player")
	fmt.Println("  play [seconds]        Start playback, optionally from a position")
	fmt.Println("  pause / resume / stop Transport control")
	fmt.Println("  seek <seconds>        Seek within the current file")
	fmt.Println("  volume <0.0-1.0>      Set volume")
	fmt.Println("  loop <none|N|infinite>  Repeat the current track")
	fmt.Println("  status / position / duration / state")
	fmt.Println("  quit                  Shut the daemon down")
	fmt.Println("  exit                  Leave the shell")
}
