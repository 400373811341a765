package client

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TAPSOSS/walrio/internal/protocol"
)

const (
	probeTimeout   = 100 * time.Millisecond
	dialTimeout    = 2 * time.Second
	replyTimeout   = 5 * time.Second
	discoveryTries = 10
	discoveryDelay = 500 * time.Millisecond
)

// FindSocket locates the control socket of a running daemon. Candidates
// in the temp directory are liveness-probed with a short connect; dead
// ones are unlinked so they stop matching. Among live candidates the
// newest by modification time wins, so a freshly started daemon shadows
// older ones.
func FindSocket() (string, error) {
	pattern := filepath.Join(os.TempDir(), protocol.SocketPrefix+"*"+protocol.SocketSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("failed to scan for daemon sockets: %w", err)
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var live []candidate
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		conn, err := net.DialTimeout("unix", path, probeTimeout)
		if err != nil {
			// Stale socket from a dead daemon.
			os.Remove(path)
			continue
		}
		conn.Close()
		live = append(live, candidate{path: path, mtime: info.ModTime()})
	}

	if len(live) == 0 {
		return "", fmt.Errorf("no running player daemon found")
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].mtime.After(live[j].mtime)
	})
	return live[0].path, nil
}

// WaitForSocket retries discovery, since the daemon's socket can lag its
// process start.
func WaitForSocket() (string, error) {
	var lastErr error
	for i := 0; i < discoveryTries; i++ {
		path, err := FindSocket()
		if err == nil {
			return path, nil
		}
		lastErr = err
		time.Sleep(discoveryDelay)
	}
	return "", lastErr
}

// Client talks to one daemon instance: short-lived connections for
// commands, a separate persistent connection for the event stream. The
// socket path is mutated by the stream's reconnect goroutine while
// commands read it, so access goes through the mutex.
type Client struct {
	mu         sync.Mutex
	socketPath string
}

// New creates a client bound to the given socket path.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Discover finds a running daemon and returns a client for it.
func Discover() (*Client, error) {
	path, err := FindSocket()
	if err != nil {
		return nil, err
	}
	return New(path), nil
}

// SocketPath returns the endpoint this client targets.
func (c *Client) SocketPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketPath
}

// Command sends one command and returns the daemon's reply line. Each
// call uses a fresh connection.
func (c *Client) Command(cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath(), dialTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(replyTimeout))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// CommandOK sends a command and converts an "ERROR:" reply into an error.
func (c *Client) CommandOK(cmd string) (string, error) {
	reply, err := c.Command(cmd)
	if err != nil {
		return "", err
	}
	if !protocol.IsOK(reply) {
		return reply, fmt.Errorf("%s", protocol.ReplyPayload(reply))
	}
	return reply, nil
}

// Position asks the daemon for the current playback position in seconds.
func (c *Client) Position() (float64, error) {
	reply, err := c.CommandOK("position")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(protocol.ReplyPayload(reply), 64)
}

// Status returns the daemon's transport status word.
func (c *Client) Status() (string, error) {
	reply, err := c.CommandOK("status")
	if err != nil {
		return "", err
	}
	return protocol.ReplyPayload(reply), nil
}

// Subscribe opens the persistent event connection and streams decoded
// events to the returned channel. When the connection drops, discovery
// and subscription are retried with backoff, since the daemon may have
// restarted under a different socket name. The channel closes when stop
// is closed or the retries are exhausted.
func (c *Client) Subscribe(stop <-chan struct{}) (<-chan protocol.Event, error) {
	conn, err := c.subscribeOnce(c.SocketPath())
	if err != nil {
		return nil, err
	}

	events := make(chan protocol.Event, 16)
	go c.streamEvents(conn, events, stop)
	return events, nil
}

func (c *Client) subscribeOnce(path string) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	if _, err := conn.Write([]byte("subscribe")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(replyTimeout))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("no subscribe acknowledgement: %w", err)
	}
	if !protocol.IsOK(strings.TrimSpace(string(buf[:n]))) {
		conn.Close()
		return nil, fmt.Errorf("daemon refused subscription: %s", string(buf[:n]))
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

func (c *Client) streamEvents(conn net.Conn, events chan<- protocol.Event, stop <-chan struct{}) {
	defer close(events)
	for {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
		for scanner.Scan() {
			select {
			case <-stop:
				conn.Close()
				return
			default:
			}
			ev, err := protocol.ParseEvent(scanner.Bytes())
			if err != nil {
				log.Printf("Skipping malformed event: %v", err)
				continue
			}
			select {
			case events <- ev:
			case <-stop:
				conn.Close()
				return
			}
		}
		conn.Close()

		select {
		case <-stop:
			return
		default:
		}

		// Connection dropped: the daemon may have restarted with a new
		// endpoint. Rediscover and resubscribe with backoff.
		next, err := c.resubscribe(stop)
		if err != nil {
			log.Printf("Event stream lost: %v", err)
			return
		}
		conn = next
	}
}

func (c *Client) resubscribe(stop <-chan struct{}) (net.Conn, error) {
	backoff := discoveryDelay
	var lastErr error
	for i := 0; i < discoveryTries; i++ {
		select {
		case <-stop:
			return nil, fmt.Errorf("stopped")
		case <-time.After(backoff):
		}
		path, err := FindSocket()
		if err != nil {
			lastErr = err
			continue
		}
		conn, err := c.subscribeOnce(path)
		if err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.socketPath = path
		c.mu.Unlock()
		return conn, nil
	}
	return nil, lastErr
}
