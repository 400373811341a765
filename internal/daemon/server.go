package daemon

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TAPSOSS/walrio/internal/engine"
	"github.com/TAPSOSS/walrio/internal/protocol"
)

// SocketPath returns the control socket path for a daemon with the given
// process id. Sockets live in the system temp directory so clients can
// enumerate live daemons by prefix.
func SocketPath(pid int) string {
	return filepath.Join(os.TempDir(),
		fmt.Sprintf("%s%d%s", protocol.SocketPrefix, pid, protocol.SocketSuffix))
}

// Server is the daemon control server: one unix socket, one command per
// connection, plus persistent subscriber connections receiving the
// engine's event stream.
type Server struct {
	mu         sync.Mutex
	engine     *engine.Engine
	listener   *net.UnixListener
	socketPath string
	running    bool

	quit     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup

	subMu       sync.Mutex
	subscribers map[string]net.Conn
}

// NewServer creates a control server for eng and wires the engine's
// events into the subscriber broadcast.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		engine:      eng,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: make(map[string]net.Conn),
	}
	eng.SetEventSink(s.Broadcast)
	return s
}

// Start binds the control socket and begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	s.socketPath = SocketPath(os.Getpid())
	// A leftover socket from a crashed run with the same pid.
	os.Remove(s.socketPath)

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve socket address: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to bind control socket: %w", err)
	}

	s.listener = listener
	s.running = true

	log.Printf("Control server listening on %s", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound socket path.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketPath
}

// Done is closed when a quit command asks the daemon to exit.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// acceptLoop accepts connections until shutdown. The bounded deadline
// keeps the loop checking the quit channel instead of blocking in Accept
// forever.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(500 * time.Millisecond))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.quit:
				return
			default:
			}
			log.Printf("Accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads one command and replies. Subscribers hand their
// connection over to the broadcast set and are never read from again.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return
	}
	cmd := string(buf[:n])

	if isSubscribe(cmd) {
		s.addSubscriber(conn)
		return
	}

	reply := s.dispatch(cmd)
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(reply)); err != nil {
		log.Printf("Reply write failed: %v", err)
	}
	conn.Close()
}

func (s *Server) addSubscriber(conn net.Conn) {
	id := uuid.NewString()
	s.subMu.Lock()
	s.subscribers[id] = conn
	s.subMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte("OK: Subscribed to events")); err != nil {
		s.removeSubscriber(id)
		return
	}
	conn.SetWriteDeadline(time.Time{})
	log.Printf("Event subscriber connected (%d active)", s.subscriberCount())
}

func (s *Server) removeSubscriber(id string) {
	s.subMu.Lock()
	if conn, ok := s.subscribers[id]; ok {
		conn.Close()
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()
}

func (s *Server) subscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribers)
}

// Broadcast serializes an event and writes it to every subscriber.
// Best-effort fan-out: a failed write drops that listener, nothing is
// buffered or retried.
func (s *Server) Broadcast(ev protocol.Event) {
	line, err := ev.Encode()
	if err != nil {
		log.Printf("Failed to encode event %s: %v", ev.Event, err)
		return
	}

	s.subMu.Lock()
	var dead []string
	for id, conn := range s.subscribers {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := conn.Write(line); err != nil {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		s.subscribers[id].Close()
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()
}

// Stop shuts the server down: stop accepting, close every subscriber,
// remove the socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.quit)
	s.listener.Close()
	s.wg.Wait()

	s.subMu.Lock()
	for id, conn := range s.subscribers {
		conn.Close()
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()

	os.Remove(s.socketPath)
	return nil
}
