package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sys/unix"

	"github.com/blinklabs/blinkdb/internal/store"
	"github.com/blinklabs/blinkdb/internal/telemetry"
	"github.com/blinklabs/blinkdb/internal/telemetry/logger"
)

// Default server settings.
const (
	DefaultPort           = 9001
	DefaultMaxConnections = 1024
	DefaultIdleTimeout    = 5 * time.Minute

	// maxEvents is the epoll batch size per wait.
	maxEvents = 64
)

// Config holds the server configuration.
type Config struct {
	// Port is the TCP listening port.
	Port int
	// MaxConnections caps concurrent clients; connections accepted
	// above the cap are closed immediately.
	MaxConnections int
	// IdleTimeout closes connections with no traffic for this long.
	// Idleness is only checked when the connection next becomes ready.
	IdleTimeout time.Duration
	// RateLimit is the maximum commands per second per client IP.
	// Zero disables limiting.
	RateLimit int
	// Logger receives server events. Defaults to the global logger.
	Logger logger.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		MaxConnections: DefaultMaxConnections,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// Server is the event-loop TCP server. Listen must be called before
// Serve; Stop may be called from any goroutine.
type Server struct {
	cfg    Config
	log    logger.Logger
	engine *store.Engine

	commands map[string]HandlerFunc
	limiter  *ipLimiter

	listenFd int
	port     int
	poll     *poller
	wakeR    int
	wakeW    int
	conns    map[int]*conn

	running atomic.Bool
	done    chan struct{}
}

// New creates a server over the given engine. Port 0 binds an
// ephemeral port.
func New(cfg Config, engine *store.Engine) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		listenFd: -1,
		conns:    make(map[int]*conn),
		done:     make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit)
	}
	s.registerCommands(engine)
	return s
}

// Listen creates the non-blocking listening socket, the poller and the
// shutdown wakeup pipe. Pass port 0 to bind an ephemeral port (tests);
// Port reports the bound port afterwards.
func (s *Server) Listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("create socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: s.cfg.Port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind port %d: %w", s.cfg.Port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("getsockname: %w", err)
	}
	s.port = bound.(*unix.SockaddrInet4).Port

	p, err := newPoller()
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("create poller: %w", err)
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		p.close()
		unix.Close(fd)
		return fmt.Errorf("create wakeup pipe: %w", err)
	}
	s.wakeR, s.wakeW = pipe[0], pipe[1]

	if err := p.add(fd); err != nil {
		p.close()
		unix.Close(s.wakeR)
		unix.Close(s.wakeW)
		unix.Close(fd)
		return fmt.Errorf("register listener: %w", err)
	}
	if err := p.add(s.wakeR); err != nil {
		p.close()
		unix.Close(s.wakeR)
		unix.Close(s.wakeW)
		unix.Close(fd)
		return fmt.Errorf("register wakeup pipe: %w", err)
	}

	s.listenFd = fd
	s.poll = p
	s.log.Info("server listening", "port", s.port, "max_connections", s.cfg.MaxConnections)
	return nil
}

// Port returns the bound TCP port. Valid after Listen.
func (s *Server) Port() int { return s.port }

// Serve runs the event loop until Stop is called. It owns all connection
// state and issues every storage engine call.
func (s *Server) Serve() error {
	if s.listenFd < 0 {
		return fmt.Errorf("server: Serve called before Listen")
	}

	s.running.Store(true)
	defer close(s.done)
	defer s.teardown()

	events := make([]unix.EpollEvent, maxEvents)
	for s.running.Load() {
		n, err := s.poll.wait(events)
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			return fmt.Errorf("poll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			flags := events[i].Events

			switch fd {
			case s.wakeR:
				// Stop signal; drain and let the loop condition exit.
				var buf [8]byte
				for {
					if _, err := unix.Read(s.wakeR, buf[:]); err != nil {
						break
					}
				}
			case s.listenFd:
				s.acceptLoop()
			default:
				s.handleConnEvent(fd, flags)
			}
		}
	}
	return nil
}

// Stop asks the event loop to exit and waits for it to finish tearing
// down, or for ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	// Wake the loop out of epoll_wait.
	_, _ = unix.Write(s.wakeW, []byte{1})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown closes every live connection, then the poller, pipe and
// listener. Runs on the event loop goroutine as Serve unwinds.
func (s *Server) teardown() {
	for fd := range s.conns {
		s.closeConn(fd)
	}
	s.poll.close()
	unix.Close(s.wakeR)
	unix.Close(s.wakeW)
	unix.Close(s.listenFd)
	s.listenFd = -1
	s.log.Info("server stopped")
}

// acceptLoop accepts until the listener would block.
func (s *Server) acceptLoop() {
	for {
		fd, sa, err := unix.Accept(s.listenFd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.log.Warn("accept failed", "error", err)
			return
		}

		if len(s.conns) >= s.cfg.MaxConnections {
			telemetry.ConnectionsRejected.Inc()
			s.log.Warn("connection cap reached, rejecting", "cap", s.cfg.MaxConnections)
			unix.Close(fd)
			continue
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			s.log.Warn("set nonblock failed", "error", err)
			unix.Close(fd)
			continue
		}
		if err := s.poll.add(fd); err != nil {
			s.log.Warn("register connection failed", "error", err)
			unix.Close(fd)
			continue
		}

		c := newConn(fd, ulid.Make().String(), formatSockaddr(sa))
		s.conns[fd] = c
		telemetry.ConnectionsTotal.Inc()
		telemetry.ConnectionsActive.Set(float64(len(s.conns)))
		s.log.Debug("connection accepted", "conn_id", c.id, "remote", c.remote)
	}
}

// handleConnEvent services readiness for one client socket.
func (s *Server) handleConnEvent(fd int, flags uint32) {
	c, ok := s.conns[fd]
	if !ok {
		// Stale event for a connection closed earlier in this batch;
		// the fd is already deregistered and may have been reused.
		return
	}

	if flags&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		s.closeConn(fd)
		return
	}

	if c.checkTimeout(s.cfg.IdleTimeout) {
		s.log.Debug("closing idle connection", "conn_id", c.id, "remote", c.remote)
		s.closeConn(fd)
		return
	}

	if flags&unix.EPOLLIN != 0 {
		if !c.handleReadable(s.dispatch) {
			s.closeConn(fd)
			return
		}
		if c.hasPendingWrites() {
			if err := s.poll.modWrite(fd, true); err != nil {
				s.log.Warn("add write interest failed", "conn_id", c.id, "error", err)
				s.closeConn(fd)
				return
			}
		}
	}

	if flags&unix.EPOLLOUT != 0 {
		if !c.handleWritable() {
			s.closeConn(fd)
			return
		}
		if !c.hasPendingWrites() {
			if err := s.poll.modWrite(fd, false); err != nil {
				s.log.Warn("drop write interest failed", "conn_id", c.id, "error", err)
				s.closeConn(fd)
				return
			}
		}
	}
}

// closeConn deregisters and closes one connection. Safe to call for fds
// already removed.
func (s *Server) closeConn(fd int) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}
	c.state = stateClosed
	delete(s.conns, fd)
	s.poll.del(fd)
	unix.Close(fd)
	telemetry.ConnectionsActive.Set(float64(len(s.conns)))
	s.log.Debug("connection closed", "conn_id", c.id, "remote", c.remote)
}

// formatSockaddr renders an accepted peer address as "ip:port".
func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip, a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip, a.Port)
	default:
		return "unknown"
	}
}
