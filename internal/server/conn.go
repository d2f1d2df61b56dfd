package server

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/blinklabs/blinkdb/internal/resp"
)

// Connection buffer limits.
const (
	// maxReadSize is the size of the per-read scratch buffer.
	maxReadSize = 64 * 1024

	// maxInputBuffer caps the unparsed input a client may accumulate;
	// beyond it the connection is closed.
	maxInputBuffer = 10 * 1024 * 1024
)

// connState is the connection lifecycle state.
type connState int

const (
	stateConnected connState = iota
	stateClosing
	stateClosed
)

// conn holds per-client state. It is owned by the event loop goroutine;
// the socket is closed exactly once, by the server's closeConn.
type conn struct {
	fd     int
	id     string
	remote string
	state  connState

	inbuf        []byte
	outq         [][]byte
	lastActivity time.Time
}

func newConn(fd int, id, remote string) *conn {
	return &conn{
		fd:           fd,
		id:           id,
		remote:       remote,
		state:        stateConnected,
		lastActivity: time.Now(),
	}
}

func (c *conn) hasPendingWrites() bool {
	return len(c.outq) > 0
}

// checkTimeout reports whether the connection has been idle longer than d.
func (c *conn) checkTimeout(d time.Duration) bool {
	return time.Since(c.lastActivity) > d
}

func (c *conn) touch() {
	c.lastActivity = time.Now()
}

// enqueue appends a reply to the output queue. Replies drain in FIFO
// order, which keeps responses in command order.
func (c *conn) enqueue(reply []byte) {
	if c.state != stateConnected {
		return
	}
	c.outq = append(c.outq, reply)
}

// handleReadable issues one non-blocking read and pumps any complete
// commands through dispatch. It returns false when the connection should
// be closed.
func (c *conn) handleReadable(dispatch func(*conn, string, [][]byte) []byte) bool {
	if c.state != stateConnected {
		return false
	}

	var buf [maxReadSize]byte
	n, err := unix.Read(c.fd, buf[:])
	switch {
	case n > 0:
		c.touch()
		if len(c.inbuf)+n > maxInputBuffer {
			c.state = stateClosing
			return false
		}
		c.inbuf = append(c.inbuf, buf[:n]...)
		return c.pumpCommands(dispatch)
	case n == 0:
		// Peer closed its end.
		c.state = stateClosing
		return false
	default:
		if err == unix.EAGAIN {
			return true
		}
		c.state = stateClosing
		return false
	}
}

// pumpCommands decodes and dispatches every complete request sitting in
// the input buffer. It returns false on a protocol error.
func (c *conn) pumpCommands(dispatch func(*conn, string, [][]byte) []byte) bool {
	for len(c.inbuf) > 0 {
		v, consumed, err := resp.Decode(c.inbuf)
		if errors.Is(err, resp.ErrIncomplete) {
			return true
		}
		if err != nil {
			c.state = stateClosing
			return false
		}

		name, args, err := resp.Command(v)
		if err != nil {
			c.state = stateClosing
			return false
		}
		if name != "" {
			c.enqueue(dispatch(c, name, args))
		}

		c.inbuf = c.inbuf[consumed:]
	}
	return true
}

// handleWritable drains the output queue with non-blocking sends,
// retaining the unwritten suffix of a partial send at the head. It
// returns false when the connection should be closed.
func (c *conn) handleWritable() bool {
	if c.state != stateConnected {
		return false
	}

	for len(c.outq) > 0 {
		head := c.outq[0]
		n, err := unix.Write(c.fd, head)
		if n > 0 {
			c.touch()
			if n == len(head) {
				c.outq = c.outq[1:]
				continue
			}
			c.outq[0] = head[n:]
			return true
		}
		if err == unix.EAGAIN {
			return true
		}
		c.state = stateClosing
		return false
	}
	return true
}
