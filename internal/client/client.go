// Package client implements the BlinkDB wire client used by blink-cli
// and blink-bench.
//
// A Client owns one TCP connection. Commands are encoded as RESP arrays
// of bulk strings; replies are decoded incrementally from a receive
// buffer so a frame split across reads is reassembled transparently.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blinklabs/blinkdb/internal/resp"
)

// DefaultReceiveTimeout bounds each reply wait.
const DefaultReceiveTimeout = 5 * time.Second

// Client is a single-connection BlinkDB client. Not safe for concurrent
// use; callers serialize Do.
type Client struct {
	conn    net.Conn
	buf     []byte
	timeout time.Duration
}

// Dial connects to a BlinkDB server.
func Dial(host string, port int) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: DefaultReceiveTimeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Do sends one command and waits for its reply.
func (c *Client) Do(name string, args ...[]byte) (resp.Value, error) {
	if c.conn == nil {
		return resp.Value{}, errors.New("client: not connected")
	}

	if _, err := c.conn.Write(resp.EncodeCommand(name, args...)); err != nil {
		return resp.Value{}, fmt.Errorf("send command: %w", err)
	}
	return c.readReply()
}

// readReply accumulates bytes until one complete frame decodes.
func (c *Client) readReply() (resp.Value, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return resp.Value{}, err
	}

	for {
		if len(c.buf) > 0 {
			v, consumed, err := resp.Decode(c.buf)
			if err == nil {
				c.buf = c.buf[consumed:]
				return v, nil
			}
			if !errors.Is(err, resp.ErrIncomplete) {
				return resp.Value{}, err
			}
		}

		chunk := make([]byte, 64*1024)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			return resp.Value{}, fmt.Errorf("read reply: %w", err)
		}
	}
}

// Format renders a reply for interactive display.
func Format(v resp.Value) string {
	switch v.Kind {
	case resp.KindSimpleString:
		return string(v.Str)
	case resp.KindError:
		return "Error: " + string(v.Str)
	case resp.KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case resp.KindBulkString:
		if v.Null {
			return "NULL"
		}
		return string(v.Str)
	case resp.KindArray:
		if v.Null {
			return "NULL"
		}
		return fmt.Sprintf("(Array with %d elements)", len(v.Elems))
	}
	return ""
}
