package server

import (
	"strconv"
	"time"

	"github.com/blinklabs/blinkdb/internal/resp"
	"github.com/blinklabs/blinkdb/internal/store"
	"github.com/blinklabs/blinkdb/internal/telemetry"
)

// HandlerFunc executes one command. args holds the raw arguments after
// the command name. A returned error becomes an internal-error reply;
// expected failures are returned as resp error values.
type HandlerFunc func(args [][]byte) (resp.Value, error)

// registerCommands installs the built-in command set against the engine.
func (s *Server) registerCommands(engine *store.Engine) {
	s.commands = map[string]HandlerFunc{
		"SET": func(args [][]byte) (resp.Value, error) { return cmdSet(engine, args) },
		"GET": func(args [][]byte) (resp.Value, error) { return cmdGet(engine, args) },
		"DEL": func(args [][]byte) (resp.Value, error) { return cmdDel(engine, args) },
	}
}

// dispatch routes one parsed command and renders its reply frame.
func (s *Server) dispatch(c *conn, name string, args [][]byte) []byte {
	if s.limiter != nil && !s.limiter.allow(c.remote) {
		telemetry.CommandsTotal.WithLabelValues(name, "throttled").Inc()
		return resp.Encode(resp.Error("ERR rate limit exceeded"))
	}

	handler, ok := s.commands[name]
	if !ok {
		telemetry.CommandsTotal.WithLabelValues(name, "unknown").Inc()
		return resp.Encode(resp.Error("ERR unknown command '" + name + "'"))
	}

	v, err := handler(args)
	if err != nil {
		telemetry.CommandsTotal.WithLabelValues(name, "error").Inc()
		s.log.Error("handler failed", "command", name, "error", err)
		return resp.Encode(resp.Error("ERR internal error: " + err.Error()))
	}

	status := "ok"
	if v.Kind == resp.KindError {
		status = "error"
	}
	telemetry.CommandsTotal.WithLabelValues(name, status).Inc()
	return resp.Encode(v)
}

// cmdSet implements SET key value [EX seconds].
func cmdSet(engine *store.Engine, args [][]byte) (resp.Value, error) {
	if len(args) < 2 {
		return resp.Error("ERR wrong number of arguments for 'set' command"), nil
	}

	var ttl time.Duration
	if len(args) > 2 {
		if !asciiEqualFold(args[2], "EX") {
			return resp.Error("ERR syntax error"), nil
		}
		if len(args) != 4 {
			return resp.Error("ERR syntax error"), nil
		}
		seconds, err := strconv.ParseInt(string(args[3]), 10, 64)
		if err != nil || seconds < 0 {
			return resp.Error("ERR invalid expire time in 'set' command"), nil
		}
		ttl = time.Duration(seconds) * time.Second
	}

	engine.Set(string(args[0]), string(args[1]), ttl)
	return resp.SimpleString("OK"), nil
}

// cmdGet implements GET key.
func cmdGet(engine *store.Engine, args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Error("ERR wrong number of arguments for 'get' command"), nil
	}

	value, ok := engine.Get(string(args[0]))
	if !ok {
		return resp.NullBulkString(), nil
	}
	return resp.BulkString([]byte(value)), nil
}

// cmdDel implements DEL key.
func cmdDel(engine *store.Engine, args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Error("ERR wrong number of arguments for 'del' command"), nil
	}

	if engine.Del(string(args[0])) {
		return resp.Integer(1), nil
	}
	return resp.Integer(0), nil
}

// asciiEqualFold reports whether b equals s ignoring ASCII case.
func asciiEqualFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		c, d := b[i], s[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		if 'a' <= d && d <= 'z' {
			d -= 'a' - 'A'
		}
		if c != d {
			return false
		}
	}
	return true
}
