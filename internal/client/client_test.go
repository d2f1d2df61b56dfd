package client

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs/blinkdb/internal/resp"
	"github.com/blinklabs/blinkdb/internal/server"
	"github.com/blinklabs/blinkdb/internal/store"
)

func startServer(t *testing.T) int {
	t.Helper()

	engine := store.New(store.DefaultConfig())
	scfg := server.DefaultConfig()
	scfg.Port = 0
	srv := server.New(scfg, engine)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		<-serveDone
		_ = engine.Close()
	})
	return srv.Port()
}

func TestDoRoundTrip(t *testing.T) {
	port := startServer(t)

	c, err := Dial("127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reply, err := c.Do("SET", []byte("foo"), []byte("bar"))
	if err != nil {
		t.Fatalf("SET: %v", err)
	}
	if !reply.Equal(resp.SimpleString("OK")) {
		t.Errorf("SET reply = %+v, want +OK", reply)
	}

	reply, err = c.Do("GET", []byte("foo"))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if !reply.Equal(resp.BulkString([]byte("bar"))) {
		t.Errorf("GET reply = %+v, want bar", reply)
	}

	reply, err = c.Do("DEL", []byte("foo"))
	if err != nil {
		t.Fatalf("DEL: %v", err)
	}
	if !reply.Equal(resp.Integer(1)) {
		t.Errorf("DEL reply = %+v, want :1", reply)
	}

	reply, err = c.Do("GET", []byte("foo"))
	if err != nil {
		t.Fatalf("GET after DEL: %v", err)
	}
	if !reply.Equal(resp.NullBulkString()) {
		t.Errorf("GET after DEL = %+v, want null bulk", reply)
	}
}

func TestDoUnknownCommand(t *testing.T) {
	port := startServer(t)

	c, err := Dial("127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reply, err := c.Do("PING")
	if err != nil {
		t.Fatalf("PING: %v", err)
	}
	if reply.Kind != resp.KindError {
		t.Errorf("PING reply kind = %c, want error", reply.Kind)
	}
}

func TestDialFailure(t *testing.T) {
	// Port 1 is essentially never listening.
	if _, err := Dial("127.0.0.1", 1); err == nil {
		t.Error("Dial to closed port succeeded")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   resp.Value
		want string
	}{
		{"simple string", resp.SimpleString("OK"), "OK"},
		{"error", resp.Error("ERR nope"), "Error: ERR nope"},
		{"integer", resp.Integer(42), "42"},
		{"bulk string", resp.BulkString([]byte("payload")), "payload"},
		{"null bulk", resp.NullBulkString(), "NULL"},
		{"array", resp.Array(resp.Integer(1), resp.Integer(2)), "(Array with 2 elements)"},
		{"null array", resp.NullArray(), "NULL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.in); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}
