// Package main provides the entry point for blink-bench.
//
// blink-bench drives a synthetic SET/GET workload against a BlinkDB
// server from multiple concurrent connections and reports throughput
// and latency.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/blinklabs/blinkdb/internal/client"
	"github.com/blinklabs/blinkdb/internal/infra/buildinfo"
	"github.com/blinklabs/blinkdb/internal/resp"
)

func main() {
	app := &cli.App{
		Name:    "blink-bench",
		Usage:   "BlinkDB benchmark driver",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "server hostname or IP"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 9001, Usage: "server port"},
			&cli.IntFlag{Name: "clients", Aliases: []string{"c"}, Value: 16, Usage: "concurrent connections"},
			&cli.IntFlag{Name: "requests", Aliases: []string{"n"}, Value: 100000, Usage: "total requests"},
			&cli.IntFlag{Name: "keys", Value: 10000, Usage: "key space size"},
			&cli.IntFlag{Name: "value-size", Value: 64, Usage: "value size in bytes"},
			&cli.IntFlag{Name: "set-ratio", Value: 50, Usage: "percentage of SET operations (rest are GET)"},
			&cli.IntFlag{Name: "rate", Value: 0, Usage: "request rate cap per client (0 = unlimited)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type result struct {
	ops       int
	errors    int
	latencies []time.Duration
}

func run(c *cli.Context) error {
	var (
		host      = c.String("host")
		port      = c.Int("port")
		clients   = c.Int("clients")
		requests  = c.Int("requests")
		keySpace  = c.Int("keys")
		valueSize = c.Int("value-size")
		setRatio  = c.Int("set-ratio")
		rateCap   = c.Int("rate")
	)
	if clients < 1 || requests < 1 || keySpace < 1 || setRatio < 0 || setRatio > 100 {
		return fmt.Errorf("invalid workload parameters")
	}

	value := []byte(strings.Repeat("x", valueSize))
	perClient := requests / clients

	results := make([]result, clients)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < clients; i++ {
		n := perClient
		if i < requests%clients {
			n++
		}
		wg.Add(1)
		go func(id, n int) {
			defer wg.Done()
			results[id] = worker(host, port, n, keySpace, setRatio, rateCap, value, id)
		}(i, n)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var total result
	for _, r := range results {
		total.ops += r.ops
		total.errors += r.errors
		total.latencies = append(total.latencies, r.latencies...)
	}
	report(total, elapsed)
	return nil
}

func worker(host string, port, n, keySpace, setRatio, rateCap int, value []byte, seed int) result {
	var res result

	cl, err := client.Dial(host, port)
	if err != nil {
		res.errors = n
		return res
	}
	defer cl.Close()

	var limiter *rate.Limiter
	if rateCap > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateCap), rateCap)
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	res.latencies = make([]time.Duration, 0, n)

	for i := 0; i < n; i++ {
		if limiter != nil {
			_ = limiter.Wait(context.Background())
		}

		key := []byte(fmt.Sprintf("bench:%d", rng.Intn(keySpace)))
		begin := time.Now()

		var reply resp.Value
		if rng.Intn(100) < setRatio {
			reply, err = cl.Do("SET", key, value)
		} else {
			reply, err = cl.Do("GET", key)
		}
		took := time.Since(begin)

		if err != nil || reply.Kind == resp.KindError {
			res.errors++
			continue
		}
		res.ops++
		res.latencies = append(res.latencies, took)
	}
	return res
}

func report(total result, elapsed time.Duration) {
	fmt.Printf("completed %d ops in %s (%d errors)\n", total.ops, elapsed.Round(time.Millisecond), total.errors)
	if total.ops == 0 {
		return
	}
	fmt.Printf("throughput: %.0f ops/sec\n", float64(total.ops)/elapsed.Seconds())

	sort.Slice(total.latencies, func(i, j int) bool { return total.latencies[i] < total.latencies[j] })
	pct := func(p float64) time.Duration {
		idx := int(p * float64(len(total.latencies)-1))
		return total.latencies[idx]
	}
	fmt.Printf("latency p50=%s p95=%s p99=%s max=%s\n",
		pct(0.50), pct(0.95), pct(0.99), total.latencies[len(total.latencies)-1])
}
