// Package main provides the entry point for blink-cli.
//
// blink-cli is the interactive BlinkDB client: it connects to a server,
// reads commands at a blink> prompt, and prints decoded replies.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/blinklabs/blinkdb/internal/client"
	"github.com/blinklabs/blinkdb/internal/cli/repl"
	"github.com/blinklabs/blinkdb/internal/infra/buildinfo"
)

func main() {
	// -h is the host flag here, so help hangs off --help alone.
	cli.HelpFlag = &cli.BoolFlag{
		Name:  "help",
		Usage: "show help",
	}

	app := &cli.App{
		Name:    "blink-cli",
		Usage:   "interactive BlinkDB client",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"h"},
				Usage:   "server hostname or IP",
				Value:   "localhost",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "server port",
				Value:   9001,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	host := c.String("host")
	port := c.Int("port")

	cl, err := client.Dial(host, port)
	if err != nil {
		return err
	}
	defer cl.Close()

	fmt.Printf("Connected to BlinkDB at %s:%d (type 'exit' or 'quit' to leave)\n", host, port)
	return repl.New(cl, os.Stdin, os.Stdout).Run()
}
