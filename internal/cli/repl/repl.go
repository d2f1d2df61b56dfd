// Package repl provides the interactive prompt for blink-cli.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/blinklabs/blinkdb/internal/client"
)

// Prompt is printed before each input line.
const Prompt = "blink> "

// REPL reads commands from input, executes them against a server, and
// prints formatted replies to output.
type REPL struct {
	client *client.Client
	input  io.Reader
	output io.Writer
}

// New creates a REPL over an established client connection.
func New(c *client.Client, input io.Reader, output io.Writer) *REPL {
	return &REPL{client: c, input: input, output: output}
}

// Run loops until EOF or an exit command.
func (r *REPL) Run() error {
	reader := bufio.NewReader(r.input)

	for {
		fmt.Fprint(r.output, Prompt)

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if lower := strings.ToLower(line); lower == "exit" || lower == "quit" {
			return nil
		}

		args := Tokenize(line)
		if len(args) == 0 {
			continue
		}

		if err := r.execute(args); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

func (r *REPL) execute(args []string) error {
	rest := make([][]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		rest = append(rest, []byte(a))
	}

	reply, err := r.client.Do(args[0], rest...)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.output, client.Format(reply))
	return nil
}

// Tokenize splits a command line on whitespace. A token may be wrapped
// in double quotes to carry spaces; the surrounding quotes are stripped.
func Tokenize(line string) []string {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
		started bool
	)

	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t'):
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens
}
