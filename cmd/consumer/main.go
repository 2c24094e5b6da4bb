// Command consumer is a stub consumer client: it connects to an
// orchestrator's control port and writes each delivered frame to standard
// output in one of two line-oriented modes.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kstaniek/qpipe-broker/client"
	"github.com/kstaniek/qpipe-broker/internal/frame"
)

const defaultOrchestratorAddr = "127.0.0.1:7000"

func main() {
	args := os.Args[1:]
	addr := defaultOrchestratorAddr
	if len(args) > 0 && args[0] != "" {
		addr = args[0]
	}
	mode := "--base64"
	if len(args) > 1 {
		mode = args[1]
	}
	switch mode {
	case "--base64", "--jsonl":
	default:
		fmt.Fprintf(os.Stderr, "consumer: %v: mode must be --base64 or --jsonl\n", frame.ErrInvalidInput)
		os.Exit(1)
	}

	ctx := context.Background()
	c, err := client.ConnectConsumer(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: connect %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer c.Close()
	fmt.Fprintf(os.Stderr, "consumer connected via %s\n", addr)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for {
		payload, err := c.Recv()
		if err != nil {
			if errors.Is(err, client.ErrUnexpectedClose) {
				return
			}
			fmt.Fprintf(os.Stderr, "consumer: recv: %v\n", err)
			os.Exit(1)
		}
		if err := writePayload(out, payload, mode); err != nil {
			fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
			os.Exit(1)
		}
		_ = out.Flush()
	}
}

func writePayload(w *bufio.Writer, payload []byte, mode string) error {
	switch mode {
	case "--jsonl":
		if !utf8.Valid(payload) {
			return fmt.Errorf("%w: payload not valid UTF-8", frame.ErrInvalidData)
		}
		if strings.ContainsRune(string(payload), '\n') {
			return fmt.Errorf("%w: payload contains newline; not valid for --jsonl (use compact JSON or --base64)", frame.ErrInvalidData)
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
	case "--base64":
		if _, err := w.WriteString(base64.StdEncoding.EncodeToString(payload)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
