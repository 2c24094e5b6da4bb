// Command producer is a stub producer client: it connects to an
// orchestrator's control port and turns each line of standard input into
// one binary frame.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/kstaniek/qpipe-broker/client"
)

const defaultOrchestratorAddr = "127.0.0.1:7000"

func main() {
	addr := defaultOrchestratorAddr
	if len(os.Args) > 1 && os.Args[1] != "" {
		addr = os.Args[1]
	}

	ctx := context.Background()
	p, err := client.ConnectProducer(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "producer: connect %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer p.Close()
	fmt.Fprintf(os.Stderr, "producer connected via %s\n", addr)
	fmt.Fprintln(os.Stderr, "type lines; each line becomes one binary frame")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := p.Send(scanner.Bytes()); err != nil {
			fmt.Fprintf(os.Stderr, "producer: send: %v\n", err)
			os.Exit(1)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "producer: read stdin: %v\n", err)
		os.Exit(1)
	}
}
