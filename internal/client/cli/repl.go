package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// runREPL reads commands from reader and dispatches them through cmds
// until EOF, "exit" or "quit". Command errors are printed and the loop
// carries on. Commands prompting for input share reader with the loop.
func runREPL(ctx context.Context, cmds map[string]command, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "taxdesk %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "help":
			printHelp(cmds)
			continue
		}

		cmd, ok := cmds[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		if err := cmd.run(ctx, args); err != nil {
			printlnFn("error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func printHelp(cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	printlnFn("Available commands:")
	for _, n := range names {
		printlnFn("  " + cmds[n].usage)
	}
	printlnFn("  exit")
}
