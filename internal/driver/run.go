// Package driver wires the command-line surface onto the Coordinator:
// open the script, tokenize it line by line with internal/parser, and
// dispatch each Command. Shaped after the teacher pack's CLI entry
// point (calvinalkan-agent-task's internal/cli.Run): a single Run
// function taking stdio, args, env and a signal channel, returning a
// process exit code.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"repcrec/internal/coordinator"
	"repcrec/internal/parser"
)

const shutdownGrace = 5 * time.Second

// Run parses flags, reads the script named by --input (or stdin if
// omitted or "-"), and executes it against a fresh Coordinator writing
// events to out. Returns a process exit code: 0 on clean EOF, 1 on a
// malformed script or a script file that could not be opened.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	flags := flag.NewFlagSet("repcrec", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	help := flags.BoolP("help", "h", false, "show help")
	input := flags.StringP("input", "i", "", "script path (default: stdin)")
	logLevel := flags.String("log-level", "warn", "debug|info|warn|error")
	graphDir := flags.String("graph-dir", "", "write rejected-commit conflict graphs (DOT) here")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *help {
		printUsage(out)
		return 0
	}

	level, err := parseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	var src io.Reader = in
	if *input != "" && *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		defer f.Close()
		src = f
	}

	opts := []coordinator.Option{coordinator.WithLogger(logger)}
	if *graphDir != "" {
		opts = append(opts, coordinator.WithGraphDir(*graphDir))
	}
	coord := coordinator.New(out, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() { done <- execute(ctx, src, errOut, coord) }()

	select {
	case code := <-done:
		return code
	case <-sigCh:
		fmt.Fprintln(errOut, "shutting down...")
		cancel()
	}

	select {
	case <-done:
		return 130
	case <-time.After(shutdownGrace):
		fmt.Fprintln(errOut, "graceful shutdown timed out, forced exit (130)")
		return 130
	}
}

// execute drains src line by line. A malformed or unknown command is
// an input error: it is reported and the whole run aborts. A
// coordinator-level semantic error (duplicate begin, out-of-range
// site) is reported and execution continues with the next line.
func execute(ctx context.Context, src io.Reader, errOut io.Writer, coord *coordinator.Coordinator) int {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return 130
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, err := parser.Parse(line)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}

		if err := dispatch(coord, cmd); err != nil {
			fmt.Fprintln(errOut, "error:", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func dispatch(coord *coordinator.Coordinator, cmd parser.Command) error {
	switch cmd.Kind {
	case parser.Begin:
		return coord.Begin(cmd.Txn)
	case parser.Read:
		return coord.Read(cmd.Txn, cmd.Var)
	case parser.Write:
		return coord.Write(cmd.Txn, cmd.Var, cmd.Value)
	case parser.End:
		return coord.End(cmd.Txn)
	case parser.Fail:
		return coord.Fail(cmd.Site)
	case parser.Recover:
		return coord.Recover(cmd.Site)
	case parser.Dump:
		return coord.Dump()
	default:
		return fmt.Errorf("driver: unhandled command kind %v", cmd.Kind)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("driver: unknown log level %q", s)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "repcrec - replicated concurrency control and recovery simulator")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: repcrec [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -i, --input <file>      script path (default: stdin)")
	fmt.Fprintln(w, "  --log-level <level>     debug|info|warn|error (default: warn)")
	fmt.Fprintln(w, "  --graph-dir <dir>       write rejected-commit conflict graphs here")
	fmt.Fprintln(w, "  -h, --help              show this help")
}
