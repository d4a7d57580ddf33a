package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses the global flags, builds the app and dispatches one command.
// The exit code is 2 for usage errors and 1 for failed operations.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("ideaftp", flag.ContinueOnError)
	fs.SetOutput(errOut)
	home := fs.String("home", "", "data directory (default $IDEAFTP_HOME or ~/.ideaftp)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	metricsFile := fs.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	retries := fs.Int("retries", 0, "retry failed connects and transfers this many times")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(errOut, "unknown command %q\n\n", rest[0])
		fs.Usage()
		return 2
	}

	a, err := newApp(options{
		home:     *home,
		logLevel: *logLevel,
		retries:  *retries,
	}, in, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "startup: %v\n", err)
		return 1
	}
	defer a.close(*metricsFile)

	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			return 2
		}
		a.fail(cmd.op, err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "Usage: ideaftp [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].help)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
