// Package main provides the captionvit CLI.
//
// Usage:
//
//	captionvit version
//	captionvit inspect  -config model.yaml
//	captionvit sample   -config caption.yaml [-n 4] [-length 16] [-load ckpt] [-save ckpt]
//	captionvit classify -config vit.yaml [-n 4] [-load ckpt] [-save ckpt]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const version = "v0.1.0-dev"

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var cmd func(*options, io.Writer, *slog.Logger) error
	switch args[0] {
	case "version":
		_, _ = fmt.Fprintf(stdout, "captionvit %s\n", version)
		return 0
	case "inspect":
		cmd = inspect
	case "sample":
		cmd = sample
	case "classify":
		cmd = classify
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	opts, err := parseOptions(args[0], args[1:], stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := newLogger(stderr, opts.verbose)
	if err := cmd(opts, stdout, logger); err != nil {
		logger.Error(args[0]+" failed", "err", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

type options struct {
	configPath string
	n          int
	length     int
	seed       uint64
	loadPath   string
	savePath   string
	verbose    bool
}

func parseOptions(name string, args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "model configuration file (YAML)")
	fs.IntVar(&opts.n, "n", 2, "number of random inputs")
	fs.IntVar(&opts.length, "length", 0, "caption length for sample (0 = max_length)")
	fs.Uint64Var(&opts.seed, "seed", 1, "seed for the random inputs")
	fs.StringVar(&opts.loadPath, "load", "", "checkpoint to load (overrides the config's checkpoint)")
	fs.StringVar(&opts.savePath, "save", "", "write the model parameters to this checkpoint")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.configPath == "" {
		_, _ = fmt.Fprintf(stderr, "%s: -config is required\n", name)
		fs.Usage()
		return nil, errUsage
	}
	if opts.n < 1 {
		_, _ = fmt.Fprintf(stderr, "%s: -n must be at least 1, got %d\n", name, opts.n)
		return nil, errUsage
	}
	if opts.length < 0 {
		_, _ = fmt.Fprintf(stderr, "%s: -length must not be negative, got %d\n", name, opts.length)
		return nil, errUsage
	}
	return opts, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "captionvit %s - transformer caption decoder and vision transformer\n\n", version)
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  version    Show version")
	_, _ = fmt.Fprintln(w, "  inspect    Build the configured model and report its parameters")
	_, _ = fmt.Fprintln(w, "  sample     Caption random image features")
	_, _ = fmt.Fprintln(w, "  classify   Classify random images")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Flags: -config file.yaml [-n N] [-length L] [-seed S] [-load ckpt] [-save ckpt] [-v]")
}
