// Command pixelpipe filters raw frames from stdin to stdout through a named
// transform:
//
//	camera | pixelpipe [flags] [transform] [key=value ...] | display
//
// Each input frame is a 12-byte big-endian header (height, width, channels)
// followed by height*width*channels bytes. Only the transformed payload is
// written back unless -emit-header is set. Diagnostics go to stderr.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixelpipe/internal/config"
	"pixelpipe/internal/engine"
	"pixelpipe/internal/frame"
	"pixelpipe/internal/logging"
	"pixelpipe/internal/transform"
)

const (
	ioBufferSize  = 1 << 20
	shutdownGrace = 2 * time.Second
)

type cliFlags struct {
	configPath  string
	logLevel    string
	logJSON     bool
	metricsPort int
	emitHeader  bool
	remote      string
	list        bool
	printConfig bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func newFlagSet(f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("pixelpipe", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", os.Getenv("PIXELPIPE_CONFIG"), "YAML config file (default "+config.DefaultPath+" if present)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	fs.BoolVar(&f.logJSON, "log-json", false, "log JSON to stderr")
	fs.IntVar(&f.metricsPort, "metrics-port", 0, "serve Prometheus /metrics on this port (0 = off)")
	fs.BoolVar(&f.emitHeader, "emit-header", false, "write each frame's header ahead of its payload")
	fs.StringVar(&f.remote, "remote", "", "address of a gRPC transform host")
	fs.BoolVar(&f.list, "list", false, "list built-in transforms and exit")
	fs.BoolVar(&f.printConfig, "print-config", false, "print the effective config and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: pixelpipe [flags] [transform] [key=value ...]\n\n")
		fs.PrintDefaults()
	}
	return fs
}

func run(args []string) int {
	var f cliFlags
	fs := newFlagSet(&f)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if f.list {
		for _, n := range transform.Names() {
			fmt.Println(n)
		}
		return 0
	}

	logging.InitFromEnv()
	path, required := f.configPath, true
	if path == "" {
		path, required = config.DefaultPath, false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		logging.L().Error("config", "err", err)
		return 1
	}
	applyCLI(&cfg, fs, f)
	if err := cfg.Validate(); err != nil {
		logging.L().Error("config", "err", err)
		return 1
	}
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	if f.printConfig {
		b, err := cfg.YAML()
		if err != nil {
			logging.L().Error("config", "err", err)
			return 1
		}
		os.Stdout.Write(b)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriterSize(os.Stdout, ioBufferSize)
	in := bufio.NewReaderSize(os.Stdin, ioBufferSize)

	e, err := engine.Bootstrap(ctx, cfg, in, out)
	if err != nil {
		logging.L().Error("bootstrap", "err", err)
		return 1
	}

	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	select {
	case err = <-errc:
	case <-ctx.Done():
		// A read blocked on stdin only returns once the input closes.
		_ = os.Stdin.Close()
		select {
		case err = <-errc:
		case <-time.After(shutdownGrace):
			logging.L().Info("shutting down pixel pipe")
			return 0
		}
	}

	switch {
	case err == nil:
		return 0
	case frame.IsFraming(err):
		logging.L().Error("aborting: input stream is desynchronised", "err", err)
		return 1
	default:
		logging.L().Error("pipe", "err", err)
		return 1
	}
}

// applyCLI overlays explicitly set flags and positional arguments on cfg.
// Positional options win over options from the config file.
func applyCLI(cfg *config.Config, fs *flag.FlagSet, f cliFlags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-json":
			cfg.Log.JSON = f.logJSON
		case "metrics-port":
			cfg.Metrics.Port = f.metricsPort
		case "emit-header":
			cfg.Pipe.EmitHeader = f.emitHeader
		case "remote":
			cfg.Transform.Type = config.TypeGRPC
			cfg.Transform.Address = f.remote
		}
	})

	pos := fs.Args()
	if len(pos) > 0 {
		cfg.Transform.Name = pos[0]
		pos = pos[1:]
	}
	// A remote host with no name runs whatever it serves.
	if cfg.Transform.Name == "" && cfg.Transform.Type != config.TypeGRPC {
		cfg.Transform.Name = transform.DefaultName
	}
	cfg.Transform.Options = transform.Options(cfg.Transform.Options).Merge(transform.ParseOptions(pos))
}
