// Package main is the entry point for doc-loadgen.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"doc-loadgen/internal/config"
	"doc-loadgen/internal/coordinator"
	"doc-loadgen/internal/docserver"
	"doc-loadgen/internal/events"
	"doc-loadgen/internal/logger"
)

var (
	version = "dev"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage は引数エラーを表す
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options はフラグの値
type options struct {
	configFile       string
	presetName       string
	scheme           string
	timeout          time.Duration
	maxJitter        time.Duration
	handshakeTimeout time.Duration
	seed             int64
	hold             bool
	logLevel         string
	serveAddr        string
	serveUpdates     int
	serveInterval    time.Duration
	listPresets      bool
	showVersion      bool
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("doc-loadgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configFile, "config", "", "run file path (YAML/JSON)")
	fs.StringVar(&opts.presetName, "preset", "", "load preset (smoke, burst, soak)")
	fs.StringVar(&opts.scheme, "scheme", "ws", "WebSocket scheme (ws, wss)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "max wait for all introductions (0 = forever)")
	fs.DurationVar(&opts.maxJitter, "max-jitter", 10*time.Millisecond, "upper bound of the per-client start delay")
	fs.DurationVar(&opts.handshakeTimeout, "handshake-timeout", 10*time.Second, "WebSocket upgrade timeout")
	fs.Int64Var(&opts.seed, "seed", 0, "jitter random seed (0 = time based)")
	fs.BoolVar(&opts.hold, "hold", true, "keep connections open and draining after the report")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&opts.serveAddr, "serve", "", "run the stub doc server on this address instead")
	fs.IntVar(&opts.serveUpdates, "serve-updates", 0, "stub server: updates sent after introduction")
	fs.DurationVar(&opts.serveInterval, "serve-interval", 100*time.Millisecond, "stub server: interval between updates")
	fs.BoolVar(&opts.listPresets, "list-presets", false, "list presets and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `doc-loadgen - concurrent handshake load generator for document servers

Usage:
  doc-loadgen [options] <host:port> <clients>

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, `
Examples:
  doc-loadgen 127.0.0.1:8080 500
  doc-loadgen -timeout 30s -hold=false 127.0.0.1:8080 1000
  doc-loadgen -config run.yaml
  doc-loadgen -preset burst 127.0.0.1:8080
  doc-loadgen -serve :8080
`)
	}
	return fs
}

func run(args []string, stdout, stderr io.Writer) int {
	logger.Default.SetOutput(stderr)

	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "doc-loadgen version %s\n", version)
		return exitOK
	}
	if opts.listPresets {
		printPresets(stdout)
		return exitOK
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			logger.Info("", "Interrupt received, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.serveAddr != "" {
		return serve(ctx, opts)
	}

	runCfg, err := buildRun(fs, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		if errors.Is(err, errUsage) {
			fs.Usage()
			return exitUsage
		}
		return exitError
	}
	logger.SetLevel(runCfg.LogLevel)

	return runLoad(ctx, runCfg, stdout)
}

// buildRun は設定ファイル、プリセット、フラグ、位置引数の順に上書きして実行設定を作る
func buildRun(fs *flag.FlagSet, opts options) (config.Run, error) {
	runCfg := config.DefaultRun()

	if opts.presetName != "" {
		preset, ok := config.GetPreset(opts.presetName)
		if !ok {
			return runCfg, fmt.Errorf("%w: unknown preset %q (available: %v)", errUsage, opts.presetName, config.ListPresets())
		}
		runCfg = preset.Apply(runCfg)
	}

	if opts.configFile != "" {
		fileCfg, err := config.LoadFile(opts.configFile)
		if err != nil {
			return runCfg, fmt.Errorf("config file: %w", err)
		}
		if err := fileCfg.Validate(); err != nil {
			return runCfg, fmt.Errorf("config validation: %w", err)
		}
		runCfg, err = fileCfg.Apply(runCfg)
		if err != nil {
			return runCfg, fmt.Errorf("config conversion: %w", err)
		}
	}

	// 明示的に指定されたフラグのみ上書き
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scheme":
			runCfg.Coordinator.Scheme = opts.scheme
		case "timeout":
			runCfg.Coordinator.Timeout = opts.timeout
		case "max-jitter":
			runCfg.Coordinator.MaxJitter = opts.maxJitter
		case "handshake-timeout":
			runCfg.Coordinator.HandshakeTimeout = opts.handshakeTimeout
		case "seed":
			runCfg.Coordinator.Seed = opts.seed
		case "hold":
			runCfg.Hold = opts.hold
		case "log-level":
			level, err := logger.ParseLevel(opts.logLevel)
			if err != nil {
				flagErr = fmt.Errorf("%w: %v", errUsage, err)
				return
			}
			runCfg.LogLevel = level
		}
	})
	if flagErr != nil {
		return runCfg, flagErr
	}

	positional := fs.Args()
	if len(positional) > 2 {
		return runCfg, fmt.Errorf("%w: too many arguments", errUsage)
	}
	if len(positional) >= 1 {
		runCfg.Coordinator.Target = positional[0]
	}
	if len(positional) == 2 {
		n, err := strconv.Atoi(positional[1])
		if err != nil || n < 1 {
			return runCfg, fmt.Errorf("%w: clients must be a positive integer, got %q", errUsage, positional[1])
		}
		runCfg.Coordinator.Clients = n
	} else if opts.configFile == "" && opts.presetName == "" {
		return runCfg, fmt.Errorf("%w: missing <host:port> <clients>", errUsage)
	}

	if runCfg.Coordinator.Target == "" {
		return runCfg, fmt.Errorf("%w: missing <host:port>", errUsage)
	}
	return runCfg, nil
}

// runLoad は負荷を実行し、レポートを出力する
func runLoad(ctx context.Context, runCfg config.Run, stdout io.Writer) int {
	cfg := runCfg.Coordinator
	logger.Info("", "Connecting %d clients to %s (max jitter %v)", cfg.Clients, cfg.Target, cfg.MaxJitter)

	bus := events.NewBusForSessions(cfg.Clients)
	sub := bus.Subscribe()
	progressDone := make(chan struct{})
	go func() {
		logProgress(sub, cfg.Clients)
		close(progressDone)
	}()
	defer func() {
		bus.Unsubscribe(sub)
		<-progressDone
		if dropped := bus.Dropped(); dropped > 0 {
			logger.Warn("", "Dropped %d progress events", dropped)
		}
		bus.Close()
	}()

	c := coordinator.New(cfg)
	c.SetEventBus(bus)

	result, err := c.Run(ctx)
	if result != nil {
		fmt.Fprintln(stdout, result.Report())
	}
	if err != nil {
		logger.Error("", "Run failed: %v", err)
		c.Shutdown()
		return exitError
	}

	if !runCfg.Hold {
		c.Shutdown()
		return exitOK
	}

	logger.Info("", "Holding %d connections open; press Ctrl+C to stop", c.Active())
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("", "All connections closed by the server")
	case <-ctx.Done():
		c.Shutdown()
	}
	return exitOK
}

// logProgress はセッションイベントを進捗ログに変換し、紹介完了数を返す
func logProgress(sub <-chan events.Event, total int) int {
	step := max(total/10, 1)
	introduced := 0
	debug := logger.Default.Enabled(logger.LevelDebug)

	for ev := range sub {
		if ev.Type == events.EventSessionIntroduced {
			introduced++
			if introduced%step == 0 || introduced == total {
				logger.Info("", "Progress: %d/%d introduced", introduced, total)
			}
		}
		if !debug {
			continue
		}

		label := fmt.Sprintf("client-%d", ev.SessionID)
		switch ev.Type {
		case events.EventSessionConnected:
			logger.Debug(label, "connected")
		case events.EventSessionIntroduced:
			logger.Debug(label, "introduced in %s", ev.Data.Handshake)
		case events.EventSessionFailed:
			logger.Debug(label, "failed at %s: %s", ev.Data.Stage, ev.Data.Error)
		case events.EventSessionClosed:
			logger.Debug(label, "closed after draining %d messages", ev.Data.Drained)
		}
	}
	return introduced
}

// serve はスタブのドキュメントサーバーを起動する
func serve(ctx context.Context, opts options) int {
	level, err := logger.ParseLevel(opts.logLevel)
	if err != nil {
		logger.Error("", "%v", err)
		return exitUsage
	}
	logger.SetLevel(level)

	cfg := docserver.DefaultConfig()
	cfg.Updates = opts.serveUpdates
	cfg.UpdateInterval = opts.serveInterval

	srv := docserver.New(cfg)
	if err := srv.ListenAndServe(ctx, opts.serveAddr); err != nil {
		logger.Error("", "server error: %v", err)
		return exitError
	}

	stats := srv.Stats()
	logger.Info("", "Served %d connections (%d introduced)", stats.Connections, stats.Introduced)
	return exitOK
}

// printPresets は利用可能なプリセットを表示する
func printPresets(w io.Writer) {
	fmt.Fprintln(w, "Available presets:")
	fmt.Fprintln(w)
	for _, name := range config.ListPresets() {
		p, _ := config.GetPreset(name)
		fmt.Fprintf(w, "  %-8s %s\n", p.Name, p.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Example: doc-loadgen -preset smoke 127.0.0.1:8080")
}
