// File: cmd/reactorhttpd/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// reactorhttpd is the demo entry binary: it wires a WebFrame onto a
// base EventLoop, registers a health-check route plus an optional
// static file handler, and runs the base loop on the main goroutine
// until SIGINT/SIGTERM.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/reactorhttp/adapters"
	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/httpx"
	"github.com/momentics/reactorhttp/reactor"
	"github.com/momentics/reactorhttp/server"
	"github.com/momentics/reactorhttp/webframe"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reactorhttpd",
		Short: "Multi-reactor HTTP/1.1 server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	flags := cmd.Flags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("host", "0.0.0.0", "listen host")
	flags.Int("port", 8080, "listen port")
	flags.Int("threads", 0, "I/O worker loops (0 = single-threaded)")
	flags.Int("backlog", 1024, "listen backlog")
	flags.Bool("reuse_port", false, "enable SO_REUSEPORT")
	flags.Bool("affinity", false, "pin each worker loop to a CPU core")
	flags.Duration("idle_timeout", 60*time.Second, "force-close a connection idle this long (0 disables)")
	flags.String("log_level", "info", "debug|info|warn|error")
	flags.Bool("log_dev", false, "use the development zap console encoder")
	flags.String("static_dir", "", "serve GET /static/*filepath from this directory (empty disables)")
	return cmd
}

func run(cfg Config) error {
	logger := buildLogger(cfg)
	defer func() { _ = logger.Sync() }()

	control := adapters.NewAtomicControl()

	baseLoop, err := reactor.NewEventLoop(control, logger)
	if err != nil {
		return fmt.Errorf("cmd: new event loop: %w", err)
	}

	wf, err := webframe.New(baseLoop, "reactorhttpd", cfg.Host, cfg.Port, control, logger,
		server.WithThreadNum(cfg.Threads),
		server.WithBacklog(cfg.Backlog),
		server.WithReusePort(cfg.ReusePort),
		server.WithAffinity(cfg.Affinity),
		server.WithIdleTimeout(cfg.IdleTimeout),
	)
	if err != nil {
		return fmt.Errorf("cmd: new web frame: %w", err)
	}

	if err := wf.GET("/healthz", healthzHandler); err != nil {
		return err
	}
	if cfg.StaticDir != "" {
		if err := wf.GET("/static/*filepath", staticHandler(cfg.StaticDir)); err != nil {
			return err
		}
	}

	if err := wf.Start(); err != nil {
		return fmt.Errorf("cmd: start: %w", err)
	}
	logger.Info("listening", api.F("host", cfg.Host), api.F("port", cfg.Port), api.F("threads", cfg.Threads))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		wf.Stop()
	}()

	baseLoop.Loop()
	return baseLoop.Close()
}

func healthzHandler(req *httpx.HttpRequest, resp *httpx.HttpResponse) {
	resp.SetStatus(200, "OK")
	resp.SetContentType("text/plain; charset=utf-8")
	resp.SetBody([]byte("ok\n"))
}

func buildLogger(cfg Config) *adapters.ZapLogger {
	if cfg.LogDev {
		return adapters.NewZapLogger(true)
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lvl = zapcore.InfoLevel
	}
	return adapters.NewZapLoggerAt(lvl)
}
