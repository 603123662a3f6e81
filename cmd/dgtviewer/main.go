// dgtviewer serves the live position of an attached DGT board to a browser.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/park285/dgtviewer/internal/acquire"
	appcfg "github.com/park285/dgtviewer/internal/config"
	"github.com/park285/dgtviewer/internal/dgt"
	"github.com/park285/dgtviewer/internal/httpapi"
	"github.com/park285/dgtviewer/internal/mirror"
	"github.com/park285/dgtviewer/internal/obslog"
	"github.com/park285/dgtviewer/internal/render"
	"github.com/park285/dgtviewer/internal/state"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "dgtviewer: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string) error {
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	flagSet := pflag.NewFlagSet("dgtviewer", pflag.ContinueOnError)
	flagSet.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to use")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.NewStore()
	opener := dgt.SerialOpener{
		BaudRate: cfg.DGTBaudRate,
		Options:  dgt.Options{DumpInterval: cfg.DGTDumpInterval},
		Logger:   logger.Named("dgt"),
	}
	loop := acquire.New(dgt.SerialEnumerator{}, opener, store, acquire.Config{
		VendorID:          cfg.DGTVendorID,
		DiscoveryInterval: cfg.DGTDiscoveryInterval,
		RetryDelay:        cfg.DGTRetryDelay,
		MaxRetryDelay:     cfg.DGTMaxRetryDelay,
	}, logger.Named("acquire"))

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           httpapi.New(store, loop, render.New(), logger.Named("http")).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	fmt.Printf("Server running at http://%s/\n", addr)
	logger.Info("server_started", zap.String("addr", addr), zap.String("vendor_id", cfg.DGTVendorID))

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() { errCh <- loop.Run(ctx) }()

	if cfg.RedisURL != "" {
		rdb, err := mirror.Dial(ctx, cfg.RedisURL)
		if err != nil {
			_ = srv.Close()
			return err
		}
		defer rdb.Close()
		pub := mirror.NewPublisher(rdb, cfg.RedisStateKey, logger.Named("mirror"))
		go func() { _ = pub.Run(ctx, store) }()
		logger.Info("mirror_enabled", zap.String("key", cfg.RedisStateKey))
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown", zap.Error(err))
	}
	logger.Info("server_stopped")
	return runErr
}
