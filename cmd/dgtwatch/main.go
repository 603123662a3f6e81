// dgtwatch follows a dgtviewer server (or its Redis mirror) and redraws
// the board in the terminal or into a PNG file whenever it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/park285/dgtviewer/internal/mirror"
	"github.com/park285/dgtviewer/internal/obslog"
	"github.com/park285/dgtviewer/internal/render"
	"github.com/park285/dgtviewer/internal/viewer"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "dgtwatch: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string) error {
	var (
		serverURL   string
		path        string
		interval    time.Duration
		orientation string
		pngPath     string
		squareSize  int
		redisURL    string
		redisKey    string
	)
	flagSet := pflag.NewFlagSet("dgtwatch", pflag.ContinueOnError)
	flagSet.StringVarP(&serverURL, "url", "u", "http://localhost:3000", "dgtviewer base URL")
	flagSet.StringVar(&path, "path", "/state.json", "state endpoint path")
	flagSet.DurationVarP(&interval, "interval", "i", viewer.DefaultInterval, "poll interval")
	flagSet.StringVarP(&orientation, "orientation", "o", "white", "side at the bottom (white|black)")
	flagSet.StringVar(&pngPath, "png", "", "write the board to this PNG file instead of the terminal")
	flagSet.IntVar(&squareSize, "size", render.DefaultSquareSize, "PNG square size in pixels")
	flagSet.StringVar(&redisURL, "redis", "", "read the mirrored state from this Redis URL instead of HTTP")
	flagSet.StringVar(&redisKey, "redis-key", mirror.DefaultKey, "Redis key holding the mirrored state")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	side, err := render.ParseOrientation(orientation)
	if err != nil {
		return err
	}
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetcher viewer.Fetcher
	if redisURL != "" {
		rdb, err := mirror.Dial(ctx, redisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		fetcher = mirror.NewReader(rdb, redisKey)
	} else {
		fetcher = viewer.NewHTTPFetcher(serverURL, viewer.WithPath(path), viewer.WithTimeout(2*time.Second))
	}

	var renderer viewer.Renderer = &viewer.TerminalRenderer{W: os.Stdout}
	if pngPath != "" {
		renderer = &viewer.PNGFileRenderer{Path: pngPath, SquareSize: squareSize, Renderer: render.New()}
	}

	p := viewer.NewPoller(fetcher, renderer, viewer.Config{Interval: interval, Orientation: side}, logger.Named("viewer"))
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
