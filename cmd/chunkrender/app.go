// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/joeycumines/go-asyncrender/asyncrender"
	"github.com/joeycumines/go-asyncrender/daemon"
	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/internal/fragment"
	"github.com/joeycumines/go-asyncrender/internal/sink"
	"github.com/joeycumines/go-asyncrender/iterable"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/urfave/cli/v3"
)

type renderConfig struct {
	source   string
	perChunk int
	budget   int
	filterLT int
	mode     daemon.TickMode
	timeout  time.Duration
	useRAF   bool
	tree     bool
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.Command {
	var logger *logiface.Logger[logiface.Event]
	return &cli.Command{
		Name:      "chunkrender",
		Usage:     `Incrementally render a source, one chunk per scheduled task.`,
		Version:   build(),
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (emerg, alert, crit, err, warning, notice, info, debug, trace, disabled)",
				Sources: cli.EnvVars("CHUNKRENDER_LOG_LEVEL"),
				Value:   "warning",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := parseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}
			logger = stumpy.L.New(
				stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
				stumpy.L.WithLevel(level),
			).Logger()
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "render",
				Usage: "Render a source, writing a JSON line per chunk",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: `an integer n (the range [0, n)), "true" or "false" (an unbounded range), "-" (stdin lines), or a string (its characters)`,
						Value: "10",
					},
					&cli.IntFlag{
						Name:  "per-chunk",
						Usage: "elements per chunk",
						Value: 3,
					},
					&cli.IntFlag{
						Name:  "budget",
						Usage: "total task weight per tick",
						Value: daemon.DefaultBudget,
					},
					&cli.IntFlag{
						Name:  "filter-lt",
						Usage: "if positive, accept only integers less than this, ending unbounded ranges",
					},
					&cli.StringFlag{
						Name:  "tick-mode",
						Usage: "when the daemon drains (frame, timeout, microtask)",
						Value: daemon.TickAnimationFrame.String(),
					},
					&cli.BoolFlag{
						Name:  "raf",
						Usage: "insert each chunk on the animation frame after it renders",
					},
					&cli.BoolFlag{
						Name:  "tree",
						Usage: "print the rendered tree once done",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "abandon rendering after this long",
						Value: 30 * time.Second,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					mode, err := parseTickMode(c.String("tick-mode"))
					if err != nil {
						return err
					}
					return runRender(ctx, logger, stdin, stdout, renderConfig{
						source:   c.String("source"),
						perChunk: int(c.Int("per-chunk")),
						budget:   int(c.Int("budget")),
						filterLT: int(c.Int("filter-lt")),
						mode:     mode,
						timeout:  c.Duration("timeout"),
						useRAF:   c.Bool("raf"),
						tree:     c.Bool("tree"),
					})
				},
			},
		},
	}
}

func runRender(ctx context.Context, logger *logiface.Logger[logiface.Event], stdin io.Reader, stdout io.Writer, cfg renderConfig) error {
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		return err
	}
	defer loop.Close()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() { _ = loop.Run(loopCtx) }()

	source := parseSource(cfg.source, stdin)
	out := sink.New(stdout)
	root := fragment.New("ul")

	var opts []asyncrender.IterateOption
	opts = append(opts, asyncrender.WithTarget(root))
	if cfg.useRAF {
		opts = append(opts, asyncrender.UseRAF())
	}
	if cfg.filterLT > 0 {
		limit := cfg.filterLT
		opts = append(opts, asyncrender.Filter(func(el any, _ int, _ iterable.FilterContext) (iterable.FilterResult, error) {
			if v, ok := el.(int); ok {
				return iterable.Bool(v < limit), nil
			}
			return iterable.Accept(), nil
		}))
	}

	type outcome struct {
		err      error
		metrics  daemon.Metrics
		rendered int
	}
	result := make(chan outcome, 1)

	if err := loop.Submit(func() {
		r, err := asyncrender.New(loop,
			asyncrender.WithLogger(logger),
			asyncrender.WithDaemonOptions(daemon.WithBudget(cfg.budget), daemon.WithTickMode(cfg.mode)),
		)
		if err != nil {
			result <- outcome{err: err}
			return
		}
		s, err := r.Iterate(source, cfg.perChunk, renderElements, opts...)
		if err != nil {
			result <- outcome{err: err}
			return
		}
		s.Run(out.Observe).Then(
			func(v eventloop.Result) (eventloop.Result, error) {
				result <- outcome{rendered: v.(int), metrics: r.Daemon().Metrics()}
				return nil, nil
			},
			func(err error) (eventloop.Result, error) {
				result <- outcome{err: err}
				return nil, nil
			},
		)
	}); err != nil {
		return err
	}

	var res outcome
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-result:
	}
	if res.err != nil {
		return res.err
	}
	if err := out.Err(); err != nil {
		return err
	}

	logger.Info().
		Int("rendered", res.rendered).
		Uint64("ticks", res.metrics.Ticks).
		Uint64("executed", res.metrics.Executed).
		Dur("drain_p50", res.metrics.DrainP50).
		Dur("drain_max", res.metrics.DrainMax).
		Log("chunkrender: done")

	if cfg.tree {
		markup := make(chan string, 1)
		if err := loop.Submit(func() { markup <- root.Render() }); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(stdout, <-markup); err != nil {
			return err
		}
	}
	return nil
}

func renderElements(chunk iterable.Chunk) ([]asyncrender.Node, error) {
	nodes := make([]asyncrender.Node, 0, len(chunk.Elements))
	for _, el := range chunk.Elements {
		nodes = append(nodes, fragment.New("li", fragment.Text(fmt.Sprint(el))))
	}
	return nodes, nil
}

// parseSource converts the source flag into a value accepted by
// [iterable.Normalize].
func parseSource(s string, stdin io.Reader) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "-":
		ch := make(chan string)
		go func() {
			defer close(ch)
			scanner := bufio.NewScanner(stdin)
			for scanner.Scan() {
				ch <- scanner.Text()
			}
		}()
		return iterable.Channel[string](ch)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

func parseTickMode(s string) (daemon.TickMode, error) {
	for _, mode := range [...]daemon.TickMode{daemon.TickAnimationFrame, daemon.TickTimeout, daemon.TickMicrotask} {
		if mode.String() == s {
			return mode, nil
		}
	}
	return 0, errors.New("unknown tick mode " + strconv.Quote(s))
}
