// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command chunkrender renders a source incrementally, on an event loop,
// writing each chunk's fragment as a JSON line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "chunkrender: %v\n", err)
		stop()
		os.Exit(1)
	}
}
