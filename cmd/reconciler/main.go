package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/merchantskit/merchants/internal/bootstrap"
	"github.com/merchantskit/merchants/internal/reconciler"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "merchants-reconciler", "merchants_reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	sessionRouter, err := app.NewSessionRouter()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build session router")
	}
	sessionService := app.NewSessionService(sessionRouter)

	rec := reconciler.New(sessionService, reconciler.Config{
		Interval:     app.Config.Reconciler.Interval,
		PendingAfter: app.Config.Reconciler.PendingAfter,
		BatchSize:    app.Config.Reconciler.BatchSize,
	}, app.Logger, app.Metrics)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rec.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down reconciler...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Reconciler error")
	}
	app.Logger.Info().Msg("Reconciler exited")
}
