package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/interviewer/internal/handler"
	"github.com/pavelanni/interviewer/internal/profile"
	"github.com/pavelanni/interviewer/internal/store"
	"github.com/pavelanni/interviewer/internal/transport"
)

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(ctx, db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	gw := transport.NewGateway(transport.Options{
		RatePerSecond:  v.GetFloat64("rate"),
		Burst:          v.GetInt("burst"),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	})
	a, err := newApp(ctx, v, db, gw, profile.NewDirSource(v.GetString("profiles")))
	if err != nil {
		return err
	}
	if err := a.oracle.Ping(ctx); err != nil {
		if v.GetBool("llm-check") {
			return fmt.Errorf("language oracle health check: %w", err)
		}
		slog.Warn("language oracle unreachable, questions fall back to templates", "error", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Handle("/ws", gw.Handler(a.engine))
	handler.New(db, a.engine, a.ledger, a.cache).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "profiles", v.GetString("profiles"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.engine.RunSweeper(gctx, v.GetDuration("sweep-interval"))
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		gw.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
