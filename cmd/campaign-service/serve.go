package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"jobmate/campaign-service/internal/grpcserver"
	"jobmate/campaign-service/internal/httpapi"
	"jobmate/campaign-service/internal/logger"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, dispatcher and operator APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log := a.log

	// Background work runs on its own context so shutdown can drain it in
	// order after the listeners close.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	a.dispatcher.Start(workCtx, a.bus.Subscribe("dispatcher"))
	if err := a.scheduler.Start(workCtx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.Deps{
		Campaigns: a.campaigns,
		Cards:     a.cards,
		Scanner:   a.scheduler,
		Postings:  a.store,
		Gatherer:  a.registry,
		Logger:    log,
		Version:   version,
	})
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+a.cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)))
	grpcserver.Register(gs, grpcserver.NewServer(a.campaigns, a.cards))

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP listening", logger.String("port", a.cfg.Server.HTTPPort), logger.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("gRPC listening", logger.String("port", a.cfg.Server.GRPCPort))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", logger.Error(err))
	}
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	a.scheduler.Stop()
	a.bus.Close()
	drained := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("dispatcher did not drain before the shutdown timeout")
		cancelWork()
		select {
		case <-drained:
		case <-time.After(time.Second):
		}
	}

	log.Info("stopped")
	return runErr
}
