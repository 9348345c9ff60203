package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/rxverify/internal/export"
	"github.com/joseph-ayodele/rxverify/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC verification servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx)
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) serve(ctx context.Context) error {
	e, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer e.Close(a.logger)

	auth := a.authConfig()
	if !auth.Enabled() {
		a.logger.Warn("AUTH_JWT_SECRET not set; endpoints are unauthenticated")
	}

	httpSrv, err := server.NewHTTPServer(
		e.proc,
		e.engine,
		export.NewService(e.store, a.logger.With("component", "export")),
		server.HTTPConfig{MaxUploadBytes: a.cfg.Server.MaxUploadBytes, Auth: auth},
		a.logger.With("component", "http"),
	)
	if err != nil {
		return err
	}
	hs := &http.Server{Addr: a.cfg.Server.HTTPAddr, Handler: httpSrv.Handler()}

	grpcSrv, healthSrv := server.NewGRPCServer(e.proc, server.GRPCConfig{
		MaxRecvBytes: int(a.cfg.Server.MaxUploadBytes),
		Auth:         auth,
	}, a.logger.With("component", "grpc"))
	lis, err := net.Listen("tcp", a.cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("http listening", "addr", a.cfg.Server.HTTPAddr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		a.logger.Info("grpc listening", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		a.logger.Error("server failed", "error", serveErr)
	}

	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	a.logger.Info("servers stopped")
	return serveErr
}
