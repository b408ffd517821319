package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krinkuto11/acexy-multiplexer/lib/acexy"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "acexy-multiplexer",
		Short: "Reverse proxy that de-duplicates concurrent AceStream requests into one upstream session",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(debug)
			return run(cmd)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	registerFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	host, port, err := splitListenAddr(cfg.ListenAddr)
	if err != nil {
		return err
	}
	listenAddr := net.JoinHostPort(host, port)

	upstream := acexy.NewHTTPUpstreamClient(cfg.Scheme, cfg.Host, cfg.Port, cfg.Endpoint(), cfg.NoResponseTimeout, cfg.EmptyTimeout)
	defer upstream.Close()

	registry := acexy.NewRegistry(upstream, cfg.EmptyTimeout)
	server := &Server{registry: registry, cfg: cfg}

	httpSrv := newHTTPServer(listenAddr, newRouter(server))
	scheduler := newSnapshotScheduler(registry)
	scheduler.Start()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
