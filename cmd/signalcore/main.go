/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/signalcore/internal/config"
	"github.com/friendsincode/signalcore/internal/db"
	"github.com/friendsincode/signalcore/internal/logging"
	"github.com/friendsincode/signalcore/internal/server"
	"github.com/friendsincode/signalcore/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "signalcore",
	Short: "WebRTC signaling-core server",
	Long:  "signalcore brokers room/member/endpoint signaling, TURN credential issuance, and Control-API reconciliation for WebRTC clients.",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// runServe and runMigrate prefix configuration failures with
		// "config error:"; those exit with 2, every other failure with 1.
		if strings.HasPrefix(err.Error(), "config error:") {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket, and gRPC Control-API listeners",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := logging.Setup(cfg.Environment)
	logger.Info().Str("version", version.Version).Msg("signalcore starting")
	for _, warning := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warning)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.GRPCBind, cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("bind grpc listener: %w", err)
	}
	go func() {
		logger.Info().Str("addr", grpcListener.Addr().String()).Msg("Control-API gRPC server listening")
		if err := srv.GRPCServer().Serve(grpcListener); err != nil {
			logger.Error().Err(err).Msg("grpc server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("http graceful shutdown failed")
	}
	srv.GRPCServer().GracefulStop()

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("signalcore stopped")
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := logging.Setup(cfg.Environment)

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Info().Msg("migrations applied")
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the signalcore version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Version)
		return nil
	},
}
