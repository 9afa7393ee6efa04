// Command tlogd runs the transaction-log server: it loads configuration,
// opens the domain store, and serves the RPC surface over HTTP until an
// interrupt or SIGTERM triggers a graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fathomdb/searchcore/internal/config"
	"github.com/fathomdb/searchcore/internal/metrics"
	"github.com/fathomdb/searchcore/internal/rpc"
	"github.com/fathomdb/searchcore/internal/rpc/middleware"
	"github.com/fathomdb/searchcore/internal/tlog/chunk"
	"github.com/fathomdb/searchcore/internal/tlog/domain"
	"github.com/fathomdb/searchcore/internal/tlog/server"
	"github.com/fathomdb/searchcore/pkg/logger"
)

const (
	serviceName    = "tlogd"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	slog.SetDefault(log)

	log.Info("starting transaction-log server", "service", serviceName, "version", serviceVersion)

	m := metrics.New()

	srv, err := server.New(server.Config{
		RootDir: cfg.TLog.DataDir,
		DomainConfig: func(name string) domain.Config {
			return domain.Config{
				ChunkSizeLimit: cfg.TLog.ChunkSizeLimit,
				PartSizeLimit:  cfg.TLog.PartSizeLimit,
				FSyncOnCommit:  cfg.TLog.FSyncOnCommit,
				CRC:            crcKind(cfg.Encoding.CRC),
				Compression:    compressionKind(cfg.Encoding.Compression),
			}
		},
	}, m)
	if err != nil {
		log.Error("failed to open domain store", "error", err)
		os.Exit(1)
	}

	router := rpc.NewRouter(srv, rpc.Config{
		Logger:             log,
		EnableCORS:         true,
		CORS:               middleware.DefaultCORSConfig(),
		FollowPollInterval: cfg.Server.FollowPollInterval,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.BindAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.BindAddr, cfg.Metrics.Path, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("rpc server listening", "bind_addr", cfg.Server.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("rpc server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("rpc server forced shutdown", "error", err)
	}
	if err := srv.Close(); err != nil {
		log.Error("domain store close failed", "error", err)
	}

	log.Info("shutdown complete")
}

func serveMetrics(addr, path string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	log.Info("metrics server listening", "bind_addr", addr, "path", path)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server failed", "error", err)
	}
}

func crcKind(c config.CRCKind) chunk.CRCKind {
	if c == config.CRCCCITT {
		return chunk.CRCCCITT
	}
	return chunk.CRCXXH64
}

func compressionKind(c config.CompressionKind) chunk.CompressionKind {
	switch c {
	case config.CompressionLZ4:
		return chunk.CompressionLZ4
	case config.CompressionNoneMulti:
		return chunk.CompressionNoneMulti
	default:
		return chunk.CompressionZSTD
	}
}
