// Command engined is the process entrypoint: it wires configuration,
// logging, metrics, storage, and concurrency together and runs until a
// shutdown signal arrives.
//
// Grounded on imReese-NexusKV/cmd/server/main.go's bootstrap ordering
// (config -> logger -> metrics -> storage -> serve -> graceful shutdown);
// the Raft/gRPC/WAL sections of that file have no home here (spec.md's
// Non-goals exclude distributed consensus and a wire protocol), so this
// entrypoint stops at the storage+concurrency core and exposes only the
// Prometheus /metrics endpoint the teacher's metrics.Init() sets up.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"enginecore/concurrency"
	"enginecore/config"
	"enginecore/metrics"
	"enginecore/obslog"
	"enginecore/storage/buffer"
	"enginecore/storage/disk"
)

func main() {
	configPath := flag.String("config", "./enginecore.yaml", "path to engine config YAML")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := obslog.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	metrics.Init()

	diskMgr := disk.NewManager()
	fileID, err := diskMgr.OpenFile(cfg.DataDir + "/heap.db")
	if err != nil {
		logger.Fatal("failed to open data file", zap.Error(err))
	}
	defer diskMgr.Close()

	pool := buffer.New(cfg.BufferPool.PoolSize, cfg.BufferPool.K, diskMgr, fileID)
	pool.SetMetrics(metrics.Collector{})

	lockManager := concurrency.NewLockManager()
	lockManager.SetMetrics(metrics.Collector{})
	txnManager := concurrency.NewTxnManager(lockManager)
	detector := concurrency.NewDeadlockDetector(lockManager, txnManager, cfg.Deadlock.DetectionInterval)

	detectorCtx, cancelDetector := context.WithCancel(context.Background())
	go detector.Run(detectorCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("enginecore started",
		zap.Int("buffer_pool_size", cfg.BufferPool.PoolSize),
		zap.Int("lru_k", cfg.BufferPool.K),
		zap.String("data_dir", cfg.DataDir),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancelDetector()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	if err := pool.FlushAll(); err != nil {
		logger.Error("failed to flush buffer pool", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
