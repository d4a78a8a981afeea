package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ferroDB/buffer"
	"ferroDB/config"
	"ferroDB/kfile"
	"ferroDB/log"
	"ferroDB/recovery"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	fm, err := kfile.NewFileMgr(cfg.DbDirectory, cfg.BlockSize)
	if err != nil {
		logger.Fatal("failed to initialize file manager", zap.Error(err))
	}
	defer func() {
		if err := fm.Close(); err != nil {
			logger.Warn("failed to close file manager", zap.Error(err))
		}
	}()

	lm, err := log.NewLogMgr(fm, cfg.LogFile, logger)
	if err != nil {
		logger.Fatal("failed to initialize log manager", zap.Error(err))
	}

	bm := buffer.NewBufferMgr(fm, lm, cfg.PoolSize, cfg.RefCountMax, logger)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	// Recover any work left behind by a previous run, then do a small
	// committed update as a startup smoke check.
	rm, err := recovery.NewRecoveryMgr(0, lm, bm)
	if err != nil {
		logger.Fatal("failed to start recovery", zap.Error(err))
	}
	if err := rm.Recover(); err != nil {
		logger.Fatal("recovery failed", zap.Error(err))
	}

	tx, err := recovery.NewRecoveryMgr(1, lm, bm)
	if err != nil {
		logger.Fatal("failed to start transaction", zap.Error(err))
	}

	buff, err := bm.Pin(kfile.NewBlockId("datafile.dat", 0))
	if err != nil {
		logger.Fatal("failed to pin block", zap.Error(err))
	}
	n, err := buff.GetInt(0)
	if err != nil {
		logger.Fatal("failed to read counter", zap.Error(err))
	}
	if _, err := tx.SetInt(buff, 0, n+1); err != nil {
		logger.Fatal("failed to bump counter", zap.Error(err))
	}
	if err := bm.Unpin(buff); err != nil {
		logger.Fatal("failed to unpin block", zap.Error(err))
	}
	if err := tx.Commit(); err != nil {
		logger.Fatal("failed to commit", zap.Error(err))
	}

	logger.Info("startup check complete",
		zap.Int("boot_count", n+1),
		zap.Int("available_buffers", bm.Available()))

	select {}
}
