package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/14-planning-poker/internal"
	"github.com/koopa0/system-design/14-planning-poker/internal/storage"
)

func main() {
	// 解析命令行參數（未指定時使用環境變數 / 預設值）
	var (
		envFile   = flag.String("env-file", "", "dotenv 檔案路徑（預設讀取 .env）")
		port      = flag.Int("port", 0, "服務器端口")
		logLevel  = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*envFile)
	if err == nil {
		err = cfg.Override(*port, *logLevel, *logFormat)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入設定失敗: %v\n", err)
		os.Exit(1)
	}

	// 設置日誌
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// 開啟快照鏡像（可選）
	store, err := storage.Open(context.Background(), cfg.MirrorDriver, cfg.MirrorDSN, cfg.MirrorTTL)
	if err != nil {
		logger.Error("開啟快照鏡像失敗", "driver", cfg.MirrorDriver, "error", err)
		os.Exit(1)
	}

	var (
		writer *storage.Writer
		sink   internal.SnapshotSink
		mirror internal.MirrorReader
	)
	if store != nil {
		writer = storage.NewWriter(store, logger)
		sink = writer
		mirror = store
		logger.Info("快照鏡像已啟用", "driver", cfg.MirrorDriver)
	}

	// 創建 WebSocket Hub
	wsHub := internal.NewWebSocketHub(logger, cfg.AllowedOrigins)

	// 創建房間管理器
	manager := internal.NewManager(cfg.ManagerConfig(), wsHub, sink, logger)

	// 創建 HTTP 處理器
	handler := internal.NewHandler(manager, wsHub, mirror, logger)

	// 創建 HTTP 服務器
	// WebSocket 是長連線，不設 WriteTimeout（寫入期限由 writePump 自行控制）
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 啟動服務器
	go func() {
		logger.Info("估點房間服務器啟動",
			"port", cfg.Port,
			"default_room", cfg.DefaultRoom,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	// 優雅關閉
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 停止房間管理器（取消排程中的廣播）
	manager.Stop()

	// 停止 WebSocket Hub
	wsHub.Stop()

	// 寫完剩餘的鏡像快照
	if err := writer.Close(); err != nil {
		logger.Error("關閉快照鏡像失敗", "error", err)
	}

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
