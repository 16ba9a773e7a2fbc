package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/agent"
	"github.com/aland-omed/ElderGuard/internal/config"
	"github.com/aland-omed/ElderGuard/internal/logger"
)

const shutdownGrace = 5 * time.Second

func main() {
	// .env 可选，缺失直接用进程环境
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 加载检测参数
	tunables, err := config.LoadTunables(cfg.TunablesFile)
	if err != nil {
		log.Fatalf("Failed to load tunables: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Device.DeviceID)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting elderguard agent",
		zap.String("firmware_version", cfg.Device.FirmwareVersion),
		zap.Int("patient_id", cfg.Device.PatientID),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
	)

	// 创建设备代理
	a, err := agent.NewAgent(cfg, tunables, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create agent", zap.Error(err))
	}

	// 启动
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start agent", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Agent stopped")
}
