// Package agent 设备代理装配
//
// 按配置装配采样源、检测管线与消费者子系统并管理其生命周期。
// 组件之间只通过共享状态总线耦合，任何消费者都不触碰管线内部。
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/archive"
	"github.com/aland-omed/ElderGuard/internal/audio"
	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/config"
	"github.com/aland-omed/ElderGuard/internal/display"
	"github.com/aland-omed/ElderGuard/internal/ecg"
	"github.com/aland-omed/ElderGuard/internal/fall"
	"github.com/aland-omed/ElderGuard/internal/feed"
	"github.com/aland-omed/ElderGuard/internal/location"
	"github.com/aland-omed/ElderGuard/internal/medication"
	"github.com/aland-omed/ElderGuard/internal/mqtt"
	"github.com/aland-omed/ElderGuard/internal/notify"
	"github.com/aland-omed/ElderGuard/internal/sensor"
	"github.com/aland-omed/ElderGuard/internal/status"
	"github.com/aland-omed/ElderGuard/internal/stream"
)

// Sources 采样输入集合
// sim 模式由内置模拟器填充；外部硬件适配器经 NewAgentWithSources 注入
type Sources struct {
	Ecg      ecg.SampleSource
	Inertial fall.InertialSource
	Location location.Source
}

// nopSink MQTT 停用时的发布出口
type nopSink struct{}

func (nopSink) Publish(string, byte, bool, []byte) error { return nil }

// Agent 设备代理
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	b          *bus.Bus
	extractor  *ecg.Extractor
	detector   *fall.Detector
	locSampler *location.Sampler

	mqttClient *mqtt.Client
	telemetry  *mqtt.TelemetryPublisher
	statusPub  *status.Publisher
	sink       *stream.Sink
	notifier   *notify.Notifier
	medSched   *medication.Scheduler
	dispatcher *audio.Dispatcher
	displayB   *display.Builder
	feedSrv    *feed.Server
	arch       *archive.Archive

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAgent 按配置创建设备代理
// SENSOR_MODE=sim 使用内置信号模拟器；外部硬件用 NewAgentWithSources 注入
func NewAgent(cfg *config.Config, tun config.Tunables, logger *zap.Logger) (*Agent, error) {
	if cfg.Sensor.Mode != "sim" {
		return nil, fmt.Errorf("sensor mode %q requires injected sources, use NewAgentWithSources", cfg.Sensor.Mode)
	}
	return NewAgentWithSources(cfg, tun, Sources{
		Ecg:      sensor.NewEcgSimulator(tun.HeartRate.SampleRateHz, 800),
		Inertial: sensor.NewInertialSimulator(),
		Location: &location.FixedSource{Lat: cfg.Location.Lat, Lon: cfg.Location.Lon},
	}, logger)
}

// NewAgentWithSources 以注入的采样源创建设备代理
func NewAgentWithSources(cfg *config.Config, tun config.Tunables, srcs Sources, logger *zap.Logger) (*Agent, error) {
	a := &Agent{cfg: cfg, logger: logger}

	publishTimeout := time.Duration(tun.Bus.PublishTimeoutMs) * time.Millisecond
	a.b = bus.NewBus(publishTimeout, logger)

	// 核心管线
	a.extractor = ecg.NewExtractor(tun.HeartRate, srcs.Ecg, a.b, logger.Named("ecg"))
	a.detector = fall.NewDetector(tun.Fall, srcs.Inertial, a.b, logger.Named("fall"))

	if cfg.Location.Enabled {
		a.locSampler = location.NewSampler(srcs.Location, cfg.Location.Interval, a.b, logger.Named("location"))
	}

	// 上行链路：realtime + retained 状态 + 遗嘱
	statusTopic := fmt.Sprintf("%s/%d/status", cfg.MQTT.BaseTopic, cfg.Device.PatientID)
	var uplink mqtt.Sink = nopSink{}
	if cfg.MQTT.Enabled {
		a.mqttClient = mqtt.NewClient(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			WillTopic:   statusTopic,
			WillPayload: status.WillPayload(cfg.Device.DeviceID),
		}, logger.Named("mqtt"))
		uplink = a.mqttClient
		a.telemetry = mqtt.NewTelemetryPublisher(cfg.Device.DeviceID, cfg.MQTT.BaseTopic,
			cfg.Device.PatientID, uplink, a.b, logger.Named("telemetry"))
	}

	statusSources := status.Sources{
		HeartRate: a.extractor,
		Fall:      a.detector,
	}
	if a.locSampler != nil {
		statusSources.Location = a.locSampler
	}
	a.statusPub = status.NewPublisher(cfg.Device.DeviceID, cfg.Device.FirmwareVersion,
		cfg.MQTT.BaseTopic, cfg.Device.PatientID, cfg.Status.Interval, uplink, a.b,
		statusSources, logger.Named("status"))
	if a.mqttClient != nil {
		a.mqttClient.OnConnect(a.statusPub.KickNow)
	}

	if cfg.Redis.Enabled {
		sink, err := stream.NewSink(stream.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		}, cfg.Device.DeviceID, a.b, logger.Named("stream"))
		if err != nil {
			// 床旁直读是增强通道，不因 Redis 不可达拒绝启动
			logger.Warn("redis stream sink unavailable", zap.Error(err))
		} else {
			a.sink = sink
		}
	}

	a.notifier = notify.NewNotifier(notify.Options{
		BaseURL:     cfg.API.BaseURL,
		Token:       cfg.API.Token,
		PatientID:   cfg.Device.PatientID,
		HighRateBPM: cfg.API.HighRateBPM,
		Cooldown:    cfg.API.AlertCooldown,
	}, a.b, logger.Named("notify"))

	if cfg.Medication.Enabled {
		medClient := medication.NewClient(cfg.API.BaseURL, cfg.API.Token,
			cfg.Device.PatientID, logger.Named("medication"))
		a.medSched = medication.NewScheduler(medClient, cfg.Medication.CacheFile,
			cfg.Medication.FetchInterval, cfg.Medication.CheckInterval, a.b, logger.Named("medication"))
	}

	if cfg.Audio.Enabled {
		player := &audio.LogPlayer{Logger: logger.Named("audio")}
		a.dispatcher = audio.NewDispatcher(player, cfg.Audio.Volume, a.b, logger.Named("audio"))
	}

	var upcoming display.UpcomingSource
	if a.medSched != nil {
		upcoming = a.medSched
	}
	a.displayB = display.NewBuilder(a.b, upcoming, logger.Named("display"))

	if cfg.Feed.Enabled {
		a.feedSrv = feed.NewServer(cfg.Feed.Addr, a.b, logger.Named("feed"))
	}

	if cfg.Archive.Enabled {
		arch, err := archive.Open(archive.Options{
			Host:     cfg.Archive.Host,
			Port:     cfg.Archive.Port,
			User:     cfg.Archive.User,
			Password: cfg.Archive.Password,
			Database: cfg.Archive.Database,
			SSLMode:  cfg.Archive.SSLMode,
		}, cfg.Device.DeviceID, a.b, logger.Named("archive"))
		if err != nil {
			return nil, fmt.Errorf("failed to open event archive: %w", err)
		}
		if err := arch.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		a.arch = arch
	}

	return a, nil
}

// Bus 共享状态总线（外部消费者只读接入点）
func (a *Agent) Bus() *bus.Bus {
	return a.b
}

// Display 屏幕视图模型入口
func (a *Agent) Display() *display.Builder {
	return a.displayB
}

// Start 启动全部组件
func (a *Agent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("starting elderguard agent",
		zap.String("device_id", a.cfg.Device.DeviceID),
		zap.String("sensor_mode", a.cfg.Sensor.Mode))

	// 管线先行：跌倒检测含启动标定，消费者随后
	a.spawn(a.detector.Run, runCtx)
	a.spawn(a.extractor.Run, runCtx)
	if a.locSampler != nil {
		a.spawn(a.locSampler.Run, runCtx)
	}

	if a.telemetry != nil {
		a.spawn(a.telemetry.Run, runCtx)
	}
	a.spawn(a.statusPub.Run, runCtx)
	if a.sink != nil {
		a.spawn(a.sink.Run, runCtx)
	}
	a.spawn(a.notifier.Run, runCtx)
	if a.medSched != nil {
		a.spawn(a.medSched.Run, runCtx)
	}
	if a.dispatcher != nil {
		a.spawn(a.dispatcher.Run, runCtx)
	}
	a.spawn(a.displayB.Run, runCtx)
	if a.feedSrv != nil {
		a.spawn(a.feedSrv.Run, runCtx)
	}
	if a.arch != nil {
		a.spawn(a.arch.Run, runCtx)
	}

	a.logger.Info("elderguard agent started")
	return nil
}

func (a *Agent) spawn(run func(context.Context), ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		run(ctx)
	}()
}

// Stop 停止全部组件并关闭外部连接
func (a *Agent) Stop(ctx context.Context) error {
	a.logger.Info("stopping elderguard agent")
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown grace period exceeded")
	}

	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Error("error closing redis sink", zap.Error(err))
		}
	}
	if a.arch != nil {
		if err := a.arch.Close(); err != nil {
			a.logger.Error("error closing archive", zap.Error(err))
		}
	}

	a.logger.Info("elderguard agent stopped")
	return nil
}
