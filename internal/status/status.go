// Package status 设备状态上报
//
// 周期性构建 DeviceStatus 并以 retained 形式发布到 status 主题，
// 连接建立后立即补发一次；遗嘱消息由 MQTT 客户端在异常断连时发出。
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
	"github.com/aland-omed/ElderGuard/internal/mqtt"
	"github.com/aland-omed/ElderGuard/internal/sched"
)

// Pipeline 管线降级状态视图
type Pipeline interface {
	Disabled() bool
}

// Sources 状态采集来源
// 各管线只暴露降级标志，状态上报不触碰管线内部
type Sources struct {
	HeartRate Pipeline
	Fall      Pipeline
	Location  Pipeline
}

// Publisher 设备状态发布器
type Publisher struct {
	deviceID string
	firmware string
	topic    string
	interval time.Duration
	sink     mqtt.Sink
	b        *bus.Bus
	sources  Sources
	logger   *zap.Logger

	startedAt time.Time
	kick      chan struct{}
}

// WillPayload 遗嘱消息负载（异常断连时由代理发出）
func WillPayload(deviceID string) []byte {
	data, _ := json.Marshal(map[string]any{
		"online":    false,
		"device_id": deviceID,
	})
	return data
}

// NewPublisher 创建设备状态发布器
func NewPublisher(deviceID, firmware, baseTopic string, patientID int, interval time.Duration,
	sink mqtt.Sink, b *bus.Bus, sources Sources, logger *zap.Logger) *Publisher {
	return &Publisher{
		deviceID: deviceID,
		firmware: firmware,
		topic:    fmt.Sprintf("%s/%d/status", baseTopic, patientID),
		interval: interval,
		sink:     sink,
		b:        b,
		sources:  sources,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Topic status 主题（遗嘱注册用）
func (p *Publisher) Topic() string {
	return p.topic
}

// KickNow 触发一次立即上报（连接建立回调用）
func (p *Publisher) KickNow() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run 运行上报循环直到 ctx 取消
func (p *Publisher) Run(ctx context.Context) {
	p.startedAt = time.Now()
	p.publish(time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.kick:
				p.publish(time.Now())
			}
		}
	}()

	sched.Loop(ctx, p.interval, p.publish)
}

// Snapshot 当前设备状态
func (p *Publisher) Snapshot(now time.Time) models.DeviceStatus {
	st := models.DeviceStatus{
		Online:          true,
		DeviceID:        p.deviceID,
		UptimeSeconds:   int64(now.Sub(p.startedAt) / time.Second),
		FirmwareVersion: p.firmware,
		PublishDrops:    p.b.PublishDrops(),
		HeartRatePipe:   models.PipelineOK,
		FallPipe:        models.PipelineOK,
		Sensors:         models.SensorHealth{Ecg: true, Inertial: true, GPS: true},
		Timestamp:       now,
	}

	if p.sources.HeartRate != nil && p.sources.HeartRate.Disabled() {
		st.HeartRatePipe = models.PipelineDisabled
		st.Sensors.Ecg = false
	}
	if p.sources.Fall != nil && p.sources.Fall.Disabled() {
		st.FallPipe = models.PipelineDisabled
		st.Sensors.Inertial = false
	}
	if p.sources.Location != nil && p.sources.Location.Disabled() {
		st.Sensors.GPS = false
	}
	return st
}

func (p *Publisher) publish(now time.Time) {
	st := p.Snapshot(now)
	p.b.Status.Publish(st)

	data, err := json.Marshal(st)
	if err != nil {
		p.logger.Error("failed to marshal device status", zap.Error(err))
		return
	}
	if err := p.sink.Publish(p.topic, 1, true, data); err != nil {
		p.logger.Debug("status publish dropped", zap.Error(err))
	}
}
