package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
)

// Sink 发布出口，便于测试替换真实客户端
type Sink interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// TelemetryPublisher realtime 主题发布器
//
// 心电帧每秒一帧（QoS 0，丢了下一帧接上），跌倒报警边沿触发立即
// 发布（QoS 1，每次确认恰好一条）。只消费总线快照，从不触碰管线内部。
type TelemetryPublisher struct {
	deviceID string
	topic    string
	sink     Sink
	b        *bus.Bus
	logger   *zap.Logger
}

// NewTelemetryPublisher 创建 realtime 发布器
func NewTelemetryPublisher(deviceID, baseTopic string, patientID int, sink Sink, b *bus.Bus, logger *zap.Logger) *TelemetryPublisher {
	return &TelemetryPublisher{
		deviceID: deviceID,
		topic:    fmt.Sprintf("%s/%d/realtime", baseTopic, patientID),
		sink:     sink,
		b:        b,
		logger:   logger,
	}
}

// Run 运行发布循环直到 ctx 取消
func (p *TelemetryPublisher) Run(ctx context.Context) {
	hrSub := p.b.HeartRate.Subscribe()
	fallSub := p.b.Fall.Subscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	p.logger.Info("telemetry publisher started", zap.String("topic", p.topic))

	for {
		select {
		case <-ctx.Done():
			return
		case <-fallSub.Notify():
			if fallSub.Fresh() {
				p.publishFall()
			}
		case <-ticker.C:
			if hrSub.Fresh() {
				p.publishEcg()
			}
		}
	}
}

func (p *TelemetryPublisher) publishEcg() {
	hr := p.b.HeartRate.Get()
	win := p.b.EcgWindow.Get()
	payload := models.NewEcgPayload(p.deviceID, hr, win.Samples)

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal ecg payload", zap.Error(err))
		return
	}
	if err := p.sink.Publish(p.topic, 0, false, data); err != nil {
		p.logger.Debug("ecg frame dropped", zap.Error(err))
	}
}

func (p *TelemetryPublisher) publishFall() {
	ev := p.b.Fall.Get()
	// 冷却期满的清除发布不上行，平台只关心确认事件
	if !ev.Detected {
		return
	}

	payload := models.NewFallAlertPayload(p.deviceID, ev, p.b.Location.Get())
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal fall payload", zap.Error(err))
		return
	}
	if err := p.sink.Publish(p.topic, 1, false, data); err != nil {
		p.logger.Error("fall alert publish failed", zap.Error(err))
		return
	}
	p.logger.Warn("fall alert published",
		zap.String("event_id", payload.EventID),
		zap.Int("severity", payload.Severity))
}
