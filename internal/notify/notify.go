// Package notify 护理平台报警推送
//
// 跌倒确认即时 POST；持续高心率按类型冷却（默认 60 秒一条），避免一次
// 发作刷出几十条报警。推送失败只记日志，从不回传到检测管线。
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
)

// Options 报警推送参数
type Options struct {
	BaseURL     string
	Token       string
	PatientID   int
	HighRateBPM int
	Cooldown    time.Duration
}

// Notifier 报警推送器
type Notifier struct {
	opts   Options
	client *resty.Client
	b      *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewNotifier 创建报警推送器
func NewNotifier(opts Options, b *bus.Bus, logger *zap.Logger) *Notifier {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Notifier{
		opts:     opts,
		client:   client,
		b:        b,
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
}

// Run 运行推送循环直到 ctx 取消
func (n *Notifier) Run(ctx context.Context) {
	fallSub := n.b.Fall.Subscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	n.logger.Info("alert notifier started",
		zap.String("base_url", n.opts.BaseURL),
		zap.Int("high_rate_bpm", n.opts.HighRateBPM))

	for {
		select {
		case <-ctx.Done():
			return
		case <-fallSub.Notify():
			if fallSub.Fresh() {
				if ev := n.b.Fall.Get(); ev.Detected {
					n.notifyFall(ev)
				}
			}
		case <-ticker.C:
			n.checkHeartRate(n.b.HeartRate.Get(), time.Now())
		}
	}
}

// notifyFall 推送跌倒报警
// 每次确认即发，不做类型冷却：确认频率已由状态机冷却期限制
func (n *Notifier) notifyFall(ev models.FallEvent) {
	n.post(models.AlertRequest{
		PatientID:      n.opts.PatientID,
		Type:           "fall",
		Severity:       ev.Severity,
		ImpactStrength: ev.PeakAcceleration,
		EventID:        uuid.New().String(),
		CreatedAt:      ev.Timestamp.Format(time.RFC3339),
	})
}

// checkHeartRate 有效心率超阈值时推送高心率报警
// 报警只看 validSignal 为真的读数，显示宽限期的旧值从不触发报警
func (n *Notifier) checkHeartRate(hr models.HeartRateReading, now time.Time) {
	if !hr.ValidSignal || hr.BPM <= n.opts.HighRateBPM {
		return
	}
	if !n.allow("high_heart_rate", now) {
		return
	}
	n.post(models.AlertRequest{
		PatientID: n.opts.PatientID,
		Type:      "high_heart_rate",
		HeartRate: hr.BPM,
		CreatedAt: hr.Timestamp.Format(time.RFC3339),
	})
}

// allow 同类型报警的冷却检查
func (n *Notifier) allow(alertType string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if last, ok := n.lastSent[alertType]; ok && now.Sub(last) < n.opts.Cooldown {
		return false
	}
	n.lastSent[alertType] = now
	return true
}

func (n *Notifier) post(req models.AlertRequest) {
	resp, err := n.client.R().SetBody(req).Post("/api/alerts")
	if err != nil {
		n.logger.Error("alert post failed",
			zap.String("type", req.Type),
			zap.Error(err))
		return
	}
	if resp.IsError() {
		n.logger.Error("alert rejected by platform",
			zap.String("type", req.Type),
			zap.Int("status_code", resp.StatusCode()))
		return
	}
	n.logger.Info("alert delivered",
		zap.String("type", req.Type),
		zap.Int("status_code", resp.StatusCode()))
}
