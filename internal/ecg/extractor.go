// Package ecg 心率提取管线
//
// 50 Hz 采样心电信号，自适应阈值检出 R 峰，RR 间期环平均得到心率，
// 每秒向共享状态总线发布一次心率结果与原始采样窗口。
package ecg

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/config"
	"github.com/aland-omed/ElderGuard/internal/models"
	"github.com/aland-omed/ElderGuard/internal/sched"
)

// probeRetryDelay 传感器探测失败后的重试间隔
const probeRetryDelay = time.Second

// SampleSource 心电采样输入
// ReadSample 每个采样节拍调用一次，返回幅值与电极接触状态
type SampleSource interface {
	Probe() error
	ReadSample() (amplitude int, leadsOn bool)
}

// Extractor 心率提取管线
type Extractor struct {
	tun    config.HeartRateTunables
	src    SampleSource
	b      *bus.Bus
	logger *zap.Logger

	ring     *SampleRing
	detector *BeatDetector
	rate     *RateEstimator

	leadsOn     bool
	lastBeatAt  time.Time
	lastPublish time.Time

	disabled atomic.Bool
}

// NewExtractor 创建心率提取管线
func NewExtractor(tun config.HeartRateTunables, src SampleSource, b *bus.Bus, logger *zap.Logger) *Extractor {
	return &Extractor{
		tun:      tun,
		src:      src,
		b:        b,
		logger:   logger,
		ring:     NewSampleRing(tun.RingCapacity),
		detector: NewBeatDetector(tun),
		rate:     NewRateEstimator(tun),
	}
}

// Run 运行采样循环直到 ctx 取消
// 传感器探测失败重试 InitRetries 次后放弃，管线永久停用，其余系统继续运行
func (e *Extractor) Run(ctx context.Context) {
	if !e.probe(ctx) {
		e.disabled.Store(true)
		e.logger.Error("ecg sensor not available, heart rate pipeline disabled",
			zap.Int("retries", e.tun.InitRetries))
		return
	}

	e.logger.Info("heart rate pipeline started",
		zap.Int("sample_hz", e.tun.SampleRateHz),
		zap.Int("ring_capacity", e.tun.RingCapacity))

	period := time.Second / time.Duration(e.tun.SampleRateHz)
	sched.Loop(ctx, period, e.tick)
}

// Disabled 管线是否因传感器不可用而停用
func (e *Extractor) Disabled() bool {
	return e.disabled.Load()
}

func (e *Extractor) probe(ctx context.Context) bool {
	for attempt := 1; attempt <= e.tun.InitRetries; attempt++ {
		err := e.src.Probe()
		if err == nil {
			return true
		}
		e.logger.Warn("ecg sensor probe failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == e.tun.InitRetries {
			break
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(probeRetryDelay):
		}
	}
	return false
}

// tick 单个采样节拍
func (e *Extractor) tick(now time.Time) {
	amplitude, leadsOn := e.src.ReadSample()
	e.ring.Push(amplitude)
	e.leadsOn = leadsOn

	// 电极脱落期间信号贴轨，不参与心搏检测
	if leadsOn {
		if beat, ok := e.detector.Process(amplitude, now); ok {
			e.lastBeatAt = beat.At
			if beat.RR > 0 {
				e.rate.AddInterval(beat.RR)
			}
		}
	}

	interval := time.Duration(e.tun.PublishIntervalMs) * time.Millisecond
	if now.Sub(e.lastPublish) >= interval {
		e.lastPublish = now
		e.publish(now)
	}
}

// publish 发布当前心率结果与采样窗口
func (e *Extractor) publish(now time.Time) {
	staleness := time.Duration(e.tun.StalenessMs) * time.Millisecond
	valid := e.leadsOn &&
		e.varianceOK() &&
		!e.lastBeatAt.IsZero() &&
		now.Sub(e.lastBeatAt) <= staleness

	bpm := 0
	if valid {
		bpm = e.rate.Rate()
	} else {
		// 信号失效即归零，不保留陈旧数值
		e.rate.Reset()
	}

	e.b.HeartRate.Publish(models.HeartRateReading{
		BPM:         bpm,
		ValidSignal: valid,
		Timestamp:   now,
	})
	e.b.EcgWindow.Publish(models.EcgWindow{
		Samples:   e.ring.Snapshot(),
		NextIndex: e.ring.NextIndex(),
		Timestamp: now,
	})
}

// varianceOK 最近 5 个原始采样既非平线也非饱和噪声
func (e *Extractor) varianceOK() bool {
	if e.ring.Len() < 5 {
		return false
	}
	v := Variance(e.ring.Last(5))
	return v >= e.tun.MinVariance && v <= e.tun.MaxVariance
}
