// Package audio 语音提示
//
// 事件映射到播放器曲目：跌倒、用药、开机欢迎（紧急曲目预留给未接入的
// 呼叫按钮）。播放器在接口之后（硬件模块由部署方注入），默认实现只记
// 日志，初始化失败整机照常运行。
package audio

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/medication"
	"github.com/aland-omed/ElderGuard/internal/models"
)

// 曲目编号与播放器模块的出厂文件序号一致
const (
	TrackEmergency  = 1
	TrackFall       = 2
	TrackMedication = 6
	TrackWelcome    = 7
)

// repromptInterval 用药确认窗口内的语音重报间隔
const repromptInterval = 3 * time.Second

// Player 播放器后端
type Player interface {
	Play(track int) error
	SetVolume(volume int) error
}

// LogPlayer 日志播放器
// 无硬件时的默认后端，把曲目播放记成日志
type LogPlayer struct {
	Logger *zap.Logger
}

// Play 记录一次播放
func (p *LogPlayer) Play(track int) error {
	p.Logger.Info("audio prompt", zap.Int("track", track))
	return nil
}

// SetVolume 记录音量设置
func (p *LogPlayer) SetVolume(volume int) error {
	p.Logger.Info("audio volume set", zap.Int("volume", volume))
	return nil
}

// Dispatcher 事件到曲目的分发器
type Dispatcher struct {
	player Player
	volume int
	b      *bus.Bus
	logger *zap.Logger

	// 用药确认窗口：窗口内每 3 秒重报
	medWindowEnd time.Time
	nextReprompt time.Time
}

// NewDispatcher 创建语音分发器
func NewDispatcher(player Player, volume int, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		player: player,
		volume: volume,
		b:      b,
		logger: logger,
	}
}

// Run 运行分发循环直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	if err := d.player.SetVolume(d.volume); err != nil {
		d.logger.Warn("audio volume set failed", zap.Error(err))
	}
	d.play(TrackWelcome)

	fallSub := d.b.Fall.Subscribe()
	medSub := d.b.Medication.Subscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fallSub.Notify():
			if fallSub.Fresh() && d.b.Fall.Get().Detected {
				d.play(TrackFall)
			}
		case <-medSub.Notify():
			if medSub.Fresh() {
				d.onMedication(time.Now())
			}
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

// onMedication 用药提醒：到点开启确认窗口，预告只报一次
func (d *Dispatcher) onMedication(now time.Time) {
	alert := d.b.Medication.Get()
	d.play(TrackMedication)
	if alert.Stage == models.MedicationDue {
		d.medWindowEnd = now.Add(medication.DueWindow)
		d.nextReprompt = now.Add(repromptInterval)
	}
}

// tick 确认窗口内按间隔重报
func (d *Dispatcher) tick(now time.Time) {
	if d.medWindowEnd.IsZero() || now.After(d.medWindowEnd) {
		return
	}
	if now.Before(d.nextReprompt) {
		return
	}
	d.play(TrackMedication)
	d.nextReprompt = now.Add(repromptInterval)
}

func (d *Dispatcher) play(track int) {
	if err := d.player.Play(track); err != nil {
		d.logger.Warn("audio playback failed",
			zap.Int("track", track),
			zap.Error(err))
	}
}
