// Package fall 跌倒检测管线
//
// 50 Hz 采样三轴加速度与角速度，失重→冲击→模式校验的四态状态机确认
// 跌倒，确认后向共享状态总线发布跌倒事件，并保持冷却期防止重复触发。
package fall

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

// InertialSource 惯性采样输入
// ReadInertial 每个采样节拍调用一次，同时返回加速度与角速度
type InertialSource interface {
	Probe() error
	ReadInertial() (accel, gyro models.Vector3)
}

// Detector 跌倒检测管线
type Detector struct {
	tun    config.FallTunables
	src    InertialSource
	b      *bus.Bus
	logger *zap.Logger

	machine    *Machine
	orient     *OrientationFilter
	calibrator *Calibrator
	baseline   models.Orientation
	lastEvent  models.FallEvent

	disabled atomic.Bool
}

// NewDetector 创建跌倒检测管线
func NewDetector(tun config.FallTunables, src InertialSource, b *bus.Bus, logger *zap.Logger) *Detector {
	return &Detector{
		tun:        tun,
		src:        src,
		b:          b,
		logger:     logger,
		machine:    NewMachine(tun),
		orient:     NewOrientationFilter(tun.OrientationAlpha),
		calibrator: NewCalibrator(tun.CalibrationSamples),
	}
}

// Run 运行采样循环直到 ctx 取消
// 启动先标定姿态基线（约 100 个静止采样），再进入检测；
// 传感器探测失败重试 InitRetries 次后放弃，管线永久停用，其余系统继续运行
func (d *Detector) Run(ctx context.Context) {
	if !d.probe(ctx) {
		d.disabled.Store(true)
		d.logger.Error("inertial sensor not available, fall pipeline disabled",
			zap.Int("retries", d.tun.InitRetries))
		return
	}

	d.logger.Info("fall pipeline started",
		zap.Int("sample_hz", d.tun.SampleRateHz),
		zap.Float64("freefall_threshold", d.tun.FreefallThreshold),
		zap.Float64("impact_threshold", d.tun.ImpactThreshold),
		zap.Bool("require_orientation_change", d.tun.RequireOrientationChange))

	period := time.Second / time.Duration(d.tun.SampleRateHz)
	sched.Loop(ctx, period, d.tick)
}

// Disabled 管线是否因传感器不可用而停用
func (d *Detector) Disabled() bool {
	return d.disabled.Load()
}

// Baseline 标定得到的姿态基线，标定完成前为零值
func (d *Detector) Baseline() models.Orientation {
	return d.baseline
}

func (d *Detector) probe(ctx context.Context) bool {
	for attempt := 1; attempt <= d.tun.InitRetries; attempt++ {
		err := d.src.Probe()
		if err == nil {
			return true
		}
		d.logger.Warn("inertial sensor probe failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == d.tun.InitRetries {
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
func (d *Detector) tick(now time.Time) {
	accel, _ := d.src.ReadInertial()

	// 标定阶段：只累积基线，不做检测；基线写定后在并发读者出现前即不再变化
	if !d.calibrator.Done() {
		if d.calibrator.Add(accel) {
			d.baseline = d.calibrator.Baseline()
			d.logger.Info("orientation baseline calibrated",
				zap.Float64("pitch", d.baseline.Pitch),
				zap.Float64("roll", d.baseline.Roll),
				zap.Float64("yaw", d.baseline.Yaw))
		}
		return
	}

	orientation := d.orient.Update(accel)
	_, out := d.machine.Step(Input{
		Magnitude:        accel.Magnitude(),
		OrientationDelta: OrientationDelta(orientation, d.baseline),
		At:               now,
	})

	if out.ConfirmedNow {
		d.logger.Warn("fall confirmed",
			zap.Int("severity", out.Severity),
			zap.Float64("peak_acceleration", out.Peak))
		d.lastEvent = models.FallEvent{
			Detected:         true,
			Severity:         out.Severity,
			PeakAcceleration: out.Peak,
			Orientation:      orientation,
			Timestamp:        now,
		}
		d.b.Fall.Publish(d.lastEvent)
	}
	if out.ClearedNow {
		d.logger.Info("fall cooldown expired, resuming monitoring")
		// 清除事件保留原事件的强度字段，只翻转 detected
		cleared := d.lastEvent
		cleared.Detected = false
		cleared.Timestamp = now
		d.b.Fall.Publish(cleared)
	}
}
