// Package location 定位采集
//
// GPS 读取器在接口之后（NMEA 硬件适配器由部署方注入），周期性地把
// 定位结果发布到共享状态总线，跌倒报警负载附带最近一次有效定位。
package location

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
	"github.com/aland-omed/ElderGuard/internal/sched"
)

// Source 定位输入
type Source interface {
	Probe() error
	ReadLocation() (lat, lon float64, valid bool)
}

// FixedSource 固定坐标源
// 床旁部署时设备位置已知，按配置坐标上报；也作为模拟器使用
type FixedSource struct {
	Lat float64
	Lon float64
}

// Probe 固定源始终可用
func (s *FixedSource) Probe() error {
	return nil
}

// ReadLocation 返回配置的固定坐标
func (s *FixedSource) ReadLocation() (float64, float64, bool) {
	return s.Lat, s.Lon, true
}

// Sampler 定位采样循环
type Sampler struct {
	src      Source
	interval time.Duration
	b        *bus.Bus
	logger   *zap.Logger
	disabled atomic.Bool
}

// NewSampler 创建定位采样循环
func NewSampler(src Source, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Sampler {
	return &Sampler{src: src, interval: interval, b: b, logger: logger}
}

// Run 运行采样循环直到 ctx 取消
// 探测失败只停用定位，不影响其余系统
func (s *Sampler) Run(ctx context.Context) {
	if err := s.src.Probe(); err != nil {
		s.disabled.Store(true)
		s.logger.Warn("location source not available, location disabled", zap.Error(err))
		return
	}

	s.logger.Info("location sampler started", zap.Duration("interval", s.interval))
	sched.Loop(ctx, s.interval, s.tick)
}

// Disabled 定位是否因源不可用而停用
// 状态上报与采样循环并发读写，走原子标志
func (s *Sampler) Disabled() bool {
	return s.disabled.Load()
}

func (s *Sampler) tick(now time.Time) {
	lat, lon, valid := s.src.ReadLocation()
	s.b.Location.Publish(models.LocationReading{
		Latitude:  lat,
		Longitude: lon,
		Valid:     valid,
		Timestamp: now,
	})
}
