// Package sensor 采样输入源
//
// 管线只依赖 ecg.SampleSource / fall.InertialSource 接口；硬件适配器由
// 部署方注入，这里提供内置信号模拟器作为默认实现，也是场景测试的载体。
package sensor

import (
	"math"
	"sync"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// EcgSimulator 合成心电信号源
// 基线呼吸波 + 高斯 P/QRS/T 波群，映射到 12-bit ADC 计数
type EcgSimulator struct {
	mu       sync.Mutex
	sampleHz float64
	periodMs float64
	phase    float64
	leadsOff bool
}

// NewEcgSimulator 创建心电模拟器
// sampleHz 为采样率，periodMs 为心动周期（800ms ≈ 75 BPM）
func NewEcgSimulator(sampleHz int, periodMs int) *EcgSimulator {
	return &EcgSimulator{
		sampleHz: float64(sampleHz),
		periodMs: float64(periodMs),
	}
}

// Probe 模拟器始终可用
func (s *EcgSimulator) Probe() error {
	return nil
}

// ReadSample 生成下一个采样
func (s *EcgSimulator) ReadSample() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase += 1000.0 / s.periodMs / s.sampleHz
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	t := s.phase

	// 呼吸基线漂移 + P/QRS/T 高斯波群（非临床波形，形态够检测器用）
	v := 0.05 * math.Sin(2*math.Pi*t)
	v += 0.08 * gauss(t, 0.18, 0.03)
	v -= 0.12 * gauss(t, 0.30, 0.01)
	v += 1.00 * gauss(t, 0.32, 0.008)
	v -= 0.25 * gauss(t, 0.35, 0.012)
	v += 0.25 * gauss(t, 0.60, 0.06)

	// 映射到 12-bit 计数，中线 2048，R 波满摆幅约 600
	amplitude := 2048 + int(v*600)

	return amplitude, !s.leadsOff
}

// SetLeadsOff 模拟电极脱落/恢复
func (s *EcgSimulator) SetLeadsOff(off bool) {
	s.mu.Lock()
	s.leadsOff = off
	s.mu.Unlock()
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

// InertialSimulator 合成惯性信号源
// 默认输出重力静止姿态，可注入脚本化的跌倒片段
type InertialSimulator struct {
	mu    sync.Mutex
	idle  models.Vector3
	queue []models.Vector3
}

// NewInertialSimulator 创建惯性模拟器，静止输出 Z 轴重力
func NewInertialSimulator() *InertialSimulator {
	return &InertialSimulator{idle: models.Vector3{Z: 9.81}}
}

// Probe 模拟器始终可用
func (s *InertialSimulator) Probe() error {
	return nil
}

// ReadInertial 生成下一个采样；片段耗尽后回到静止输出
func (s *InertialSimulator) ReadInertial() (models.Vector3, models.Vector3) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		v := s.queue[0]
		s.queue = s.queue[1:]
		return v, models.Vector3{}
	}
	return s.idle, models.Vector3{}
}

// InjectFall 注入一段失重→冲击的跌倒片段
// freefallTicks 个低加速度采样后跟一个 peak 冲击采样
func (s *InertialSimulator) InjectFall(freefallTicks int, peak float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < freefallTicks; i++ {
		s.queue = append(s.queue, models.Vector3{X: 1.0, Z: 1.732})
	}
	s.queue = append(s.queue, models.Vector3{X: peak / 2, Z: peak * 0.866})
	s.queue = append(s.queue, models.Vector3{X: 4.905, Z: 8.496})
}
