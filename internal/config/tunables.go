package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HeartRateTunables 心率提取参数
type HeartRateTunables struct {
	SampleRateHz      int     `yaml:"sample_hz"`
	PublishIntervalMs int     `yaml:"publish_interval_ms"`
	RingCapacity      int     `yaml:"ring_capacity"`
	BaselineAlpha     float64 `yaml:"baseline_alpha"`  // 基线 EMA 旧值权重
	SmoothingAlpha    float64 `yaml:"smoothing_alpha"` // 心率平滑旧值权重
	ThresholdRelaxMs  int     `yaml:"threshold_relax_ms"`
	MinQRSWidthMs     int     `yaml:"min_qrs_width_ms"`
	MaxQRSWidthMs     int     `yaml:"max_qrs_width_ms"`
	MaxComplexMs      int     `yaml:"max_complex_ms"` // 强制退出 InComplex 的上限
	MinRRMs           int     `yaml:"min_rr_ms"`
	MaxRRMs           int     `yaml:"max_rr_ms"`
	RRWindow          int     `yaml:"rr_window"`
	StalenessMs       int     `yaml:"staleness_ms"`
	MinVariance       float64 `yaml:"min_variance"` // 低于视为平线
	MaxVariance       float64 `yaml:"max_variance"` // 高于视为饱和噪声
	InitRetries       int     `yaml:"init_retries"`
}

// FallTunables 跌倒检测参数
// 阈值仍在上游持续调参，这里全部保持可配置
type FallTunables struct {
	SampleRateHz             int     `yaml:"sample_hz"`
	FreefallThreshold        float64 `yaml:"freefall_threshold"` // m/s²
	ImpactThreshold          float64 `yaml:"impact_threshold"`   // m/s²
	ConsecutiveImpactSamples int     `yaml:"consecutive_impact_samples"`
	MinFreefallMs            int     `yaml:"min_freefall_ms"`
	ImpactWindowMs           int     `yaml:"impact_window_ms"`
	MinAverageAccel          float64 `yaml:"min_average_accel"`
	MinSpread                float64 `yaml:"min_spread"`
	OrientationChangeDeg     float64 `yaml:"orientation_change_deg"`
	RequireOrientationChange bool    `yaml:"require_orientation_change"`
	CooldownS                int     `yaml:"cooldown_s"`
	OrientationAlpha         float64 `yaml:"orientation_alpha"` // 姿态 EMA 旧值权重
	CalibrationSamples       int     `yaml:"calibration_samples"`
	SeverityCeiling          float64 `yaml:"severity_ceiling"` // 映射到 10 级的峰值上限 m/s²
	InitRetries              int     `yaml:"init_retries"`
}

// BusTunables 共享状态总线参数
type BusTunables struct {
	PublishTimeoutMs int `yaml:"publish_timeout_ms"`
}

// Tunables 检测参数集合（YAML 文件覆盖内置默认值）
type Tunables struct {
	HeartRate HeartRateTunables `yaml:"heart_rate"`
	Fall      FallTunables      `yaml:"fall"`
	Bus       BusTunables       `yaml:"bus"`
}

// DefaultTunables 内置默认参数
func DefaultTunables() Tunables {
	var t Tunables

	t.HeartRate.SampleRateHz = 50
	t.HeartRate.PublishIntervalMs = 1000
	t.HeartRate.RingCapacity = 250
	t.HeartRate.BaselineAlpha = 0.99
	t.HeartRate.SmoothingAlpha = 0.75
	t.HeartRate.ThresholdRelaxMs = 1500
	t.HeartRate.MinQRSWidthMs = 10
	t.HeartRate.MaxQRSWidthMs = 150
	t.HeartRate.MaxComplexMs = 200
	t.HeartRate.MinRRMs = 300
	t.HeartRate.MaxRRMs = 1500
	t.HeartRate.RRWindow = 8
	t.HeartRate.StalenessMs = 8000
	t.HeartRate.MinVariance = 2.0
	t.HeartRate.MaxVariance = 200000.0
	t.HeartRate.InitRetries = 5

	t.Fall.SampleRateHz = 50
	t.Fall.FreefallThreshold = 3.0
	t.Fall.ImpactThreshold = 16.0
	t.Fall.ConsecutiveImpactSamples = 1
	t.Fall.MinFreefallMs = 150
	t.Fall.ImpactWindowMs = 1000
	t.Fall.MinAverageAccel = 3.0
	t.Fall.MinSpread = 8.0
	t.Fall.OrientationChangeDeg = 25.0
	t.Fall.RequireOrientationChange = false
	t.Fall.CooldownS = 30
	t.Fall.OrientationAlpha = 0.8
	t.Fall.CalibrationSamples = 100
	t.Fall.SeverityCeiling = 40.0
	t.Fall.InitRetries = 5

	t.Bus.PublishTimeoutMs = 100

	return t
}

// LoadTunables 加载检测参数
// path 为空时返回默认值；文件中的字段覆盖默认值
func LoadTunables(path string) (Tunables, error) {
	t := DefaultTunables()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tunables file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tunables file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("validate tunables file: %w", err)
	}
	return t, nil
}

// Validate 检查参数合法性
// 只做声明式检查，不修改参数
func (t *Tunables) Validate() error {
	hr := &t.HeartRate
	if hr.SampleRateHz <= 0 {
		return fmt.Errorf("heart_rate: sample_hz must be positive")
	}
	if hr.RingCapacity <= 0 {
		return fmt.Errorf("heart_rate: ring_capacity must be positive")
	}
	if hr.BaselineAlpha <= 0 || hr.BaselineAlpha >= 1 {
		return fmt.Errorf("heart_rate: baseline_alpha must be in (0,1)")
	}
	if hr.SmoothingAlpha < 0 || hr.SmoothingAlpha >= 1 {
		return fmt.Errorf("heart_rate: smoothing_alpha must be in [0,1)")
	}
	if hr.MinQRSWidthMs >= hr.MaxQRSWidthMs {
		return fmt.Errorf("heart_rate: min_qrs_width_ms must be below max_qrs_width_ms")
	}
	if hr.MaxQRSWidthMs > hr.MaxComplexMs {
		return fmt.Errorf("heart_rate: max_qrs_width_ms must not exceed max_complex_ms")
	}
	if hr.MinRRMs >= hr.MaxRRMs {
		return fmt.Errorf("heart_rate: min_rr_ms must be below max_rr_ms")
	}
	if hr.RRWindow <= 0 {
		return fmt.Errorf("heart_rate: rr_window must be positive")
	}
	if hr.MinVariance >= hr.MaxVariance {
		return fmt.Errorf("heart_rate: min_variance must be below max_variance")
	}
	if hr.InitRetries <= 0 {
		return fmt.Errorf("heart_rate: init_retries must be positive")
	}

	f := &t.Fall
	if f.SampleRateHz <= 0 {
		return fmt.Errorf("fall: sample_hz must be positive")
	}
	if f.FreefallThreshold >= f.ImpactThreshold {
		return fmt.Errorf("fall: freefall_threshold must be below impact_threshold")
	}
	if f.ImpactThreshold >= f.SeverityCeiling {
		return fmt.Errorf("fall: impact_threshold must be below severity_ceiling")
	}
	if f.ConsecutiveImpactSamples <= 0 {
		return fmt.Errorf("fall: consecutive_impact_samples must be positive")
	}
	if f.MinFreefallMs >= f.ImpactWindowMs {
		return fmt.Errorf("fall: min_freefall_ms must be below impact_window_ms")
	}
	if f.OrientationAlpha < 0 || f.OrientationAlpha >= 1 {
		return fmt.Errorf("fall: orientation_alpha must be in [0,1)")
	}
	if f.CalibrationSamples <= 0 {
		return fmt.Errorf("fall: calibration_samples must be positive")
	}
	if f.CooldownS <= 0 {
		return fmt.Errorf("fall: cooldown_s must be positive")
	}
	if f.InitRetries <= 0 {
		return fmt.Errorf("fall: init_retries must be positive")
	}

	if t.Bus.PublishTimeoutMs <= 0 {
		return fmt.Errorf("bus: publish_timeout_ms must be positive")
	}

	return nil
}
