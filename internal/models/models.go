package models

import (
	"math"
	"time"
)

// Vector3 三轴矢量（加速度 m/s²，角速度 deg/s）
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude 矢量模长
func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// EcgSample 单次心电采样（12-bit ADC 读数 + 电极接触状态）
type EcgSample struct {
	Amplitude int
	LeadsOn   bool
	Timestamp time.Time
}

// InertialSample 单次惯性采样（加速度 + 角速度，同一时刻产出）
type InertialSample struct {
	Accel     Vector3
	Gyro      Vector3
	Timestamp time.Time
}

// Orientation 姿态角（pitch/roll/yaw，单位度）
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// HeartRateReading 心率结果
// ValidSignal 为 false 时 BPM 不可作为当前值使用（显示层可短暂保留旧值，报警层不可）
type HeartRateReading struct {
	BPM         int
	ValidSignal bool
	Timestamp   time.Time
}

// FallEvent 跌倒事件
// Severity 始终限制在 [1,10]；清除事件保留原事件的强度字段，只翻转 Detected
type FallEvent struct {
	Detected         bool
	Severity         int
	PeakAcceleration float64
	Orientation      Orientation
	Timestamp        time.Time
}

// EcgWindow 原始心电窗口的只读快照（逻辑序号单调递增，按容量取模寻址）
type EcgWindow struct {
	Samples   []int
	NextIndex uint64
	Timestamp time.Time
}

// LocationReading 定位结果
type LocationReading struct {
	Latitude  float64
	Longitude float64
	Valid     bool
	Timestamp time.Time
}

// SensorHealth 各传感器可用状态
type SensorHealth struct {
	Ecg      bool `json:"ecg"`
	Inertial bool `json:"inertial"`
	GPS      bool `json:"gps"`
}

// PipelineState 管线运行状态
type PipelineState string

const (
	PipelineOK       PipelineState = "ok"
	PipelineDisabled PipelineState = "disabled"
)

// DeviceStatus 设备运行状态（status 主题负载，retained）
type DeviceStatus struct {
	Online          bool          `json:"online"`
	DeviceID        string        `json:"device_id"`
	UptimeSeconds   int64         `json:"uptime_s"`
	Sensors         SensorHealth  `json:"sensors"`
	HeartRatePipe   PipelineState `json:"heart_rate_pipeline"`
	FallPipe        PipelineState `json:"fall_pipeline"`
	PublishDrops    uint64        `json:"publish_drops"`
	FirmwareVersion string        `json:"firmware_version"`
	Timestamp       time.Time     `json:"-"`
}

// MedicationDose 单条用药计划（平台 API 返回格式）
type MedicationDose struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Dosage        string `json:"dosage"`
	ScheduledTime string `json:"scheduled_time"` // "HH:MM"
	Instructions  string `json:"instructions"`
}

// MedicationStage 用药提醒阶段
type MedicationStage string

const (
	MedicationAdvance MedicationStage = "advance" // 提前 1 分钟预告
	MedicationDue     MedicationStage = "due"     // 到点提醒
)

// MedicationAlert 用药提醒事实
type MedicationAlert struct {
	Dose      MedicationDose
	Stage     MedicationStage
	Timestamp time.Time
}
