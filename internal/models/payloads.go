package models

import (
	"time"

	"github.com/google/uuid"
)

// EcgPayload realtime 主题的心电负载
type EcgPayload struct {
	Type        string `json:"type"` // "ecg_data"
	DeviceID    string `json:"device_id"`
	HeartRate   int    `json:"heart_rate"`
	ValidSignal bool   `json:"valid_signal"`
	EcgData     []int  `json:"ecg_data"`
	CreatedAt   string `json:"created_at"` // RFC3339
}

// FallAlertPayload realtime 主题的跌倒负载
type FallAlertPayload struct {
	Type           string       `json:"type"` // "fall_alert"
	DeviceID       string       `json:"device_id"`
	EventID        string       `json:"event_id"`
	FallDetected   bool         `json:"fall_detected"`
	ImpactStrength float64      `json:"impact_strength"`
	Severity       int          `json:"severity"`
	Orientation    Orientation  `json:"orientation"`
	Location       *LocationRef `json:"location,omitempty"`
	CreatedAt      string       `json:"created_at"`
}

// LocationRef 跌倒负载附带的定位信息
type LocationRef struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// NewEcgPayload 构建心电上行负载
// window 取最近的原始采样（上行只带末尾 10 个）
func NewEcgPayload(deviceID string, hr HeartRateReading, window []int) EcgPayload {
	const tail = 10
	if len(window) > tail {
		window = window[len(window)-tail:]
	}
	samples := make([]int, len(window))
	copy(samples, window)

	return EcgPayload{
		Type:        "ecg_data",
		DeviceID:    deviceID,
		HeartRate:   hr.BPM,
		ValidSignal: hr.ValidSignal,
		EcgData:     samples,
		CreatedAt:   hr.Timestamp.Format(time.RFC3339),
	}
}

// NewFallAlertPayload 构建跌倒报警上行负载
// 事件 ID 唯一标识本次确认，定位无效时不附带坐标
func NewFallAlertPayload(deviceID string, ev FallEvent, loc LocationReading) FallAlertPayload {
	p := FallAlertPayload{
		Type:           "fall_alert",
		DeviceID:       deviceID,
		EventID:        uuid.New().String(),
		FallDetected:   ev.Detected,
		ImpactStrength: ev.PeakAcceleration,
		Severity:       ev.Severity,
		Orientation:    ev.Orientation,
		CreatedAt:      ev.Timestamp.Format(time.RFC3339),
	}
	if loc.Valid {
		p.Location = &LocationRef{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}
	return p
}

// AlertRequest 平台报警接口请求体
type AlertRequest struct {
	PatientID      int     `json:"patient_id"`
	Type           string  `json:"type"` // "fall" | "high_heart_rate"
	Severity       int     `json:"severity,omitempty"`
	ImpactStrength float64 `json:"impact_strength,omitempty"`
	HeartRate      int     `json:"heart_rate,omitempty"`
	EventID        string  `json:"event_id,omitempty"`
	CreatedAt      string  `json:"created_at"`
}
