package ecg

import (
	"math"
	"time"

	"github.com/aland-omed/ElderGuard/internal/config"
)

// seedQRSAmplitude QRS 幅值运行均值的初值（12-bit 计数），首搏后快速自适应
const seedQRSAmplitude = 200.0

// Beat 一次确认的心搏
// RR 为距上一确认心搏的间期，首搏为 0
type Beat struct {
	At        time.Time
	RR        time.Duration
	Amplitude float64
}

// BeatDetector 自适应阈值 R 峰检测器
//
// 每个采样走一遍：5 点滑动均值 -> 慢基线 EMA -> 偏差与自适应阈值比较。
// InComplex/OutOfComplex 两态子状态机跟踪波群宽度，宽度落在可信 QRS
// 区间内才确认为心搏。超过 relaxAfter 未见心搏时阈值减半提高灵敏度。
type BeatDetector struct {
	minWidth   time.Duration
	maxWidth   time.Duration
	maxComplex time.Duration
	relaxAfter time.Duration

	filter   *MovingAverage
	baseline *EMA
	avgQRS   float64

	inComplex    bool
	complexStart time.Time
	peak         float64
	rearm        bool

	lastBeat time.Time
	relaxRef time.Time
}

// NewBeatDetector 创建 R 峰检测器
func NewBeatDetector(tun config.HeartRateTunables) *BeatDetector {
	return &BeatDetector{
		minWidth:   time.Duration(tun.MinQRSWidthMs) * time.Millisecond,
		maxWidth:   time.Duration(tun.MaxQRSWidthMs) * time.Millisecond,
		maxComplex: time.Duration(tun.MaxComplexMs) * time.Millisecond,
		relaxAfter: time.Duration(tun.ThresholdRelaxMs) * time.Millisecond,
		filter:     NewMovingAverage(5),
		baseline:   NewEMA(tun.BaselineAlpha),
		avgQRS:     seedQRSAmplitude,
	}
}

// Process 处理一个采样，确认心搏时返回 (Beat, true)
func (d *BeatDetector) Process(sample int, now time.Time) (Beat, bool) {
	filtered := d.filter.Push(float64(sample))
	base := d.baseline.Update(filtered)
	deviation := filtered - base

	if d.relaxRef.IsZero() {
		d.relaxRef = now
	}

	threshold := d.avgQRS / 2
	if now.Sub(d.relaxRef) > d.relaxAfter {
		// 久未见心搏，降阈提高灵敏度
		threshold /= 2
	}

	if !d.inComplex {
		// 过宽波群强制退出后，等信号回落再重新布防
		if d.rearm {
			if deviation < threshold/2 {
				d.rearm = false
			}
			return Beat{}, false
		}
		if deviation > threshold {
			d.inComplex = true
			d.complexStart = now
			d.peak = deviation
		}
		return Beat{}, false
	}

	if deviation > d.peak {
		d.peak = deviation
	}

	width := now.Sub(d.complexStart)
	if deviation >= threshold/2 && width <= d.maxComplex {
		return Beat{}, false
	}

	// 退出波群，宽度可信才确认
	d.inComplex = false
	if width > d.maxComplex {
		d.rearm = true
	}
	if width < d.minWidth || width > d.maxWidth {
		return Beat{}, false
	}

	d.avgQRS = 0.8*d.avgQRS + 0.2*d.peak
	beat := Beat{At: now, Amplitude: d.peak}
	if !d.lastBeat.IsZero() {
		beat.RR = now.Sub(d.lastBeat)
	}
	d.lastBeat = now
	d.relaxRef = now
	return beat, true
}

// Reset 清空检测状态
func (d *BeatDetector) Reset() {
	d.filter.Reset()
	d.baseline.Reset()
	d.avgQRS = seedQRSAmplitude
	d.inComplex = false
	d.peak = 0
	d.rearm = false
	d.lastBeat = time.Time{}
	d.relaxRef = time.Time{}
}

// RateEstimator RR 间期环与心率平滑
type RateEstimator struct {
	minRR     time.Duration
	maxRR     time.Duration
	intervals *IntervalRing
	smooth    *EMA
}

// NewRateEstimator 创建心率估计器
func NewRateEstimator(tun config.HeartRateTunables) *RateEstimator {
	return &RateEstimator{
		minRR:     time.Duration(tun.MinRRMs) * time.Millisecond,
		maxRR:     time.Duration(tun.MaxRRMs) * time.Millisecond,
		intervals: NewIntervalRing(tun.RRWindow),
		smooth:    NewEMA(tun.SmoothingAlpha),
	}
}

// AddInterval 写入一个 RR 间期
// 超出生理区间的间期直接丢弃并返回 false，不进入均值环
func (e *RateEstimator) AddInterval(rr time.Duration) bool {
	if rr < e.minRR || rr > e.maxRR {
		return false
	}
	e.intervals.Push(rr)
	return true
}

// Rate 当前平滑心率（BPM），每个发布周期调用一次
// 无可用间期时返回 0
func (e *RateEstimator) Rate() int {
	mean := e.intervals.Mean()
	if mean == 0 {
		return 0
	}
	raw := 60000.0 / (float64(mean) / float64(time.Millisecond))
	return int(math.Round(e.smooth.Update(raw)))
}

// Reset 清空间期环与平滑状态
func (e *RateEstimator) Reset() {
	e.intervals.Reset()
	e.smooth.Reset()
}
