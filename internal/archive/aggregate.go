package archive

import (
	"time"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// MinuteAggregate 一分钟内有效心率的聚合
type MinuteAggregate struct {
	MinuteStart time.Time
	Sum         int
	Min         int
	Max         int
	Samples     int
}

// Avg 平均心率
func (m MinuteAggregate) Avg() float64 {
	if m.Samples == 0 {
		return 0
	}
	return float64(m.Sum) / float64(m.Samples)
}

// MinuteAggregator 按墙钟分钟滚动聚合有效心率
// 无效读数不计入；分钟翻转时产出上一分钟的聚合
type MinuteAggregator struct {
	current MinuteAggregate
}

// NewMinuteAggregator 创建分钟聚合器
func NewMinuteAggregator() *MinuteAggregator {
	return &MinuteAggregator{}
}

// Add 写入一个读数
// 跨入新分钟且上一分钟有数据时返回 (上一分钟聚合, true)
func (g *MinuteAggregator) Add(hr models.HeartRateReading, now time.Time) (MinuteAggregate, bool) {
	minute := now.Truncate(time.Minute)

	var done MinuteAggregate
	var flushed bool
	if !g.current.MinuteStart.IsZero() && !minute.Equal(g.current.MinuteStart) {
		if g.current.Samples > 0 {
			done = g.current
			flushed = true
		}
		g.current = MinuteAggregate{}
	}

	if !hr.ValidSignal {
		return done, flushed
	}

	if g.current.MinuteStart.IsZero() {
		g.current = MinuteAggregate{MinuteStart: minute, Min: hr.BPM, Max: hr.BPM}
	}
	g.current.Sum += hr.BPM
	g.current.Samples++
	if hr.BPM < g.current.Min {
		g.current.Min = hr.BPM
	}
	if hr.BPM > g.current.Max {
		g.current.Max = hr.BPM
	}
	return done, flushed
}

// Flush 取出当前未满分钟的聚合（停机时落库用）
func (g *MinuteAggregator) Flush() (MinuteAggregate, bool) {
	if g.current.Samples == 0 {
		return MinuteAggregate{}, false
	}
	done := g.current
	g.current = MinuteAggregate{}
	return done, true
}
