// Package display 屏幕视图模型
//
// 每秒构建一次屏幕前端消费的渲染模型。心率失效后允许一个仅限显示的
// 宽限期（默认 5 秒）继续展示最后的有效值，随后显示占位符；
// 宽限值只用于显示，报警判定永远走总线上的原始读数。
package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/medication"
	"github.com/aland-omed/ElderGuard/internal/models"
	"github.com/aland-omed/ElderGuard/internal/sched"
)

// GraceWindow 心率失效后的显示宽限期
const GraceWindow = 5 * time.Second

// Placeholder 无可显示心率时的占位符
const Placeholder = "--"

// ViewModel 屏幕渲染模型
type ViewModel struct {
	Clock          string // "HH:MM:SS"
	HeartRateText  string // 数值、宽限值或占位符
	HeartRateStale bool   // 宽限期内展示旧值时为 true
	FallBanner     bool
	FallSeverity   int
	NextMedText    string // 如 "Aspirin 08:00"，无计划为空
	Online         bool
}

// UpcomingSource 下一剂查询入口
type UpcomingSource interface {
	Upcoming(now time.Time) (models.MedicationDose, time.Duration, bool)
}

// Builder 视图模型构建器
type Builder struct {
	b      *bus.Bus
	meds   UpcomingSource
	logger *zap.Logger

	mu      sync.RWMutex
	current ViewModel

	lastValidBPM int
	lastValidAt  time.Time
}

// NewBuilder 创建视图模型构建器
// meds 可为 nil（用药提醒停用时显示不带用药行）
func NewBuilder(b *bus.Bus, meds UpcomingSource, logger *zap.Logger) *Builder {
	return &Builder{b: b, meds: meds, logger: logger}
}

// Run 以 1 Hz 刷新视图模型直到 ctx 取消
func (d *Builder) Run(ctx context.Context) {
	d.logger.Info("display view-model builder started")
	sched.Loop(ctx, time.Second, d.refresh)
}

// Current 最近一次构建的视图模型
func (d *Builder) Current() ViewModel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

func (d *Builder) refresh(now time.Time) {
	vm := d.Build(now)
	d.mu.Lock()
	d.current = vm
	d.mu.Unlock()
}

// Build 从总线快照构建视图模型
func (d *Builder) Build(now time.Time) ViewModel {
	hr := d.b.HeartRate.Get()
	fall := d.b.Fall.Get()
	st := d.b.Status.Get()

	vm := ViewModel{
		Clock:      now.Format("15:04:05"),
		FallBanner: fall.Detected,
		Online:     st.Online,
	}
	// 清除事件保留原事件的强度字段，严重度只随横幅展示
	if fall.Detected {
		vm.FallSeverity = fall.Severity
	}

	vm.HeartRateText, vm.HeartRateStale = d.heartRateText(hr, now)

	if d.meds != nil {
		if dose, _, ok := d.meds.Upcoming(now); ok {
			vm.NextMedText = fmt.Sprintf("%s %s", dose.Name, dose.ScheduledTime)
		}
	}
	return vm
}

// heartRateText 心率显示文本与宽限标志
func (d *Builder) heartRateText(hr models.HeartRateReading, now time.Time) (string, bool) {
	if hr.ValidSignal {
		d.lastValidBPM = hr.BPM
		d.lastValidAt = hr.Timestamp
		return fmt.Sprintf("%d", hr.BPM), false
	}
	if !d.lastValidAt.IsZero() && now.Sub(d.lastValidAt) <= GraceWindow {
		return fmt.Sprintf("%d", d.lastValidBPM), true
	}
	return Placeholder, false
}

// 编译期确认 medication.Scheduler 满足查询入口
var _ UpcomingSource = (*medication.Scheduler)(nil)
