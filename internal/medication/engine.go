package medication

import (
	"fmt"
	"sort"
	"time"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// AdvanceNotice 到点前的预告提前量
const AdvanceNotice = time.Minute

// DueWindow 到点提醒的确认窗口，窗口内语音每 3 秒重报一次
const DueWindow = 15 * time.Second

// Engine 到点判定引擎
// 每剂每天各阶段至多触发一次；跨午夜后计数自然翻转
type Engine struct {
	fired map[string]struct{}
	day   string
}

// NewEngine 创建到点判定引擎
func NewEngine() *Engine {
	return &Engine{fired: make(map[string]struct{})}
}

// doseTimeOn 解析 "HH:MM" 为 day 当天的时刻，格式非法返回 false
func doseTimeOn(day time.Time, scheduled string) (time.Time, bool) {
	t, err := time.Parse("15:04", scheduled)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), 0, 0, day.Location()), true
}

// Evaluate 检查一次全部剂次，返回本次新触发的提醒
func (e *Engine) Evaluate(doses []models.MedicationDose, now time.Time) []models.MedicationAlert {
	// 跨天清空已触发记录
	day := now.Format("2006-01-02")
	if e.day != day {
		e.day = day
		e.fired = make(map[string]struct{})
	}

	var alerts []models.MedicationAlert
	for _, dose := range doses {
		at, ok := doseTimeOn(now, dose.ScheduledTime)
		if !ok {
			continue
		}

		// 预告：到点前 1 分钟内
		if !now.Before(at.Add(-AdvanceNotice)) && now.Before(at) {
			if e.mark(dose.ID, models.MedicationAdvance) {
				alerts = append(alerts, models.MedicationAlert{
					Dose:      dose,
					Stage:     models.MedicationAdvance,
					Timestamp: now,
				})
			}
		}

		// 到点：确认窗口内
		if !now.Before(at) && now.Sub(at) <= DueWindow {
			if e.mark(dose.ID, models.MedicationDue) {
				alerts = append(alerts, models.MedicationAlert{
					Dose:      dose,
					Stage:     models.MedicationDue,
					Timestamp: now,
				})
			}
		}
	}
	return alerts
}

// mark 记录触发，今天已触发过则返回 false
func (e *Engine) mark(doseID int, stage models.MedicationStage) bool {
	key := fmt.Sprintf("%d/%s", doseID, stage)
	if _, ok := e.fired[key]; ok {
		return false
	}
	e.fired[key] = struct{}{}
	return true
}

// NextUpcoming 距今最近的下一剂（供显示层展示）
// 今天剩余剂次中取最早；今天已无剂次时取明天最早的一剂
func NextUpcoming(doses []models.MedicationDose, now time.Time) (models.MedicationDose, time.Duration, bool) {
	type candidate struct {
		dose models.MedicationDose
		wait time.Duration
	}

	var cands []candidate
	for _, dose := range doses {
		at, ok := doseTimeOn(now, dose.ScheduledTime)
		if !ok {
			continue
		}
		wait := at.Sub(now)
		if wait < 0 {
			wait += 24 * time.Hour // 今天已过，顺延到明天
		}
		cands = append(cands, candidate{dose: dose, wait: wait})
	}
	if len(cands) == 0 {
		return models.MedicationDose{}, 0, false
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].wait < cands[j].wait })
	return cands[0].dose, cands[0].wait, true
}
