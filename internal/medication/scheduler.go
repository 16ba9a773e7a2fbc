package medication

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
	"github.com/aland-omed/ElderGuard/internal/sched"
)

// Fetcher 计划来源，便于测试替换 HTTP 客户端
type Fetcher interface {
	Fetch() ([]models.MedicationDose, error)
}

// Scheduler 用药提醒调度
// 拉取与到点检查两个独立节拍；拉取失败沿用上一次的好计划
type Scheduler struct {
	fetcher       Fetcher
	cachePath     string
	fetchInterval time.Duration
	checkInterval time.Duration
	b             *bus.Bus
	logger        *zap.Logger

	engine *Engine

	mu    sync.RWMutex
	doses []models.MedicationDose
}

// NewScheduler 创建用药提醒调度
func NewScheduler(fetcher Fetcher, cachePath string, fetchInterval, checkInterval time.Duration,
	b *bus.Bus, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		fetcher:       fetcher,
		cachePath:     cachePath,
		fetchInterval: fetchInterval,
		checkInterval: checkInterval,
		b:             b,
		logger:        logger,
		engine:        NewEngine(),
	}
}

// Run 运行调度直到 ctx 取消
// 启动先读缓存再立即拉取一次，断网时提醒基于缓存继续工作
func (s *Scheduler) Run(ctx context.Context) {
	if doses, err := LoadCache(s.cachePath); err != nil {
		s.logger.Warn("medication cache unreadable", zap.Error(err))
	} else if len(doses) > 0 {
		s.setDoses(doses)
		s.logger.Info("medication schedule loaded from cache", zap.Int("doses", len(doses)))
	}

	s.fetch()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Loop(ctx, s.fetchInterval, func(time.Time) { s.fetch() })
	}()
	go func() {
		defer wg.Done()
		sched.Loop(ctx, s.checkInterval, s.check)
	}()
	wg.Wait()
}

// Upcoming 距今最近的下一剂（显示层每秒查询）
func (s *Scheduler) Upcoming(now time.Time) (models.MedicationDose, time.Duration, bool) {
	s.mu.RLock()
	doses := s.doses
	s.mu.RUnlock()
	return NextUpcoming(doses, now)
}

func (s *Scheduler) setDoses(doses []models.MedicationDose) {
	s.mu.Lock()
	s.doses = doses
	s.mu.Unlock()
}

func (s *Scheduler) fetch() {
	doses, err := s.fetcher.Fetch()
	if err != nil {
		s.logger.Warn("medication fetch failed, keeping last schedule", zap.Error(err))
		return
	}

	s.setDoses(doses)
	if err := SaveCache(s.cachePath, doses); err != nil {
		s.logger.Warn("medication cache write failed", zap.Error(err))
	}
}

func (s *Scheduler) check(now time.Time) {
	s.mu.RLock()
	doses := s.doses
	s.mu.RUnlock()

	for _, alert := range s.engine.Evaluate(doses, now) {
		s.logger.Info("medication alert",
			zap.String("medicine", alert.Dose.Name),
			zap.String("stage", string(alert.Stage)),
			zap.String("scheduled_time", alert.Dose.ScheduledTime))
		s.b.Medication.Publish(alert)
	}
}
