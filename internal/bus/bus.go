// Package bus 共享状态总线
//
// 每个已发布事实对应一个独立单元（cell）：单生产者写入，多消费者读取。
// 写入在有限等待的锁上进行，超时则放弃本周期并计数；读取只在锁内做结构体
// 拷贝，始终返回最近一次成功发布的快照（首次发布前为零值）。
// 消费者通过 Subscription 获得边沿触发的新鲜度标志，避免重复处理同一快照。
package bus

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// DefaultPublishTimeout 发布锁的默认等待上限
const DefaultPublishTimeout = 100 * time.Millisecond

// Subscription 单个消费者的新鲜度视图
// 一个 Subscription 只能由一个 goroutine 使用
type Subscription struct {
	core   *cellCore
	seen   uint64
	notify chan struct{}
}

// Fresh 边沿触发的新数据检查
// 自上次调用以来有新发布则返回 true，且每次发布至多返回一次 true
func (s *Subscription) Fresh() bool {
	s.core.lock()
	fresh := s.seen < s.core.seq
	s.seen = s.core.seq
	s.core.unlock()
	return fresh
}

// Notify 新发布信号
// 容量为 1，消费者可在 select 中等待而无需轮询；收到信号后仍应以 Fresh 判定
func (s *Subscription) Notify() <-chan struct{} {
	return s.notify
}

// cellCore 各单元共用的锁、序号与订阅管理
type cellCore struct {
	name    string
	mu      chan struct{}
	timeout time.Duration
	seq     uint64
	subs    []*Subscription
	drops   atomic.Uint64
	logger  *zap.Logger
}

func newCellCore(name string, timeout time.Duration, logger *zap.Logger) cellCore {
	return cellCore{
		name:    name,
		mu:      make(chan struct{}, 1),
		timeout: timeout,
		logger:  logger,
	}
}

func (c *cellCore) lock() {
	c.mu <- struct{}{}
}

// lockTimed 有限等待加锁，超时返回 false
func (c *cellCore) lockTimed() bool {
	select {
	case c.mu <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(c.timeout)
	defer t.Stop()
	select {
	case c.mu <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (c *cellCore) unlock() {
	<-c.mu
}

// dropPublish 记录一次被放弃的发布
func (c *cellCore) dropPublish() {
	c.drops.Add(1)
	if c.logger != nil {
		c.logger.Warn("bus publish skipped, lock not acquired in time",
			zap.String("cell", c.name),
			zap.Duration("timeout", c.timeout))
	}
}

// markPublished 持锁调用：推进序号并返回当前订阅快照
func (c *cellCore) markPublished() []*Subscription {
	c.seq++
	subs := make([]*Subscription, len(c.subs))
	copy(subs, c.subs)
	return subs
}

// subscribe 持锁注册新订阅，初始视为已读到当前序号
func (c *cellCore) subscribe() *Subscription {
	c.lock()
	defer c.unlock()
	s := &Subscription{
		core:   c,
		seen:   c.seq,
		notify: make(chan struct{}, 1),
	}
	c.subs = append(c.subs, s)
	return s
}

func signalAll(subs []*Subscription) {
	for _, s := range subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Drops 因锁超时被放弃的发布次数
func (c *cellCore) Drops() uint64 {
	return c.drops.Load()
}

// HeartRateCell 心率结果单元
type HeartRateCell struct {
	cellCore
	value models.HeartRateReading
}

// Get 返回最近发布的心率快照
func (c *HeartRateCell) Get() models.HeartRateReading {
	c.lock()
	v := c.value
	c.unlock()
	return v
}

// Publish 原子替换心率快照，超时放弃本周期
func (c *HeartRateCell) Publish(v models.HeartRateReading) bool {
	if !c.lockTimed() {
		c.dropPublish()
		return false
	}
	c.value = v
	subs := c.markPublished()
	c.unlock()
	signalAll(subs)
	return true
}

// Subscribe 注册一个新消费者
func (c *HeartRateCell) Subscribe() *Subscription {
	return c.subscribe()
}

// FallCell 跌倒事件单元
type FallCell struct {
	cellCore
	value models.FallEvent
}

// Get 返回最近发布的跌倒事件快照
func (c *FallCell) Get() models.FallEvent {
	c.lock()
	v := c.value
	c.unlock()
	return v
}

// Publish 原子替换跌倒事件快照，超时放弃本周期
func (c *FallCell) Publish(v models.FallEvent) bool {
	if !c.lockTimed() {
		c.dropPublish()
		return false
	}
	c.value = v
	subs := c.markPublished()
	c.unlock()
	signalAll(subs)
	return true
}

// Subscribe 注册一个新消费者
func (c *FallCell) Subscribe() *Subscription {
	return c.subscribe()
}

// EcgWindowCell 原始心电窗口单元
// 快照中的切片归总线所有，消费者只读
type EcgWindowCell struct {
	cellCore
	value models.EcgWindow
}

// Get 返回最近发布的窗口快照
func (c *EcgWindowCell) Get() models.EcgWindow {
	c.lock()
	v := c.value
	c.unlock()
	return v
}

// Publish 原子替换窗口快照，调用方须传入新分配的切片
func (c *EcgWindowCell) Publish(v models.EcgWindow) bool {
	if !c.lockTimed() {
		c.dropPublish()
		return false
	}
	c.value = v
	subs := c.markPublished()
	c.unlock()
	signalAll(subs)
	return true
}

// Subscribe 注册一个新消费者
func (c *EcgWindowCell) Subscribe() *Subscription {
	return c.subscribe()
}

// LocationCell 定位结果单元
type LocationCell struct {
	cellCore
	value models.LocationReading
}

// Get 返回最近发布的定位快照
func (c *LocationCell) Get() models.LocationReading {
	c.lock()
	v := c.value
	c.unlock()
	return v
}

// Publish 原子替换定位快照，超时放弃本周期
func (c *LocationCell) Publish(v models.LocationReading) bool {
	if !c.lockTimed() {
		c.dropPublish()
		return false
	}
	c.value = v
	subs := c.markPublished()
	c.unlock()
	signalAll(subs)
	return true
}

// Subscribe 注册一个新消费者
func (c *LocationCell) Subscribe() *Subscription {
	return c.subscribe()
}

// StatusCell 设备状态单元
type StatusCell struct {
	cellCore
	value models.DeviceStatus
}

// Get 返回最近发布的设备状态快照
func (c *StatusCell) Get() models.DeviceStatus {
	c.lock()
	v := c.value
	c.unlock()
	return v
}

// Publish 原子替换设备状态快照，超时放弃本周期
func (c *StatusCell) Publish(v models.DeviceStatus) bool {
	if !c.lockTimed() {
		c.dropPublish()
		return false
	}
	c.value = v
	subs := c.markPublished()
	c.unlock()
	signalAll(subs)
	return true
}

// Subscribe 注册一个新消费者
func (c *StatusCell) Subscribe() *Subscription {
	return c.subscribe()
}

// MedicationCell 用药提醒单元
type MedicationCell struct {
	cellCore
	value models.MedicationAlert
}

// Get 返回最近发布的用药提醒快照
func (c *MedicationCell) Get() models.MedicationAlert {
	c.lock()
	v := c.value
	c.unlock()
	return v
}

// Publish 原子替换用药提醒快照，超时放弃本周期
func (c *MedicationCell) Publish(v models.MedicationAlert) bool {
	if !c.lockTimed() {
		c.dropPublish()
		return false
	}
	c.value = v
	subs := c.markPublished()
	c.unlock()
	signalAll(subs)
	return true
}

// Subscribe 注册一个新消费者
func (c *MedicationCell) Subscribe() *Subscription {
	return c.subscribe()
}

// Bus 全部事实单元的集合
type Bus struct {
	HeartRate  *HeartRateCell
	Fall       *FallCell
	EcgWindow  *EcgWindowCell
	Location   *LocationCell
	Status     *StatusCell
	Medication *MedicationCell
}

// NewBus 创建共享状态总线
// publishTimeout <= 0 时使用 DefaultPublishTimeout
func NewBus(publishTimeout time.Duration, logger *zap.Logger) *Bus {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Bus{
		HeartRate:  &HeartRateCell{cellCore: newCellCore("heart_rate", publishTimeout, logger)},
		Fall:       &FallCell{cellCore: newCellCore("fall", publishTimeout, logger)},
		EcgWindow:  &EcgWindowCell{cellCore: newCellCore("ecg_window", publishTimeout, logger)},
		Location:   &LocationCell{cellCore: newCellCore("location", publishTimeout, logger)},
		Status:     &StatusCell{cellCore: newCellCore("status", publishTimeout, logger)},
		Medication: &MedicationCell{cellCore: newCellCore("medication", publishTimeout, logger)},
	}
}

// PublishDrops 所有单元累计放弃的发布次数
func (b *Bus) PublishDrops() uint64 {
	return b.HeartRate.Drops() + b.Fall.Drops() + b.EcgWindow.Drops() +
		b.Location.Drops() + b.Status.Drops() + b.Medication.Drops()
}
