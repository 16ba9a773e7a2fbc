package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/models"
)

func newTestBus() *Bus {
	return NewBus(50*time.Millisecond, zap.NewNop())
}

func TestGet_BeforeFirstPublish(t *testing.T) {
	b := newTestBus()

	// 首次发布前返回零值
	hr := b.HeartRate.Get()
	assert.Equal(t, 0, hr.BPM)
	assert.False(t, hr.ValidSignal)

	fall := b.Fall.Get()
	assert.False(t, fall.Detected)
	assert.Equal(t, 0, fall.Severity)
}

func TestPublish_ThenGet(t *testing.T) {
	b := newTestBus()
	now := time.Now()

	ok := b.HeartRate.Publish(models.HeartRateReading{BPM: 72, ValidSignal: true, Timestamp: now})
	require.True(t, ok)

	hr := b.HeartRate.Get()
	assert.Equal(t, 72, hr.BPM)
	assert.True(t, hr.ValidSignal)
	assert.Equal(t, now, hr.Timestamp)
}

func TestFresh_EdgeTriggered(t *testing.T) {
	b := newTestBus()
	sub := b.HeartRate.Subscribe()

	// 发布前无新数据
	assert.False(t, sub.Fresh())

	b.HeartRate.Publish(models.HeartRateReading{BPM: 70, ValidSignal: true})

	// 每次发布至多一次 true
	assert.True(t, sub.Fresh())
	assert.False(t, sub.Fresh())
	assert.False(t, sub.Fresh())

	b.HeartRate.Publish(models.HeartRateReading{BPM: 71, ValidSignal: true})
	assert.True(t, sub.Fresh())
	assert.False(t, sub.Fresh())
}

func TestFresh_MultiplePublishesSingleEdge(t *testing.T) {
	b := newTestBus()
	sub := b.Fall.Subscribe()

	for i := 0; i < 5; i++ {
		b.Fall.Publish(models.FallEvent{Detected: true, Severity: i + 1})
	}

	// 连续发布合并为一次边沿
	assert.True(t, sub.Fresh())
	assert.False(t, sub.Fresh())
}

func TestFresh_IndependentPerSubscription(t *testing.T) {
	b := newTestBus()
	sub1 := b.HeartRate.Subscribe()
	sub2 := b.HeartRate.Subscribe()

	b.HeartRate.Publish(models.HeartRateReading{BPM: 80, ValidSignal: true})

	assert.True(t, sub1.Fresh())
	// sub1 消费不影响 sub2
	assert.True(t, sub2.Fresh())
	assert.False(t, sub1.Fresh())
	assert.False(t, sub2.Fresh())
}

func TestSubscribe_AfterPublishStartsClean(t *testing.T) {
	b := newTestBus()
	b.HeartRate.Publish(models.HeartRateReading{BPM: 65, ValidSignal: true})

	// 订阅时已有的数据不算新
	sub := b.HeartRate.Subscribe()
	assert.False(t, sub.Fresh())
	assert.Equal(t, 65, b.HeartRate.Get().BPM)
}

func TestNotify_SignalsOnPublish(t *testing.T) {
	b := newTestBus()
	sub := b.Fall.Subscribe()

	done := make(chan models.FallEvent, 1)
	go func() {
		<-sub.Notify()
		if sub.Fresh() {
			done <- b.Fall.Get()
		}
	}()

	b.Fall.Publish(models.FallEvent{Detected: true, Severity: 7, PeakAcceleration: 22.5})

	select {
	case ev := <-done:
		assert.True(t, ev.Detected)
		assert.Equal(t, 7, ev.Severity)
	case <-time.After(time.Second):
		t.Fatal("notify signal not delivered")
	}
}

func TestPublish_TimeoutDropsCycle(t *testing.T) {
	b := NewBus(20*time.Millisecond, zap.NewNop())

	// 占住锁，模拟持锁未释放的读者
	b.HeartRate.lock()

	ok := b.HeartRate.Publish(models.HeartRateReading{BPM: 99, ValidSignal: true})
	assert.False(t, ok)
	assert.Equal(t, uint64(1), b.HeartRate.Drops())

	b.HeartRate.unlock()

	// 下一周期恢复发布
	ok = b.HeartRate.Publish(models.HeartRateReading{BPM: 99, ValidSignal: true})
	assert.True(t, ok)
	assert.Equal(t, 99, b.HeartRate.Get().BPM)
	assert.Equal(t, uint64(1), b.HeartRate.Drops())
}

func TestPublishDrops_SumsAllCells(t *testing.T) {
	b := NewBus(10*time.Millisecond, zap.NewNop())

	b.HeartRate.lock()
	b.Fall.lock()
	b.HeartRate.Publish(models.HeartRateReading{})
	b.Fall.Publish(models.FallEvent{})
	b.Fall.Publish(models.FallEvent{})
	b.HeartRate.unlock()
	b.Fall.unlock()

	assert.Equal(t, uint64(3), b.PublishDrops())
}

func TestSnapshot_NeverTorn(t *testing.T) {
	b := newTestBus()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	// 写入方：所有字段由同一计数派生
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			sev := i%10 + 1
			b.Fall.Publish(models.FallEvent{
				Detected:         true,
				Severity:         sev,
				PeakAcceleration: float64(sev) * 2,
				Orientation:      models.Orientation{Pitch: float64(sev), Roll: float64(sev), Yaw: float64(sev)},
			})
		}
	}()

	// 读取方：字段间关系必须始终成立
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				ev := b.Fall.Get()
				if !ev.Detected {
					continue // 首次发布前的零值
				}
				assert.Equal(t, float64(ev.Severity)*2, ev.PeakAcceleration)
				assert.Equal(t, float64(ev.Severity), ev.Orientation.Pitch)
				assert.Equal(t, ev.Orientation.Pitch, ev.Orientation.Roll)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestEcgWindow_SnapshotIndependent(t *testing.T) {
	b := newTestBus()

	b.EcgWindow.Publish(models.EcgWindow{Samples: []int{1, 2, 3}, NextIndex: 3})
	first := b.EcgWindow.Get()

	b.EcgWindow.Publish(models.EcgWindow{Samples: []int{4, 5, 6}, NextIndex: 6})
	second := b.EcgWindow.Get()

	// 新发布不改写已取出的快照
	assert.Equal(t, []int{1, 2, 3}, first.Samples)
	assert.Equal(t, []int{4, 5, 6}, second.Samples)
	assert.Equal(t, uint64(3), first.NextIndex)
	assert.Equal(t, uint64(6), second.NextIndex)
}
