package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
)

type fakePlayer struct {
	mu     sync.Mutex
	tracks []int
	volume int
}

func (p *fakePlayer) Play(track int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePlayer) SetVolume(volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	return nil
}

func (p *fakePlayer) played() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.tracks))
	copy(out, p.tracks)
	return out
}

func newTestDispatcher() (*Dispatcher, *fakePlayer, *bus.Bus) {
	player := &fakePlayer{}
	b := bus.NewBus(bus.DefaultPublishTimeout, zap.NewNop())
	return NewDispatcher(player, 30, b, zap.NewNop()), player, b
}

func TestDispatcher_MedicationDueOpensRepromptWindow(t *testing.T) {
	d, player, b := newTestDispatcher()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	b.Medication.Publish(models.MedicationAlert{
		Dose:      models.MedicationDose{ID: 1, Name: "Aspirin"},
		Stage:     models.MedicationDue,
		Timestamp: now,
	})
	d.onMedication(now)
	require.Equal(t, []int{TrackMedication}, player.played())

	// 窗口内每秒一拍：3 秒间隔重报
	for i := 1; i <= 15; i++ {
		d.tick(now.Add(time.Duration(i) * time.Second))
	}
	// 首报 + 第 3/6/9/12/15 秒的重报
	assert.Equal(t, 6, len(player.played()))

	// 窗口外不再重报
	for i := 16; i <= 30; i++ {
		d.tick(now.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 6, len(player.played()))
}

func TestDispatcher_AdvanceNoticePlaysOnceWithoutWindow(t *testing.T) {
	d, player, b := newTestDispatcher()
	now := time.Date(2026, 3, 1, 7, 59, 0, 0, time.UTC)

	b.Medication.Publish(models.MedicationAlert{
		Dose:  models.MedicationDose{ID: 1, Name: "Aspirin"},
		Stage: models.MedicationAdvance,
	})
	d.onMedication(now)
	require.Equal(t, []int{TrackMedication}, player.played())

	// 预告不开启重报窗口
	for i := 1; i <= 10; i++ {
		d.tick(now.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 1, len(player.played()))
}

func TestDispatcher_FallConfirmationPlaysFallTrack(t *testing.T) {
	d, player, b := newTestDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	b.Fall.Publish(models.FallEvent{Detected: true, Severity: 5, Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tracks := player.played()
		if len(tracks) >= 2 {
			// 开机欢迎后是跌倒曲目
			assert.Equal(t, TrackWelcome, tracks[0])
			assert.Equal(t, TrackFall, tracks[1])
			assert.Equal(t, 30, player.volume)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("fall track not played")
}
