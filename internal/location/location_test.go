package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
)

type fakeSource struct {
	mu       sync.Mutex
	probeErr error
	lat, lon float64
	valid    bool
}

func (f *fakeSource) Probe() error {
	return f.probeErr
}

func (f *fakeSource) ReadLocation() (float64, float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lat, f.lon, f.valid
}

func TestSampler_PublishesReadingsToBus(t *testing.T) {
	b := bus.NewBus(bus.DefaultPublishTimeout, zap.NewNop())
	src := &fakeSource{lat: 35.56, lon: 45.43, valid: true}
	s := NewSampler(src, 10*time.Millisecond, b, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return b.Location.Get().Valid
	}, time.Second, 5*time.Millisecond)

	loc := b.Location.Get()
	assert.Equal(t, 35.56, loc.Latitude)
	assert.Equal(t, 45.43, loc.Longitude)
	assert.False(t, s.Disabled())
}

func TestSampler_ProbeFailureDisablesLocationOnly(t *testing.T) {
	b := bus.NewBus(bus.DefaultPublishTimeout, zap.NewNop())
	src := &fakeSource{probeErr: errors.New("no gps module")}
	s := NewSampler(src, 10*time.Millisecond, b, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after probe failure")
	}

	assert.True(t, s.Disabled())
	assert.False(t, b.Location.Get().Valid)
}

func TestSampler_DisabledReadableWhileRunning(t *testing.T) {
	b := bus.NewBus(bus.DefaultPublishTimeout, zap.NewNop())
	src := &fakeSource{probeErr: errors.New("no gps module")}
	s := NewSampler(src, 10*time.Millisecond, b, zap.NewNop())

	// 状态上报与采样循环并发读取降级标志，-race 下必须干净
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s.Disabled()
				}
			}
		}()
	}

	s.Run(context.Background())
	close(stop)
	readers.Wait()

	assert.True(t, s.Disabled())
}

func TestFixedSource_ReturnsConfiguredCoordinates(t *testing.T) {
	src := &FixedSource{Lat: 36.19, Lon: 44.01}

	require.NoError(t, src.Probe())
	lat, lon, valid := src.ReadLocation()
	assert.Equal(t, 36.19, lat)
	assert.Equal(t, 44.01, lon)
	assert.True(t, valid)
}
