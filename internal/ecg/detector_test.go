package ecg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aland-omed/ElderGuard/internal/config"
)

const tickPeriod = 20 * time.Millisecond // 50 Hz

var testBase = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// makeEcgWave 生成一个周期的合成心电波形
// period 为采样数，R 波尖峰占 spikeAt..spikeAt+2，叠加周期 4 的小纹波避免平线
func makeEcgWave(period, spikeAt, spikeAmp int) []int {
	ripple := []int{0, 6, 0, -6}
	wave := make([]int, period)
	for i := range wave {
		wave[i] = 2048 + ripple[i%4]
	}
	wave[spikeAt] += spikeAmp / 2
	wave[spikeAt+1] += spikeAmp
	wave[spikeAt+2] += spikeAmp / 2
	return wave
}

func runDetector(d *BeatDetector, wave []int, ticks int) []Beat {
	var beats []Beat
	for i := 0; i < ticks; i++ {
		now := testBase.Add(time.Duration(i) * tickPeriod)
		if b, ok := d.Process(wave[i%len(wave)], now); ok {
			beats = append(beats, b)
		}
	}
	return beats
}

func TestBeatDetector_ConfirmsPeriodicBeats(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	d := NewBeatDetector(tun)

	// 800ms 周期（40 样本 @50Hz），R 波幅值 600
	wave := makeEcgWave(40, 10, 600)
	beats := runDetector(d, wave, 500)

	require.GreaterOrEqual(t, len(beats), 10)

	// 首搏无间期，其后每搏间期为一个波形周期（阈值自适应期允许一拍抖动）
	assert.Equal(t, time.Duration(0), beats[0].RR)
	for i, b := range beats[1:] {
		assert.InDelta(t, float64(800*time.Millisecond), float64(b.RR),
			float64(tickPeriod), "beat %d", i+1)
	}

	// 峰值幅度接近滤波后的 R 波偏差
	for _, b := range beats {
		assert.InDelta(t, 240.0, b.Amplitude, 30.0)
	}
}

func TestBeatDetector_WideComplexRejected(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	d := NewBeatDetector(tun)

	// 先铺平基线，再给一段 300ms 的高平台：宽度超限，不得确认为心搏
	wave := make([]int, 0, 200)
	for i := 0; i < 100; i++ {
		wave = append(wave, 2048)
	}
	for i := 0; i < 15; i++ {
		wave = append(wave, 2648)
	}
	for i := 0; i < 85; i++ {
		wave = append(wave, 2048)
	}

	beats := runDetector(d, wave, len(wave))
	assert.Empty(t, beats)
}

func TestBeatDetector_ThresholdRelaxesAfterQuietPeriod(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	d := NewBeatDetector(tun)

	// 幅值 160 的弱 R 波：常规阈值检不出，静默 1.5s 降阈后应检出
	wave := makeEcgWave(40, 10, 160)
	beats := runDetector(d, wave, 300)

	require.NotEmpty(t, beats)
	relaxAt := testBase.Add(time.Duration(tun.ThresholdRelaxMs) * time.Millisecond)
	for _, b := range beats {
		assert.True(t, b.At.After(relaxAt), "beat at %v before relax window", b.At)
	}
}

func TestBeatDetector_Reset(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	d := NewBeatDetector(tun)

	wave := makeEcgWave(40, 10, 600)
	first := runDetector(d, wave, 200)
	require.NotEmpty(t, first)

	d.Reset()

	// 复位后行为与新建一致：首搏间期为 0
	again := runDetector(d, wave, 200)
	require.NotEmpty(t, again)
	assert.Equal(t, time.Duration(0), again[0].RR)
}

func TestRateEstimator_OutOfRangeIntervalNeverIncorporated(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	e := NewRateEstimator(tun)

	assert.True(t, e.AddInterval(790*time.Millisecond))
	assert.True(t, e.AddInterval(800*time.Millisecond))
	assert.True(t, e.AddInterval(810*time.Millisecond))
	assert.Equal(t, 75, e.Rate())

	// 超出 [300,1500]ms 的间期被丢弃，不影响均值环
	assert.False(t, e.AddInterval(2*time.Second))
	assert.False(t, e.AddInterval(200*time.Millisecond))
	assert.False(t, e.AddInterval(0))

	assert.Equal(t, 3, e.intervals.Len())
	assert.Equal(t, 75, e.Rate())
}

func TestRateEstimator_BoundaryIntervalsAccepted(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	e := NewRateEstimator(tun)

	assert.True(t, e.AddInterval(300*time.Millisecond))
	assert.True(t, e.AddInterval(1500*time.Millisecond))
	assert.Equal(t, 2, e.intervals.Len())
}

func TestRateEstimator_SmoothingPrimesOnFirstRate(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	e := NewRateEstimator(tun)

	for i := 0; i < tun.RRWindow; i++ {
		e.AddInterval(800 * time.Millisecond)
	}
	// 首个心率直接采用原始值
	assert.Equal(t, 75, e.Rate())

	// 间期整体变为 600ms（100 BPM），平滑按 0.75 旧值权重逼近
	for i := 0; i < tun.RRWindow; i++ {
		e.AddInterval(600 * time.Millisecond)
	}
	assert.Equal(t, 81, e.Rate())
	assert.Equal(t, 86, e.Rate())
}

func TestRateEstimator_EmptyRingIsZero(t *testing.T) {
	tun := config.DefaultTunables().HeartRate
	e := NewRateEstimator(tun)
	assert.Equal(t, 0, e.Rate())

	e.AddInterval(800 * time.Millisecond)
	assert.Equal(t, 75, e.Rate())

	e.Reset()
	assert.Equal(t, 0, e.Rate())
}
