package fall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aland-omed/ElderGuard/internal/config"
)

const tickPeriod = 20 * time.Millisecond // 50 Hz

var testBase = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// driveMagnitudes 按节拍馈入模长序列，返回途经的状态序列与最后的副作用
func driveMagnitudes(m *Machine, from time.Time, mags []float64, delta float64) ([]State, Outcome, time.Time) {
	states := make([]State, 0, len(mags))
	var last Outcome
	now := from
	for _, mag := range mags {
		now = now.Add(tickPeriod)
		st, out := m.Step(Input{Magnitude: mag, OrientationDelta: delta, At: now})
		states = append(states, st)
		if out.ConfirmedNow || out.ClearedNow {
			last = out
		}
	}
	return states, last, now
}

// fallProfile 200ms 失重（2 m/s²）后单个 20 m/s² 冲击，再回到静止
func fallProfile() []float64 {
	mags := make([]float64, 0, 12)
	for i := 0; i < 10; i++ {
		mags = append(mags, 2.0)
	}
	mags = append(mags, 20.0, 9.81)
	return mags
}

func TestMachine_ConfirmsFallThroughEveryState(t *testing.T) {
	tun := config.DefaultTunables().Fall
	m := NewMachine(tun)

	states, out, _ := driveMagnitudes(m, testBase, fallProfile(), 30)

	// Monitoring→PotentialFall→ImpactDetected→Confirmed，不跳级
	assert.Equal(t, PotentialFall, states[0])
	assert.Contains(t, states, ImpactDetected)
	assert.Equal(t, Confirmed, states[len(states)-1])
	for i := 1; i < len(states); i++ {
		assert.LessOrEqual(t, int(states[i])-int(states[i-1]), 1,
			"state skipped at tick %d: %v -> %v", i, states[i-1], states[i])
	}

	require.True(t, out.ConfirmedNow)
	assert.Equal(t, 20.0, out.Peak)
	assert.Equal(t, Severity(20.0, tun.ImpactThreshold, tun.SeverityCeiling), out.Severity)
}

func TestMachine_NeverConfirmsStraightFromMonitoring(t *testing.T) {
	tun := config.DefaultTunables().Fall
	m := NewMachine(tun)

	// 任意单拍输入（包括直接的大冲击）都不能从 Monitoring 直达 Confirmed
	for _, mag := range []float64{0, 2.0, 9.81, 20.0, 100.0} {
		m2 := NewMachine(tun)
		st, out := m2.Step(Input{Magnitude: mag, At: testBase})
		assert.NotEqual(t, Confirmed, st, "magnitude %v", mag)
		assert.NotEqual(t, ImpactDetected, st, "magnitude %v", mag)
		assert.False(t, out.ConfirmedNow)
	}
	assert.Equal(t, Monitoring, m.State())
}

func TestMachine_ImpactWindowExpiryReturnsToMonitoring(t *testing.T) {
	tun := config.DefaultTunables().Fall
	m := NewMachine(tun)

	// 失重开始但窗口内无冲击：放下物品而非跌倒
	mags := make([]float64, 0, 60)
	for i := 0; i < 5; i++ {
		mags = append(mags, 2.0)
	}
	for i := 0; i < 55; i++ {
		mags = append(mags, 9.81) // 1100ms 普通重力，超出 1000ms 窗口
	}
	states, out, _ := driveMagnitudes(m, testBase, mags, 0)

	assert.Equal(t, PotentialFall, states[0])
	assert.Equal(t, Monitoring, states[len(states)-1])
	assert.NotContains(t, states, ImpactDetected)
	assert.False(t, out.ConfirmedNow)
}

func TestMachine_ImpactBeforeMinFreefallIsIgnored(t *testing.T) {
	tun := config.DefaultTunables().Fall
	m := NewMachine(tun)

	// 失重仅 60ms 即冲击：轻拍或碰撞，不足最短失重时长
	mags := []float64{2.0, 2.0, 2.0, 20.0}
	states, _, _ := driveMagnitudes(m, testBase, mags, 0)
	assert.NotContains(t, states, ImpactDetected)
}

func TestMachine_WeakPatternRejectedAtEvaluation(t *testing.T) {
	tun := config.DefaultTunables().Fall
	tun.MinSpread = 25.0 // 收紧峰谷差下限使该片段不过校验
	m := NewMachine(tun)

	states, out, _ := driveMagnitudes(m, testBase, fallProfile(), 0)

	assert.Contains(t, states, ImpactDetected)
	assert.Equal(t, Monitoring, states[len(states)-1])
	assert.False(t, out.ConfirmedNow)
}

func TestMachine_OrientationRequirementGatesConfirmation(t *testing.T) {
	tun := config.DefaultTunables().Fall
	tun.RequireOrientationChange = true

	// 姿态偏移不足：回 Monitoring
	m := NewMachine(tun)
	states, out, _ := driveMagnitudes(m, testBase, fallProfile(), 10)
	assert.Equal(t, Monitoring, states[len(states)-1])
	assert.False(t, out.ConfirmedNow)

	// 姿态偏移超阈值：确认
	m = NewMachine(tun)
	states, out, _ = driveMagnitudes(m, testBase, fallProfile(), 30)
	assert.Equal(t, Confirmed, states[len(states)-1])
	assert.True(t, out.ConfirmedNow)
}

func TestMachine_CooldownHoldsThenClearsExactlyOnce(t *testing.T) {
	tun := config.DefaultTunables().Fall
	m := NewMachine(tun)

	_, out, now := driveMagnitudes(m, testBase, fallProfile(), 0)
	require.True(t, out.ConfirmedNow)
	confirmedAt := now

	// 冷却期内保持 Confirmed，不重复触发
	cleared := 0
	for now.Sub(confirmedAt) < time.Duration(tun.CooldownS)*time.Second {
		now = now.Add(tickPeriod)
		st, out := m.Step(Input{Magnitude: 9.81, At: now})
		if out.ClearedNow {
			cleared++
		} else {
			assert.Equal(t, Confirmed, st)
		}
		assert.False(t, out.ConfirmedNow)
	}

	// 冷却期满后恰好清除一次并回到 Monitoring
	for i := 0; i < 5 && cleared == 0; i++ {
		now = now.Add(tickPeriod)
		if _, out := m.Step(Input{Magnitude: 9.81, At: now}); out.ClearedNow {
			cleared++
		}
	}
	assert.Equal(t, 1, cleared)
	assert.Equal(t, Monitoring, m.State())
}

func TestSeverity_AlwaysClampedToRange(t *testing.T) {
	tests := []struct {
		name string
		peak float64
		want int
	}{
		{"below threshold", 10.0, 1},
		{"at threshold", 16.0, 1},
		{"mid range", 28.0, 5},
		{"at ceiling", 40.0, 10},
		{"pathological peak", 1000.0, 10},
		{"negative", -5.0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Severity(tt.peak, 16.0, 40.0)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, 10)
		})
	}
}
