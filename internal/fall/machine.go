package fall

import (
	"time"

	"github.com/aland-omed/ElderGuard/internal/config"
)

// State 跌倒确认状态机的状态
// 任一时刻只有一个状态生效，状态迁移全序：Monitoring 不会直接跳到 Confirmed
type State int

const (
	Monitoring State = iota
	PotentialFall
	ImpactDetected
	Confirmed
)

// String 状态名
func (s State) String() string {
	switch s {
	case Monitoring:
		return "monitoring"
	case PotentialFall:
		return "potential_fall"
	case ImpactDetected:
		return "impact_detected"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Input 状态机每拍的输入
type Input struct {
	Magnitude        float64 // 加速度模长 m/s²
	OrientationDelta float64 // 姿态相对基线的偏移（度）
	At               time.Time
}

// Outcome 一次迁移的副作用
// ConfirmedNow 在进入 Confirmed 的那一拍为 true；ClearedNow 在冷却期满
// 回到 Monitoring 的那一拍为 true，二者各自每个事件周期至多出现一次
type Outcome struct {
	ConfirmedNow bool
	ClearedNow   bool
	Peak         float64
	Severity     int
}

// Machine 四态跌倒确认状态机
//
// Monitoring -> PotentialFall：模长跌破失重阈值。
// PotentialFall -> ImpactDetected：失重持续达到下限后出现连续冲击采样；
// 窗口耗尽无冲击则回 Monitoring。
// ImpactDetected -> Confirmed：片段平均加速度与峰谷差均过下限，且（若
// 启用）姿态偏移超阈值；任一不满足则回 Monitoring。
// Confirmed -> Monitoring：固定冷却期满，清除 detected。
//
// 迁移函数 Step 是显式的 (state, input) -> (state, outcome)，
// 不依赖调度器，可单独驱动测试。
type Machine struct {
	tun config.FallTunables

	state        State
	freefallAt   time.Time
	confirmedAt  time.Time
	impactStreak int

	// 当前片段（失重开始到评估）的加速度统计
	episodePeak  float64
	episodeMin   float64
	episodeSum   float64
	episodeCount int
}

// NewMachine 创建状态机，初始状态 Monitoring
func NewMachine(tun config.FallTunables) *Machine {
	return &Machine{tun: tun}
}

// State 当前状态
func (m *Machine) State() State {
	return m.state
}

// Step 处理一拍输入，返回迁移后的状态与副作用
func (m *Machine) Step(in Input) (State, Outcome) {
	switch m.state {
	case Monitoring:
		m.stepMonitoring(in)
		return m.state, Outcome{}
	case PotentialFall:
		m.stepPotentialFall(in)
		return m.state, Outcome{}
	case ImpactDetected:
		return m.state, m.stepImpactDetected(in)
	case Confirmed:
		return m.state, m.stepConfirmed(in)
	}
	return m.state, Outcome{}
}

func (m *Machine) stepMonitoring(in Input) {
	if in.Magnitude < m.tun.FreefallThreshold {
		m.state = PotentialFall
		m.freefallAt = in.At
		m.impactStreak = 0
		m.episodePeak = in.Magnitude
		m.episodeMin = in.Magnitude
		m.episodeSum = in.Magnitude
		m.episodeCount = 1
	}
}

func (m *Machine) stepPotentialFall(in Input) {
	m.trackEpisode(in.Magnitude)

	elapsed := in.At.Sub(m.freefallAt)
	if in.Magnitude > m.tun.ImpactThreshold {
		m.impactStreak++
		if elapsed >= time.Duration(m.tun.MinFreefallMs)*time.Millisecond &&
			m.impactStreak >= m.tun.ConsecutiveImpactSamples {
			m.state = ImpactDetected
			return
		}
	} else {
		m.impactStreak = 0
	}

	if elapsed > time.Duration(m.tun.ImpactWindowMs)*time.Millisecond {
		// 窗口耗尽无冲击，只是放下或坐下
		m.state = Monitoring
	}
}

// stepImpactDetected 评估片段有效性，决定确认还是回落
func (m *Machine) stepImpactDetected(in Input) Outcome {
	m.trackEpisode(in.Magnitude)

	average := m.episodeSum / float64(m.episodeCount)
	spread := m.episodePeak - m.episodeMin

	valid := average >= m.tun.MinAverageAccel && spread >= m.tun.MinSpread
	if valid && m.tun.RequireOrientationChange {
		valid = in.OrientationDelta > m.tun.OrientationChangeDeg
	}

	if !valid {
		m.state = Monitoring
		return Outcome{}
	}

	m.state = Confirmed
	m.confirmedAt = in.At
	return Outcome{
		ConfirmedNow: true,
		Peak:         m.episodePeak,
		Severity:     Severity(m.episodePeak, m.tun.ImpactThreshold, m.tun.SeverityCeiling),
	}
}

func (m *Machine) stepConfirmed(in Input) Outcome {
	cooldown := time.Duration(m.tun.CooldownS) * time.Second
	if in.At.Sub(m.confirmedAt) < cooldown {
		return Outcome{}
	}
	m.state = Monitoring
	return Outcome{ClearedNow: true}
}

func (m *Machine) trackEpisode(magnitude float64) {
	if magnitude > m.episodePeak {
		m.episodePeak = magnitude
	}
	if magnitude < m.episodeMin {
		m.episodeMin = magnitude
	}
	m.episodeSum += magnitude
	m.episodeCount++
}

// Severity 峰值加速度线性映射到 [1,10] 级
// [impactThreshold, ceiling] 映射到 [1,10]，任何输入都被夹紧在区间内
func Severity(peak, impactThreshold, ceiling float64) int {
	if ceiling <= impactThreshold {
		return 1
	}
	s := 1 + (peak-impactThreshold)*9/(ceiling-impactThreshold)
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return int(s)
}
