package ecg

// MovingAverage N 点滑动均值滤波
type MovingAverage struct {
	window []float64
	pos    int
	count  int
	sum    float64
}

// NewMovingAverage 创建 n 点滑动均值
func NewMovingAverage(n int) *MovingAverage {
	return &MovingAverage{window: make([]float64, n)}
}

// Push 写入采样并返回当前均值
func (m *MovingAverage) Push(v float64) float64 {
	if m.count == len(m.window) {
		m.sum -= m.window[m.pos]
	} else {
		m.count++
	}
	m.window[m.pos] = v
	m.sum += v
	m.pos = (m.pos + 1) % len(m.window)
	return m.sum / float64(m.count)
}

// Reset 清空滤波状态
func (m *MovingAverage) Reset() {
	for i := range m.window {
		m.window[i] = 0
	}
	m.pos = 0
	m.count = 0
	m.sum = 0
}

// EMA 指数滑动平均
// alpha 为旧值权重：value = alpha*value + (1-alpha)*v
type EMA struct {
	alpha  float64
	value  float64
	primed bool
}

// NewEMA 创建权重为 alpha 的指数滑动平均
func NewEMA(alpha float64) *EMA {
	return &EMA{alpha: alpha}
}

// Update 写入采样并返回当前值；首个采样直接作为初值
func (e *EMA) Update(v float64) float64 {
	if !e.primed {
		e.value = v
		e.primed = true
		return e.value
	}
	e.value = e.alpha*e.value + (1-e.alpha)*v
	return e.value
}

// Value 当前值
func (e *EMA) Value() float64 {
	return e.value
}

// Primed 是否已有初值
func (e *EMA) Primed() bool {
	return e.primed
}

// Reset 清空均值状态
func (e *EMA) Reset() {
	e.value = 0
	e.primed = false
}

// Variance 总体方差
func Variance(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += float64(x)
	}
	mean /= float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	return sq / float64(len(xs))
}
