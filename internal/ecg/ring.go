package ecg

import "time"

// SampleRing 固定容量的心电采样环
// 写满后覆盖最旧槽位，永不阻塞或扩容；逻辑序号单调递增，槽位 = 序号 % 容量
type SampleRing struct {
	data []int
	next uint64
}

// NewSampleRing 创建容量为 capacity 的采样环
func NewSampleRing(capacity int) *SampleRing {
	return &SampleRing{data: make([]int, capacity)}
}

// Push 写入一个采样值
func (r *SampleRing) Push(v int) {
	r.data[int(r.next%uint64(len(r.data)))] = v
	r.next++
}

// Len 当前持有的采样数
func (r *SampleRing) Len() int {
	if r.next >= uint64(len(r.data)) {
		return len(r.data)
	}
	return int(r.next)
}

// Cap 环容量
func (r *SampleRing) Cap() int {
	return len(r.data)
}

// NextIndex 下一个写入位置的逻辑序号
func (r *SampleRing) NextIndex() uint64 {
	return r.next
}

// At 按逻辑序号读取，序号在当前窗口之外返回 false
func (r *SampleRing) At(index uint64) (int, bool) {
	if index >= r.next || r.next-index > uint64(r.Len()) {
		return 0, false
	}
	return r.data[int(index%uint64(len(r.data)))], true
}

// Last 返回最新的 n 个采样，按时间先后排列；不足 n 时返回现有全部
func (r *SampleRing) Last(n int) []int {
	if n > r.Len() {
		n = r.Len()
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, _ := r.At(r.next - uint64(n-i))
		out[i] = v
	}
	return out
}

// Snapshot 返回窗口内全部采样，按时间先后排列
func (r *SampleRing) Snapshot() []int {
	return r.Last(r.Len())
}

// IntervalRing 固定容量的 RR 间期环
type IntervalRing struct {
	data []time.Duration
	pos  int
	full bool
}

// NewIntervalRing 创建容量为 capacity 的间期环
func NewIntervalRing(capacity int) *IntervalRing {
	return &IntervalRing{data: make([]time.Duration, capacity)}
}

// Push 写入一个间期，写满后覆盖最旧值
func (r *IntervalRing) Push(d time.Duration) {
	r.data[r.pos] = d
	r.pos++
	if r.pos >= len(r.data) {
		r.pos = 0
		r.full = true
	}
}

// Len 当前持有的间期数
func (r *IntervalRing) Len() int {
	if r.full {
		return len(r.data)
	}
	return r.pos
}

// Mean 间期均值，空环返回 0
func (r *IntervalRing) Mean() time.Duration {
	n := r.Len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	if r.full {
		for _, d := range r.data {
			sum += d
		}
	} else {
		for _, d := range r.data[:r.pos] {
			sum += d
		}
	}
	return sum / time.Duration(n)
}

// Reset 清空间期环
func (r *IntervalRing) Reset() {
	r.pos = 0
	r.full = false
}
