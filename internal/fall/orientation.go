package fall

import (
	"math"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// OrientationFromAccel 由三轴加速度作三角分解得到姿态角（度）
// 纯函数，只依赖输入值，可用字面量采样序列直接测试
func OrientationFromAccel(a models.Vector3) models.Orientation {
	return models.Orientation{
		Pitch: math.Atan2(a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z)) * 180 / math.Pi,
		Roll:  math.Atan2(a.Y, math.Sqrt(a.X*a.X+a.Z*a.Z)) * 180 / math.Pi,
		Yaw:   math.Atan2(math.Sqrt(a.X*a.X+a.Y*a.Y), a.Z) * 180 / math.Pi,
	}
}

// OrientationFilter 姿态角指数平滑
// 三个角各自独立平滑，alpha 为旧值权重
type OrientationFilter struct {
	alpha   float64
	current models.Orientation
	primed  bool
}

// NewOrientationFilter 创建姿态平滑滤波器
func NewOrientationFilter(alpha float64) *OrientationFilter {
	return &OrientationFilter{alpha: alpha}
}

// Update 写入一次加速度采样，返回平滑后的姿态角
func (f *OrientationFilter) Update(accel models.Vector3) models.Orientation {
	o := OrientationFromAccel(accel)
	if !f.primed {
		f.current = o
		f.primed = true
		return f.current
	}
	f.current.Pitch = f.alpha*f.current.Pitch + (1-f.alpha)*o.Pitch
	f.current.Roll = f.alpha*f.current.Roll + (1-f.alpha)*o.Roll
	f.current.Yaw = f.alpha*f.current.Yaw + (1-f.alpha)*o.Yaw
	return f.current
}

// Current 当前平滑姿态角
func (f *OrientationFilter) Current() models.Orientation {
	return f.current
}

// Calibrator 启动期姿态基线标定
// 累积静止采样求均值，Done 后基线不再改变直到下次重启
type Calibrator struct {
	target int
	count  int
	sum    models.Orientation
}

// NewCalibrator 创建需要 target 个采样的标定器
func NewCalibrator(target int) *Calibrator {
	return &Calibrator{target: target}
}

// Add 写入一个静止采样，标定完成时返回 true
func (c *Calibrator) Add(accel models.Vector3) bool {
	if c.count >= c.target {
		return true
	}
	o := OrientationFromAccel(accel)
	c.sum.Pitch += o.Pitch
	c.sum.Roll += o.Roll
	c.sum.Yaw += o.Yaw
	c.count++
	return c.count >= c.target
}

// Done 标定是否完成
func (c *Calibrator) Done() bool {
	return c.count >= c.target
}

// Baseline 标定得到的姿态基线
func (c *Calibrator) Baseline() models.Orientation {
	if c.count == 0 {
		return models.Orientation{}
	}
	n := float64(c.count)
	return models.Orientation{
		Pitch: c.sum.Pitch / n,
		Roll:  c.sum.Roll / n,
		Yaw:   c.sum.Yaw / n,
	}
}

// OrientationDelta 姿态相对基线的偏移量
// 取 pitch/roll 偏差中较大的一个；检测只比较相对量，安装朝向无需固定
func OrientationDelta(current, baseline models.Orientation) float64 {
	return math.Max(math.Abs(current.Pitch-baseline.Pitch), math.Abs(current.Roll-baseline.Roll))
}
