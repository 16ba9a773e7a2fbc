// Package sched 固定节拍调度
package sched

import (
	"context"
	"time"
)

// Loop 以固定周期运行 fn，直到 ctx 取消
//
// 唤醒对齐绝对截止时刻：下一拍从上一拍的截止时刻起算，处理耗时不会让节拍
// 逐渐漂移。fn 返回时若已越过整个周期，则对齐当前时刻重新起拍，错过的
// 节拍不补发。每条管线各占一个 goroutine，拍内不并发。
func Loop(ctx context.Context, period time.Duration, fn func(now time.Time)) {
	next := time.Now().Add(period)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fn(time.Now())

			next = next.Add(period)
			wait := time.Until(next)
			if wait <= 0 {
				// 超拍：重新对齐，不追发
				next = time.Now().Add(period)
				wait = period
			}
			timer.Reset(wait)
		}
	}
}
