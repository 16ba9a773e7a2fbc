// Package stream Redis Streams 床旁直读
//
// 机构局域网部署时，realtime 负载除 MQTT 上行外同时 XADD 到本地
// Redis 流，院内服务直接消费。Redis 不可达只记日志，从不阻塞管线。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
)

// Options Redis 连接与流参数
type Options struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Sink Redis Streams 写入端
type Sink struct {
	client   *redis.Client
	deviceID string
	stream   string
	maxLen   int64
	b        *bus.Bus
	logger   *zap.Logger
}

// NewSink 创建流写入端并验证连通性
func NewSink(opts Options, deviceID string, b *bus.Bus, logger *zap.Logger) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Sink{
		client:   client,
		deviceID: deviceID,
		stream:   opts.Stream,
		maxLen:   opts.MaxLen,
		b:        b,
		logger:   logger,
	}, nil
}

// Run 运行写入循环直到 ctx 取消
// 消费节奏与 MQTT realtime 相同：心电每秒一帧，跌倒边沿触发
func (s *Sink) Run(ctx context.Context) {
	hrSub := s.b.HeartRate.Subscribe()
	fallSub := s.b.Fall.Subscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.logger.Info("redis stream sink started", zap.String("stream", s.stream))

	for {
		select {
		case <-ctx.Done():
			return
		case <-fallSub.Notify():
			if fallSub.Fresh() {
				ev := s.b.Fall.Get()
				if ev.Detected {
					s.add(ctx, models.NewFallAlertPayload(s.deviceID, ev, s.b.Location.Get()))
				}
			}
		case <-ticker.C:
			if hrSub.Fresh() {
				hr := s.b.HeartRate.Get()
				win := s.b.EcgWindow.Get()
				s.add(ctx, models.NewEcgPayload(s.deviceID, hr, win.Samples))
			}
		}
	}
}

// add XADD 一条 JSON 负载，带近似长度上限防止无界增长
func (s *Sink) add(ctx context.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal stream payload", zap.Error(err))
		return
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		s.logger.Warn("redis stream write failed", zap.Error(err))
	}
}

// Close 关闭 Redis 连接
func (s *Sink) Close() error {
	return s.client.Close()
}
