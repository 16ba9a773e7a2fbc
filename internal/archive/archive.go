// Package archive 事件归档（机构模式，可选）
//
// 确认的跌倒事件与每分钟心率聚合写入 PostgreSQL。写失败记日志后丢弃，
// 归档从不向检测管线回压。
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
)

// Options PostgreSQL 连接参数
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Archive 事件归档器
type Archive struct {
	db       *sql.DB
	deviceID string
	b        *bus.Bus
	logger   *zap.Logger
}

// Open 建立数据库连接并确认可达
func Open(opts Options, deviceID string, b *bus.Bus, logger *zap.Logger) (*Archive, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host, opts.Port, opts.User, opts.Password, opts.Database, opts.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return New(db, deviceID, b, logger), nil
}

// New 以现有连接创建归档器（测试注入 sqlmock）
func New(db *sql.DB, deviceID string, b *bus.Bus, logger *zap.Logger) *Archive {
	return &Archive{db: db, deviceID: deviceID, b: b, logger: logger}
}

// EnsureSchema 建表（存在即跳过）
func (a *Archive) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS fall_events (
	event_id          UUID PRIMARY KEY,
	device_id         TEXT NOT NULL,
	severity          INT NOT NULL,
	peak_acceleration DOUBLE PRECISION NOT NULL,
	pitch             DOUBLE PRECISION NOT NULL,
	roll              DOUBLE PRECISION NOT NULL,
	yaw               DOUBLE PRECISION NOT NULL,
	occurred_at       TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS heart_rate_minutes (
	device_id    TEXT NOT NULL,
	minute_start TIMESTAMPTZ NOT NULL,
	avg_bpm      DOUBLE PRECISION NOT NULL,
	min_bpm      INT NOT NULL,
	max_bpm      INT NOT NULL,
	samples      INT NOT NULL,
	PRIMARY KEY (device_id, minute_start)
);`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}

// InsertFallEvent 写入一条确认的跌倒事件
func (a *Archive) InsertFallEvent(ctx context.Context, ev models.FallEvent) error {
	const query = `
		INSERT INTO fall_events (event_id, device_id, severity, peak_acceleration, pitch, roll, yaw, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := a.db.ExecContext(ctx, query,
		uuid.New().String(), a.deviceID, ev.Severity, ev.PeakAcceleration,
		ev.Orientation.Pitch, ev.Orientation.Roll, ev.Orientation.Yaw, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert fall event: %w", err)
	}
	return nil
}

// InsertHeartRateMinute 写入一条每分钟心率聚合
func (a *Archive) InsertHeartRateMinute(ctx context.Context, m MinuteAggregate) error {
	const query = `
		INSERT INTO heart_rate_minutes (device_id, minute_start, avg_bpm, min_bpm, max_bpm, samples)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id, minute_start) DO NOTHING`

	_, err := a.db.ExecContext(ctx, query,
		a.deviceID, m.MinuteStart, m.Avg(), m.Min, m.Max, m.Samples)
	if err != nil {
		return fmt.Errorf("failed to insert heart rate minute: %w", err)
	}
	return nil
}

// Run 运行归档循环直到 ctx 取消
// 跌倒边沿触发写入；有效心率按分钟聚合，分钟翻转时落库
func (a *Archive) Run(ctx context.Context) {
	fallSub := a.b.Fall.Subscribe()
	hrSub := a.b.HeartRate.Subscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	agg := NewMinuteAggregator()
	a.logger.Info("event archive started")

	for {
		select {
		case <-ctx.Done():
			if m, ok := agg.Flush(); ok {
				a.storeMinute(m)
			}
			return
		case <-fallSub.Notify():
			if fallSub.Fresh() {
				if ev := a.b.Fall.Get(); ev.Detected {
					if err := a.InsertFallEvent(ctx, ev); err != nil {
						a.logger.Warn("fall event archive failed", zap.Error(err))
					}
				}
			}
		case now := <-ticker.C:
			if !hrSub.Fresh() {
				continue
			}
			hr := a.b.HeartRate.Get()
			if m, ok := agg.Add(hr, now); ok {
				a.storeMinute(m)
			}
		}
	}
}

func (a *Archive) storeMinute(m MinuteAggregate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.InsertHeartRateMinute(ctx, m); err != nil {
		a.logger.Warn("heart rate minute archive failed", zap.Error(err))
	}
}

// Close 关闭数据库连接
func (a *Archive) Close() error {
	return a.db.Close()
}
