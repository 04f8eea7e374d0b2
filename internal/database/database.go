package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"valentinequest/internal/config"
)

// connectPolicy 控制启动阶段等待数据库就绪的节奏。
type connectPolicy struct {
	attempts int
	base     time.Duration
	timeout  time.Duration
}

// defaultConnectPolicy 覆盖 compose 启动时 PostgreSQL 尚未就绪的窗口（约 15 秒）。
var defaultConnectPolicy = connectPolicy{attempts: 6, base: 500 * time.Millisecond, timeout: time.Minute}

// InitDatabase 连接 PostgreSQL 并配置连接池。容器编排下数据库可能晚于服务启动，
// 因此 ping 失败会按指数退避重试。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, _, err := openWithRetry(postgres.Open(cfg.DSN()), defaultConnectPolicy)
	if err != nil {
		return nil, fmt.Errorf("connect database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// openWithRetry 打开连接并 ping，返回实际尝试次数。gorm.Open 自带的 ping 被关闭，
// 由这里统一重试。
func openWithRetry(dialector gorm.Dialector, policy connectPolicy) (*gorm.DB, int, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, 0, fmt.Errorf("unwrap db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), policy.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(uint64(policy.attempts-1), retry.NewExponential(policy.base))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := sqlDB.PingContext(ctx); err != nil {
			slog.Warn("database not ready", slog.Int("attempt", attempt), slog.Any("error", err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, attempt, fmt.Errorf("ping database after %d attempt(s): %w", attempt, err)
	}
	return db, attempt, nil
}
