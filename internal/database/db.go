package database

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = time.Hour
	defaultPingAttempts    = 10
	defaultPingDelay       = 500 * time.Millisecond
)

// Connect opens a Postgres connection, verifies it, and runs migrations.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}

	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := pingWithRetry(sqlDB, defaultPingAttempts, defaultPingDelay); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&ConnectedRepo{},
		&UserSettings{},
		&Review{},
		&Subscription{},
		&WorkerMetrics{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	if err := ensureIncrementReviewCountFunction(db); err != nil {
		return nil, fmt.Errorf("failed to install increment_review_count: %w", err)
	}

	return db, nil
}

// ensureIncrementReviewCountFunction installs the Postgres function the
// Store uses to atomically bump a subscription's monthly review counter.
func ensureIncrementReviewCountFunction(db *gorm.DB) error {
	return db.Exec(`
CREATE OR REPLACE FUNCTION increment_review_count(uid text) RETURNS void AS $$
BEGIN
	INSERT INTO subscriptions (user_id, plan, status, review_count_month, review_count_reset_at)
	VALUES (uid, 'free', 'active', 1, now())
	ON CONFLICT (user_id) DO UPDATE
	SET review_count_month = subscriptions.review_count_month + 1;
END;
$$ LANGUAGE plpgsql;
`).Error
}

func pingWithRetry(db *sql.DB, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := db.Ping(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		time.Sleep(delay)
		if delay < 5*time.Second {
			delay *= 2
		}
	}

	return fmt.Errorf("database ping failed after %d attempts: %w", attempts, lastErr)
}
