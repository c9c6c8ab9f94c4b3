package service

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ConnectPostgres opens and pings a GORM connection pool.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int32) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(maxConns))
		sqlDB.SetMaxIdleConns(int(maxConns) / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.InfoContext(ctx, "postgres connected")
	return db, nil
}

// RunMigrations applies embedded SQL migrations in lexical order.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		slog.InfoContext(ctx, "migration applied", "migration", name)
	}
	return nil
}

type webhookEvent struct {
	ID          int64     `gorm:"primaryKey"`
	Provider    string    `gorm:"column:provider"`
	EventID     string    `gorm:"column:event_id"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (webhookEvent) TableName() string { return "webhook_events" }

// PostgresEventLedger relies on the unique (provider, event_id) index.
type PostgresEventLedger struct {
	db        *gorm.DB
	retention time.Duration
}

func NewPostgresEventLedger(db *gorm.DB, retention time.Duration) *PostgresEventLedger {
	return &PostgresEventLedger{db: db, retention: retention}
}

func (l *PostgresEventLedger) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	row := webhookEvent{Provider: provider, EventID: eventID, ProcessedAt: time.Now().UTC()}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return true, nil
}

func (l *PostgresEventLedger) Forget(ctx context.Context, provider, eventID string) error {
	err := l.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Delete(&webhookEvent{}).Error
	if err != nil {
		return fmt.Errorf("delete webhook event: %w", err)
	}
	return nil
}

// Prune removes marks older than the retention window.
func (l *PostgresEventLedger) Prune(ctx context.Context) (int64, error) {
	if l.retention <= 0 {
		return 0, nil
	}
	result := l.db.WithContext(ctx).
		Where("processed_at < ?", time.Now().UTC().Add(-l.retention)).
		Delete(&webhookEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune webhook events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
