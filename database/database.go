package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pnp-bridge/config"
	"pnp-bridge/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger adapts slog to be used as a GORM logger.
type gormLogger struct {
	slogger *slog.Logger
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return l
}
func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.InfoContext(ctx, msg, "gorm_data", data)
}
func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.WarnContext(ctx, msg, "gorm_data", data)
}
func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.ErrorContext(ctx, msg, "gorm_data", data)
}
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("latency", elapsed.String()),
		slog.String("sql", sql),
		slog.Int64("rows_affected", rows),
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		attrs = append(attrs, slog.Any("error", err))
		l.slogger.LogAttrs(ctx, slog.LevelError, "GORM Trace", attrs...)
	} else {
		l.slogger.LogAttrs(ctx, slog.LevelDebug, "GORM Trace", attrs...)
	}
}

// ExecutionRecord is the persisted form of one finished command execution.
type ExecutionRecord struct {
	ID           uint      `gorm:"primaryKey"`
	CommandID    string    `gorm:"index;size:64"`
	Operation    string    `gorm:"index;size:64"`
	Status       string    `gorm:"index;size:32"`
	Priority     int
	Parameters   string `gorm:"type:jsonb"`
	ErrorCode    string `gorm:"size:64"`
	ErrorMessage string
	DurationMs   int64
	SubmittedAt  time.Time
	FinishedAt   time.Time `gorm:"index"`
}

// SafetyRecord is the persisted form of one safety event.
type SafetyRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Kind       string    `gorm:"index;size:64"`
	Level      string    `gorm:"size:32"`
	Component  string    `gorm:"size:64"`
	Message    string
	Details    string    `gorm:"type:jsonb"`
	OccurredAt time.Time `gorm:"index"`
}

// Database persists execution and safety history to Postgres.
type Database struct {
	DB     *gorm.DB
	logger *slog.Logger
}

// NewDatabase connects and migrates the record tables.
func NewDatabase(cfg *config.Config, appLogger *slog.Logger) (*Database, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	dbLogger := appLogger.With("component", "database")
	dbLogger.Info("Connecting to database...", "host", cfg.DBHost, "port", cfg.DBPort, "user", cfg.DBUser)

	gormConfig := &gorm.Config{
		Logger: (&gormLogger{slogger: dbLogger}).LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	dbLogger.Info("Database connected successfully")

	if err := db.AutoMigrate(&ExecutionRecord{}, &SafetyRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{DB: db, logger: dbLogger}, nil
}

// SaveExecution records one finished command. Marshal failures on parameters
// degrade to an empty document rather than dropping the record.
func (d *Database) SaveExecution(ctx context.Context, cmd *models.Command, resp *models.Response) error {
	params := "{}"
	if raw, err := json.Marshal(cmd.Parameters); err == nil {
		params = string(raw)
	}
	record := &ExecutionRecord{
		CommandID:    cmd.ID,
		Operation:    string(cmd.Type),
		Status:       string(resp.Status),
		Priority:     cmd.Priority,
		Parameters:   params,
		ErrorCode:    string(resp.ErrorCode),
		ErrorMessage: resp.ErrorMessage,
		DurationMs:   resp.ExecutionTime.Milliseconds(),
		SubmittedAt:  cmd.SubmittedAt,
		FinishedAt:   resp.Timestamp,
	}
	return d.DB.WithContext(ctx).Create(record).Error
}

// SaveSafetyEvent records one safety event.
func (d *Database) SaveSafetyEvent(ctx context.Context, kind, level, component, message string, details map[string]interface{}) error {
	detailsJSON := "{}"
	if raw, err := json.Marshal(details); err == nil {
		detailsJSON = string(raw)
	}
	record := &SafetyRecord{
		Kind:       kind,
		Level:      level,
		Component:  component,
		Message:    message,
		Details:    detailsJSON,
		OccurredAt: time.Now(),
	}
	return d.DB.WithContext(ctx).Create(record).Error
}

// RecentExecutions returns the newest records first.
func (d *Database) RecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := d.DB.WithContext(ctx).
		Order("finished_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// FailedExecutions returns recent non-success records for diagnostics.
func (d *Database) FailedExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := d.DB.WithContext(ctx).
		Where("status <> ?", "success").
		Order("finished_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
