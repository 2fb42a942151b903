package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
)

// DefaultRetentionDays is how long command records are kept
const DefaultRetentionDays = 90

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Command is one audited command line
type Command struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index;size:64" json:"sessionId"`
	OwnerID   string    `gorm:"index;size:128" json:"ownerId"`
	Command   string    `gorm:"type:text" json:"command"`
	Outcome   string    `gorm:"size:16" json:"outcome"`
	Mode      string    `gorm:"size:16" json:"mode"`
	ExitCode  int       `json:"exitCode"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// TableName pins the table name
func (Command) TableName() string { return "terminal_commands" }

// Store persists command records in SQLite. It satisfies session.Recorder.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	nowFn  func() time.Time
}

// Open creates the database file (and its directory) if needed, enables WAL,
// and migrates the schema
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	return New(db, logger)
}

// New wraps an open database and migrates the schema
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Command{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &Store{db: db, logger: logger, nowFn: time.Now}, nil
}

// RecordCommand stores one command record
func (s *Store) RecordCommand(ctx context.Context, rec session.CommandRecord) error {
	at := rec.At
	if at.IsZero() {
		at = s.nowFn()
	}
	row := Command{
		SessionID: rec.SessionID,
		OwnerID:   rec.OwnerID,
		Command:   rec.Command,
		Outcome:   rec.Outcome,
		Mode:      string(rec.Mode),
		ExitCode:  rec.ExitCode,
		CreatedAt: at,
	}

	// a torn-down session still gets its last command recorded
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&row).Error; err != nil {
		s.logger.Warn("failed to write audit record", zap.String("session_id", rec.SessionID), zap.Error(err))
		return err
	}
	return nil
}

// ListBySession returns a session's records oldest first. limit <= 0 means
// the default of 100; it is capped at 1000.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]Command, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var rows []Command
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByOwner returns how many commands an owner has submitted
func (s *Store) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Command{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}

// PurgeOlderThan deletes records older than days (DefaultRetentionDays when
// days <= 0) and returns the number removed
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := s.nowFn().AddDate(0, 0, -days)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Command{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.Info("purged audit records", zap.Int64("count", result.RowsAffected), zap.Int("days", days))
	}
	return result.RowsAffected, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
