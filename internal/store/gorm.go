package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/triagestack/triage-engine/internal/models"
)

// OpenGorm opens a gorm handle for the configured driver. sqlite is the
// default so single-node deployments need no external database.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "triage.db"
		} else {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch driver {
	case "sqlite":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	raw := strings.TrimSpace(dsn)
	if raw == "" || strings.EqualFold(raw, ":memory:") || strings.HasPrefix(strings.ToLower(raw), "file:") {
		return nil
	}
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	dir := filepath.Dir(raw)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite db dir: %w", err)
	}
	return nil
}

// sessionRow is the persisted form of a completed session: summary columns
// for querying plus the full result serialized as JSON.
type sessionRow struct {
	ID                uint   `gorm:"primaryKey"`
	SessionID         string `gorm:"uniqueIndex;size:64"`
	ScenarioID        string `gorm:"index;size:128"`
	FinalTier         string `gorm:"size:16"`
	Success           bool
	Resolution        string
	Confidence        float64
	TotalLatencyMs    int64
	TotalTokensInput  int
	TotalTokensOutput int
	TotalCostUSD      float64
	ResultJSON        string
	CreatedAt         time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "triage_sessions" }

type tierMetricRow struct {
	ID           uint   `gorm:"primaryKey"`
	SessionID    string `gorm:"index;size:64"`
	ScenarioID   string `gorm:"size:128"`
	Tier         string `gorm:"index;size:16"`
	LatencyMs    int64
	TokensInput  int
	TokensOutput int
	CostUSD      float64
	RecordedAt   time.Time `gorm:"index"`
}

func (tierMetricRow) TableName() string { return "tier_metrics" }

// GormStore persists sessions and tier metrics through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs migrations.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open triage store: %w", err)
	}
	s := &GormStore{db: gormDB}
	if err := s.db.AutoMigrate(&sessionRow{}, &tierMetricRow{}); err != nil {
		return nil, fmt.Errorf("migrate triage store: %w", err)
	}
	return s, nil
}

func (s *GormStore) SaveSession(ctx context.Context, result models.ProcessingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	row := sessionRow{
		SessionID:         result.SessionID,
		ScenarioID:        result.ScenarioID,
		FinalTier:         string(result.FinalTier),
		Success:           result.Success,
		Resolution:        result.Resolution,
		Confidence:        result.Confidence,
		TotalLatencyMs:    result.TotalLatencyMs,
		TotalTokensInput:  result.TotalTokensInput,
		TotalTokensOutput: result.TotalTokensOutput,
		TotalCostUSD:      result.TotalCostUSD,
		ResultJSON:        string(payload),
		CreatedAt:         result.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (models.ProcessingResult, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ProcessingResult{}, ErrNotFound
		}
		return models.ProcessingResult{}, fmt.Errorf("get session: %w", err)
	}
	return row.toResult()
}

func (s *GormStore) ListSessions(ctx context.Context, limit int) ([]models.ProcessingResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []sessionRow
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	results := make([]models.ProcessingResult, 0, len(rows))
	for _, row := range rows {
		result, err := row.toResult()
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r sessionRow) toResult() (models.ProcessingResult, error) {
	var result models.ProcessingResult
	if err := json.Unmarshal([]byte(r.ResultJSON), &result); err != nil {
		return models.ProcessingResult{}, fmt.Errorf("unmarshal session %s: %w", r.SessionID, err)
	}
	return result, nil
}

func (s *GormStore) RecordTierMetric(ctx context.Context, metric models.TierMetric) error {
	row := tierMetricRow{
		SessionID:    metric.SessionID,
		ScenarioID:   metric.ScenarioID,
		Tier:         string(metric.Tier),
		LatencyMs:    metric.LatencyMs,
		TokensInput:  metric.TokensInput,
		TokensOutput: metric.TokensOutput,
		CostUSD:      metric.CostUSD,
		RecordedAt:   metric.RecordedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record tier metric: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
