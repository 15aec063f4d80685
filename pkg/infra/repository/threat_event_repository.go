package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/types"
)

// ThreatEventModel is the persisted shape of a threat event. Details
// are serialized to JSON text to keep the schema flat.
type ThreatEventModel struct {
	ID        string    `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	Type      string
	Severity  string
	IP        string `gorm:"index"`
	UserAgent string
	Email     string `gorm:"index"`
	Details   string `gorm:"type:text"`
}

func (ThreatEventModel) TableName() string {
	return "threat_events"
}

// ThreatEventRepository persists threat events. It implements the
// analyzer's EventSink; persistence is an optional integrator hook,
// the in-memory history works without it.
type ThreatEventRepository struct {
	db *gorm.DB
}

func NewThreatEventRepository(db *gorm.DB) *ThreatEventRepository {
	return &ThreatEventRepository{db: db}
}

// NewPostgresDB opens the configured postgres database and migrates
// the threat event schema.
func NewPostgresDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&ThreatEventModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate threat event schema: %w", err)
	}
	return db, nil
}

func (r *ThreatEventRepository) SaveEvent(ctx context.Context, event *types.ThreatEvent) error {
	details := ""
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode event details: %w", err)
		}
		details = string(raw)
	}

	model := ThreatEventModel{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		Type:      string(event.Type),
		Severity:  string(event.Severity),
		IP:        event.IP,
		UserAgent: event.UserAgent,
		Email:     event.Email,
		Details:   details,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to persist threat event: %w", err)
	}
	return nil
}

// DeleteOlderThan removes persisted events older than the cutoff and
// returns how many were deleted. Pairs with the analyzer's in-memory
// sweep.
func (r *ThreatEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&ThreatEventModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune threat events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
