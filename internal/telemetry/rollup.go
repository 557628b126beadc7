package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eleven-am/tutor-backend/internal/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HourlyRollup struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	Endpoint           string    `gorm:"not null;uniqueIndex:idx_rollup_key" json:"endpoint"`
	Method             string    `gorm:"not null;uniqueIndex:idx_rollup_key" json:"method"`
	HourStart          time.Time `gorm:"not null;uniqueIndex:idx_rollup_key;index" json:"hour_start"`
	Count              int64     `gorm:"not null" json:"count"`
	SuccessCount       int64     `gorm:"not null" json:"success_count"`
	ErrorCount         int64     `gorm:"not null" json:"error_count"`
	TotalRequestBytes  int64     `gorm:"not null" json:"total_request_bytes"`
	TotalResponseBytes int64     `gorm:"not null" json:"total_response_bytes"`
	TotalElapsedMs     int64     `gorm:"not null" json:"total_elapsed_ms"`
	MaxElapsedMs       int64     `gorm:"not null" json:"max_elapsed_ms"`
	MinElapsedMs       int64     `gorm:"not null" json:"min_elapsed_ms"`
	AvgElapsedMs       float64   `gorm:"not null" json:"avg_elapsed_ms"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (HourlyRollup) TableName() string {
	return "hourly_rollups"
}

func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

type RollupStore struct {
	db *gorm.DB
}

func NewRollupStore(db *gorm.DB) *RollupStore {
	return &RollupStore{db: db}
}

func (s *RollupStore) Migrate() error {
	return s.db.AutoMigrate(&HourlyRollup{})
}

// rollupConflictUpdates merges an incoming row into the stored one. The
// excluded row carries only this write's deltas, so counters add up and the
// average is derived from the merged sum and count.
var rollupConflictUpdates = clause.Set{
	{Column: clause.Column{Name: "count"}, Value: gorm.Expr("hourly_rollups.count + excluded.count")},
	{Column: clause.Column{Name: "success_count"}, Value: gorm.Expr("hourly_rollups.success_count + excluded.success_count")},
	{Column: clause.Column{Name: "error_count"}, Value: gorm.Expr("hourly_rollups.error_count + excluded.error_count")},
	{Column: clause.Column{Name: "total_request_bytes"}, Value: gorm.Expr("hourly_rollups.total_request_bytes + excluded.total_request_bytes")},
	{Column: clause.Column{Name: "total_response_bytes"}, Value: gorm.Expr("hourly_rollups.total_response_bytes + excluded.total_response_bytes")},
	{Column: clause.Column{Name: "total_elapsed_ms"}, Value: gorm.Expr("hourly_rollups.total_elapsed_ms + excluded.total_elapsed_ms")},
	{Column: clause.Column{Name: "max_elapsed_ms"}, Value: gorm.Expr("CASE WHEN excluded.max_elapsed_ms > hourly_rollups.max_elapsed_ms THEN excluded.max_elapsed_ms ELSE hourly_rollups.max_elapsed_ms END")},
	{Column: clause.Column{Name: "min_elapsed_ms"}, Value: gorm.Expr("CASE WHEN excluded.min_elapsed_ms < hourly_rollups.min_elapsed_ms THEN excluded.min_elapsed_ms ELSE hourly_rollups.min_elapsed_ms END")},
	{Column: clause.Column{Name: "avg_elapsed_ms"}, Value: gorm.Expr("CAST(hourly_rollups.total_elapsed_ms + excluded.total_elapsed_ms AS DOUBLE PRECISION) / (hourly_rollups.count + excluded.count)")},
	{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
}

// Upsert adds each bucket into the rollup row for (endpoint, method, hour).
func (s *RollupStore) Upsert(ctx context.Context, hour time.Time, buckets []*Bucket) error {
	if len(buckets) == 0 {
		return nil
	}

	hour = HourStart(hour)
	rows := make([]*HourlyRollup, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, &HourlyRollup{
			ID:                 shared.NewID("rollup_"),
			Endpoint:           b.Key.Endpoint,
			Method:             b.Key.Method,
			HourStart:          hour,
			Count:              b.Count,
			SuccessCount:       b.SuccessCount,
			ErrorCount:         b.ErrorCount,
			TotalRequestBytes:  b.TotalRequestBytes,
			TotalResponseBytes: b.TotalResponseBytes,
			TotalElapsedMs:     b.TotalElapsedMs,
			MaxElapsedMs:       b.MaxElapsedMs,
			MinElapsedMs:       b.MinElapsedMs,
			AvgElapsedMs:       b.AvgElapsedMs(),
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "endpoint"}, {Name: "method"}, {Name: "hour_start"}},
				DoUpdates: rollupConflictUpdates,
			}).Create(row).Error
			if err != nil {
				return fmt.Errorf("upsert rollup %s %s: %w", row.Method, row.Endpoint, err)
			}
		}
		return nil
	})
}

func (s *RollupStore) Get(ctx context.Context, key DimensionKey, hour time.Time) (*HourlyRollup, error) {
	var r HourlyRollup
	err := s.db.WithContext(ctx).
		Where("endpoint = ? AND method = ? AND hour_start = ?", key.Endpoint, key.Method, HourStart(hour)).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RollupStore) ListSince(ctx context.Context, since time.Time, limit int) ([]*HourlyRollup, error) {
	var rollups []*HourlyRollup
	q := s.db.WithContext(ctx).
		Where("hour_start >= ?", HourStart(since)).
		Order("hour_start DESC").
		Order("endpoint ASC").
		Order("method ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rollups).Error
	return rollups, err
}
