// Package analytics rolls terminal activity up into per-shop daily unique
// customer counts.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/logging"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
)

// ErrNotConfigured is returned when the terminal-log database is absent
var ErrNotConfigured = errors.New("analytics database not configured")

// RecordStore is the document-store capability set used for rollup rows
type RecordStore interface {
	Put(ctx context.Context, table string, item map[string]any) error
	Query(ctx context.Context, table, pkName string, pkValue any) ([]map[string]any, error)
}

// DailyUniqueCount is one shop's unique-customer count for one day
type DailyUniqueCount struct {
	ShopID          string `json:"shop_id"`
	Date            string `json:"date"`
	UniqueCustomers int64  `json:"unique_customers"`
}

// Service computes daily unique customer rollups
type Service struct {
	db     *pgxpool.Pool
	store  RecordStore
	tables *config.TablesConfig
	logger zerolog.Logger
}

// NewService creates an analytics service. db may be nil when the terminal
// log database is not configured.
func NewService(db *pgxpool.Pool, store RecordStore, tables *config.TablesConfig) *Service {
	return &Service{
		db:     db,
		store:  store,
		tables: tables,
		logger: logging.NewLogger("analytics"),
	}
}

// RollupDay counts distinct customers per shop in terminal_logs for one
// calendar day (UTC) and upserts one row per shop into the rollup table,
// keyed (shop_id, date). Re-running a day overwrites the previous counts.
func (s *Service) RollupDay(ctx context.Context, day time.Time) ([]DailyUniqueCount, error) {
	if s.db == nil {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	defer func() { monitoring.RecordDBQuery("rollup_daily_uniques", time.Since(start)) }()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.Query(ctx, `
		SELECT shop_id, COUNT(DISTINCT customer_id)
		FROM terminal_logs
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY shop_id
		ORDER BY shop_id
	`, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("query terminal logs: %w", err)
	}
	defer rows.Close()

	dateKey := dayStart.Format("2006-01-02")
	var counts []DailyUniqueCount
	for rows.Next() {
		var c DailyUniqueCount
		if err := rows.Scan(&c.ShopID, &c.UniqueCustomers); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		c.Date = dateKey
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollup rows: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range counts {
		item := map[string]any{
			"shop_id":          c.ShopID,
			"date":             c.Date,
			"unique_customers": c.UniqueCustomers,
			"updated_at":       now,
		}
		if err := s.store.Put(ctx, s.tables.DailyUniques, item); err != nil {
			return nil, fmt.Errorf("write rollup for shop %s: %w", c.ShopID, err)
		}
	}

	s.logger.Info().
		Str("date", dateKey).
		Int("shops", len(counts)).
		Msg("Daily unique customers rolled up")

	return counts, nil
}

// DailyUniques returns a shop's rollup rows ascending by date
func (s *Service) DailyUniques(ctx context.Context, shopID string) ([]map[string]any, error) {
	rows, err := s.store.Query(ctx, s.tables.DailyUniques, "shop_id", shopID)
	if err != nil {
		return nil, fmt.Errorf("query daily uniques: %w", err)
	}
	return rows, nil
}
