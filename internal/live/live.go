// Package live writes the public-facing projection of a published shop to
// the Postgres secondary store.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
)

// ErrNotFound is returned when a live row does not exist
var ErrNotFound = errors.New("live record not found")

// LocationRow is one published (shop x location) row, keyed by location
type LocationRow struct {
	LocationID   string  `json:"location_id"`
	ShopID       string  `json:"shop_id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	PostalCode   string  `json:"postal_code"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	BannerURL    string  `json:"banner_url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

// ShopDetails is the denormalized live snapshot of a shop, keyed by shop
type ShopDetails struct {
	ShopID          string         `json:"shop_id"`
	BusinessInfo    map[string]any `json:"business_info"`
	CardDesign      map[string]any `json:"card_design"`
	CustomerDetails map[string]any `json:"customer_details"`
	StampData       map[string]any `json:"stamp_data"`
	PublishedAt     time.Time      `json:"published_at"`
}

// Store persists live rows through a pgx pool
type Store struct {
	db *pgxpool.Pool
}

// New creates a Store
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// UpsertLocation writes one published location row. A collision on
// location_id overwrites the previous row.
func (s *Store) UpsertLocation(ctx context.Context, row *LocationRow) error {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("upsert_location", time.Since(start)) }()

	_, err := s.db.Exec(ctx, `
		INSERT INTO accepted_reviews_with_address
			(location_id, shop_id, name, address, postal_code, latitude, longitude, banner_url, thumbnail_url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (location_id) DO UPDATE SET
			shop_id = EXCLUDED.shop_id,
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			banner_url = EXCLUDED.banner_url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			published_at = now()
	`, row.LocationID, row.ShopID, row.Name, row.Address, row.PostalCode,
		row.Latitude, row.Longitude, row.BannerURL, row.ThumbnailURL)
	if err != nil {
		return fmt.Errorf("upsert location %s: %w", row.LocationID, err)
	}
	return nil
}

// UpsertDetails writes the live details row for a shop, superseding any
// prior snapshot.
func (s *Store) UpsertDetails(ctx context.Context, details *ShopDetails) error {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("upsert_details", time.Since(start)) }()

	_, err := s.db.Exec(ctx, `
		INSERT INTO live_shop_details
			(shop_id, business_info, card_design, customer_details, stamp_data, published_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (shop_id) DO UPDATE SET
			business_info = EXCLUDED.business_info,
			card_design = EXCLUDED.card_design,
			customer_details = EXCLUDED.customer_details,
			stamp_data = EXCLUDED.stamp_data,
			published_at = now()
	`, details.ShopID, details.BusinessInfo, details.CardDesign,
		details.CustomerDetails, details.StampData)
	if err != nil {
		return fmt.Errorf("upsert live details %s: %w", details.ShopID, err)
	}
	return nil
}

// GetDetails reads back the live details row for a shop
func (s *Store) GetDetails(ctx context.Context, shopID string) (*ShopDetails, error) {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("get_details", time.Since(start)) }()

	details := &ShopDetails{ShopID: shopID}
	err := s.db.QueryRow(ctx, `
		SELECT business_info, card_design, customer_details, stamp_data, published_at
		FROM live_shop_details
		WHERE shop_id = $1
	`, shopID).Scan(&details.BusinessInfo, &details.CardDesign,
		&details.CustomerDetails, &details.StampData, &details.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get live details %s: %w", shopID, err)
	}
	return details, nil
}

// Locations returns the published location rows for a shop
func (s *Store) Locations(ctx context.Context, shopID string) ([]LocationRow, error) {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("list_locations", time.Since(start)) }()

	rows, err := s.db.Query(ctx, `
		SELECT location_id, shop_id, name, address, postal_code, latitude, longitude, banner_url, thumbnail_url
		FROM accepted_reviews_with_address
		WHERE shop_id = $1
		ORDER BY location_id
	`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list locations %s: %w", shopID, err)
	}
	defer rows.Close()

	var out []LocationRow
	for rows.Next() {
		var r LocationRow
		if err := rows.Scan(&r.LocationID, &r.ShopID, &r.Name, &r.Address,
			&r.PostalCode, &r.Latitude, &r.Longitude, &r.BannerURL, &r.ThumbnailURL); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return out, nil
}
