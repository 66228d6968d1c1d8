// Package details assembles a shop's full profile by fanning out reads
// across the profile tables, and serves the shop's release history.
package details

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/dynamo"
	"github.com/tapstamp/shop-review-backend/internal/logging"
	"github.com/tapstamp/shop-review-backend/internal/storage"
)

// RecordStore is the document-store capability set the aggregator needs
type RecordStore interface {
	Get(ctx context.Context, table string, key map[string]any) (map[string]any, error)
	Query(ctx context.Context, table, pkName string, pkValue any) ([]map[string]any, error)
}

// Presigner converts a storage URL into a time-limited access URL
type Presigner interface {
	Presign(ctx context.Context, raw string) (string, error)
}

// Service aggregates shop profile data
type Service struct {
	store     RecordStore
	tables    *config.TablesConfig
	presigner Presigner
	logger    zerolog.Logger
}

// NewService creates a detail aggregator
func NewService(store RecordStore, tables *config.TablesConfig, presigner Presigner) *Service {
	return &Service{
		store:     store,
		tables:    tables,
		presigner: presigner,
		logger:    logging.NewLogger("details"),
	}
}

// imageKeyHints marks map keys whose string values are treated as storage
// references even when the URL shape alone is ambiguous.
var imageKeyHints = []string{"image", "photo", "logo", "url"}

// FullDetails reads the shop's five profile tables concurrently and returns
// them as one document with every recognized storage URL replaced by a
// time-limited access URL. Tables with no row for the shop come back as
// empty objects, never as an error.
func (s *Service) FullDetails(ctx context.Context, shopID string) (map[string]any, error) {
	sections := []struct {
		name  string
		table string
	}{
		{"shop_contact", s.tables.ShopContact},
		{"business_info", s.tables.BusinessInfo},
		{"card_design", s.tables.CardDesign},
		{"customer_details", s.tables.CustomerDetails},
		{"stamp_data", s.tables.StampData},
	}

	result := make(map[string]any, len(sections))
	parts := make([]map[string]any, len(sections))
	errs := make([]error, len(sections))

	var wg sync.WaitGroup
	for i, sec := range sections {
		wg.Add(1)
		go func(i int, table string) {
			defer wg.Done()
			item, err := s.store.Get(ctx, table, map[string]any{"shop_id": shopID})
			if err != nil {
				if errors.Is(err, dynamo.ErrNotFound) {
					parts[i] = map[string]any{}
					return
				}
				errs[i] = fmt.Errorf("read %s: %w", table, err)
				return
			}
			parts[i] = item
		}(i, sec.table)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for i, sec := range sections {
		result[sec.name] = parts[i]
	}

	RewriteStrings(result, func(key, value string) (string, bool) {
		if !s.looksLikeStorageRef(key, value) {
			return "", false
		}
		signed, err := s.presigner.Presign(ctx, value)
		if err != nil {
			// Not a parseable object URL after all; leave it as-is
			return "", false
		}
		return signed, true
	})

	return result, nil
}

// looksLikeStorageRef decides whether a string leaf should be presigned,
// either by its URL shape or by its key name.
func (s *Service) looksLikeStorageRef(key, value string) bool {
	if _, _, err := storage.ParseURL(value); err == nil {
		return true
	}
	lower := strings.ToLower(key)
	for _, hint := range imageKeyHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// History returns every release-history entry for a shop, ascending by the
// table's datetime sort key, unfiltered.
func (s *Service) History(ctx context.Context, shopID string) ([]map[string]any, error) {
	entries, err := s.store.Query(ctx, s.tables.ReleaseHistory, "shop_id", shopID)
	if err != nil {
		return nil, fmt.Errorf("query release history: %w", err)
	}
	return entries, nil
}
