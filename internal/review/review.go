// Package review implements the state transitions of a shop's onboarding
// review: pending submissions are rejected or accepted, and accepted shops
// are published to the public live store. The engine owns the pending,
// rejected, accepted and release-history tables; the shop contact record is
// owned elsewhere and only has its review fields updated here.
package review

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/dynamo"
	"github.com/tapstamp/shop-review-backend/internal/live"
	"github.com/tapstamp/shop-review-backend/internal/logging"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
)

// Service errors
var (
	ErrReasonRequired      = errors.New("rejection reason is required")
	ErrNoPendingReview     = errors.New("no pending review for shop")
	ErrMissingSentDatetime = errors.New("pending review has no sent_datetime")
	ErrNoAcceptedReview    = errors.New("no accepted review for shop")
	ErrNoLocations         = errors.New("customer details has no locations")
	ErrMissingPostalCode   = errors.New("location is missing a postal code")
	ErrLiveNotConfigured   = errors.New("secondary store not configured")
)

// geocodePause is the enforced delay between successive geocode calls for
// one shop. The upstream service rate-limits per client; publishing must
// never issue concurrent lookups.
const geocodePause = time.Second

// RecordStore is the document-store capability set the engine depends on
type RecordStore interface {
	Get(ctx context.Context, table string, key map[string]any) (map[string]any, error)
	Query(ctx context.Context, table, pkName string, pkValue any) ([]map[string]any, error)
	Put(ctx context.Context, table string, item map[string]any) error
	Update(ctx context.Context, table string, key, fields map[string]any) error
	Delete(ctx context.Context, table string, key map[string]any) error
	Scan(ctx context.Context, table string) ([]map[string]any, error)
}

// Geocoder resolves a postal code to coordinates
type Geocoder interface {
	Locate(ctx context.Context, postalCode string) (lat, lng float64, err error)
}

// Relocator copies an object into the public bucket and returns its public
// URL. An empty URL with nil error means the object exists nowhere and the
// caller proceeds without it.
type Relocator interface {
	Relocate(ctx context.Context, srcURL, destKey string) (string, error)
}

// LiveStore is the secondary-store capability set used by publish
type LiveStore interface {
	UpsertLocation(ctx context.Context, row *live.LocationRow) error
	UpsertDetails(ctx context.Context, details *live.ShopDetails) error
	GetDetails(ctx context.Context, shopID string) (*live.ShopDetails, error)
	Locations(ctx context.Context, shopID string) ([]live.LocationRow, error)
}

// Service orchestrates review-state transitions for shops
type Service struct {
	store    RecordStore
	tables   *config.TablesConfig
	geocoder Geocoder
	locator  Relocator
	live     LiveStore // nil when the secondary store is not configured
	sleep    func(time.Duration)
	logger   zerolog.Logger
}

// NewService creates a review workflow service. liveStore may be nil when
// the secondary store is not configured; publish then stops after
// assembling the per-location result.
func NewService(store RecordStore, tables *config.TablesConfig, geocoder Geocoder, locator Relocator, liveStore LiveStore) *Service {
	return &Service{
		store:    store,
		tables:   tables,
		geocoder: geocoder,
		locator:  locator,
		live:     liveStore,
		sleep:    time.Sleep,
		logger:   logging.NewLogger("review"),
	}
}

// RejectResult reports a completed rejection
type RejectResult struct {
	ShopID       string `json:"shop_id"`
	SentDatetime string `json:"sent_datetime"`
	Reason       string `json:"reason"`
	RejectedAt   string `json:"rejected_at"`
}

// AcceptResult reports a completed acceptance, naming the destination table
type AcceptResult struct {
	ShopID       string `json:"shop_id"`
	SentDatetime string `json:"sent_datetime"`
	ReleaseType  string `json:"release_type"`
	Table        string `json:"table"`
}

// PublishedLocation is one geocoded location of a published shop
type PublishedLocation struct {
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

// PublishResult reports a publish run. Published is false when the
// secondary store is not configured and nothing was persisted.
type PublishResult struct {
	ShopID    string              `json:"shop_id"`
	Locations []PublishedLocation `json:"locations"`
	Published bool                `json:"published"`
}

// Pending returns every record awaiting review
func (s *Service) Pending(ctx context.Context) ([]map[string]any, error) {
	return s.store.Scan(ctx, s.tables.PendingReview)
}

// Reject moves a pending review to the rejected table. The rejected write
// is an idempotent upsert keyed by shop_id, so a retry after a mid-sequence
// failure is safe.
func (s *Service) Reject(ctx context.Context, shopID, reason string) (*RejectResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	_, sentDatetime, err := s.pendingRecord(ctx, shopID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rejected := map[string]any{
		"shop_id":       shopID,
		"sent_datetime": sentDatetime,
		"reason":        reason,
		"rejected_at":   now,
	}
	if err := s.store.Put(ctx, s.tables.Rejected, rejected); err != nil {
		return nil, fmt.Errorf("write rejected record: %w", err)
	}

	if err := s.store.Update(ctx, s.tables.ShopContact,
		map[string]any{"shop_id": shopID},
		map[string]any{"review_status": "rejected", "review_time": now},
	); err != nil {
		return nil, fmt.Errorf("update shop contact: %w", err)
	}

	if err := s.store.Delete(ctx, s.tables.PendingReview, map[string]any{"shop_id": shopID}); err != nil {
		return nil, fmt.Errorf("delete pending review: %w", err)
	}

	monitoring.RecordReviewDecision("rejected")
	s.logger.Info().Str("shop_id", shopID).Str("reason", reason).Msg("Review rejected")

	return &RejectResult{
		ShopID:       shopID,
		SentDatetime: sentDatetime,
		Reason:       reason,
		RejectedAt:   now,
	}, nil
}

// Accept moves a pending review into the accepted table chosen by the
// shop's release type and snapshots the profile tables into the release
// history. A prior rejection for the shop is cleaned up best-effort.
func (s *Service) Accept(ctx context.Context, shopID string) (*AcceptResult, error) {
	pending, sentDatetime, err := s.pendingRecord(ctx, shopID)
	if err != nil {
		return nil, err
	}

	contact, err := s.store.Get(ctx, s.tables.ShopContact, map[string]any{"shop_id": shopID})
	if err != nil {
		if !errors.Is(err, dynamo.ErrNotFound) {
			return nil, fmt.Errorf("read shop contact: %w", err)
		}
		contact = map[string]any{}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	accepted := Merge(pending, contact)
	accepted["accepted_at"] = now

	releaseType, _ := accepted["release_type"].(string)
	destTable := s.tables.Accepted
	if releaseType == "scheduled" {
		destTable = s.tables.ScheduledAccepted
	}

	if err := s.store.Put(ctx, destTable, accepted); err != nil {
		return nil, fmt.Errorf("write accepted record: %w", err)
	}

	snapshots, err := s.fetchSnapshots(ctx, shopID)
	if err != nil {
		return nil, err
	}

	history := map[string]any{
		"shop_id":          shopID,
		"datetime":         sentDatetime,
		"event":            "accepted",
		"record":           accepted,
		"business_info":    snapshots.businessInfo,
		"card_design":      snapshots.cardDesign,
		"customer_details": snapshots.customerDetails,
		"stamp_data":       snapshots.stampData,
	}
	if err := s.store.Put(ctx, s.tables.ReleaseHistory, history); err != nil {
		return nil, fmt.Errorf("write release history: %w", err)
	}

	if err := s.store.Update(ctx, s.tables.ShopContact,
		map[string]any{"shop_id": shopID},
		map[string]any{"review_status": "accepted", "review_time": now},
	); err != nil {
		return nil, fmt.Errorf("update shop contact: %w", err)
	}

	if err := s.store.Delete(ctx, s.tables.PendingReview, map[string]any{"shop_id": shopID}); err != nil {
		return nil, fmt.Errorf("delete pending review: %w", err)
	}

	// A later acceptance overturns any earlier rejection; losing this
	// cleanup must not fail the acceptance.
	s.swallow(shopID, "delete_rejected",
		s.store.Delete(ctx, s.tables.Rejected, map[string]any{"shop_id": shopID}))

	monitoring.RecordReviewDecision("accepted")
	s.logger.Info().
		Str("shop_id", shopID).
		Str("release_type", releaseType).
		Str("table", destTable).
		Msg("Review accepted")

	return &AcceptResult{
		ShopID:       shopID,
		SentDatetime: sentDatetime,
		ReleaseType:  releaseType,
		Table:        destTable,
	}, nil
}

// Publish geocodes every location of an accepted shop, moves its images to
// the public bucket and writes the live projection to the secondary store.
// All locations are validated before any write: a missing postal code
// aborts the whole run so a partial location set is never persisted.
func (s *Service) Publish(ctx context.Context, shopID string) (*PublishResult, error) {
	start := time.Now()
	defer func() { monitoring.RecordPublishDuration(time.Since(start)) }()

	acceptedTable := s.tables.Accepted
	_, err := s.store.Get(ctx, acceptedTable, map[string]any{"shop_id": shopID})
	if errors.Is(err, dynamo.ErrNotFound) {
		acceptedTable = s.tables.ScheduledAccepted
		_, err = s.store.Get(ctx, acceptedTable, map[string]any{"shop_id": shopID})
	}
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, ErrNoAcceptedReview
		}
		return nil, fmt.Errorf("read accepted record: %w", err)
	}

	customerDetails, err := s.store.Get(ctx, s.tables.CustomerDetails, map[string]any{"shop_id": shopID})
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, ErrNoLocations
		}
		return nil, fmt.Errorf("read customer details: %w", err)
	}

	locations := locationsOf(customerDetails)
	if len(locations) == 0 {
		return nil, ErrNoLocations
	}
	for _, loc := range locations {
		if postalOf(loc) == "" {
			return nil, fmt.Errorf("%w: location %s", ErrMissingPostalCode, idOf(loc))
		}
	}

	// Images are relocated once per shop; every location row reuses the
	// same public URLs.
	bannerURL := s.relocateImage(ctx, shopID, stringField(customerDetails, "banner_image"), "banner")
	thumbnailURL := s.relocateImage(ctx, shopID, stringField(customerDetails, "thumbnail_image"), "thumbnail")

	shopName := stringField(customerDetails, "name")

	published := make([]PublishedLocation, 0, len(locations))
	for i, loc := range locations {
		if i > 0 {
			// Upstream rate limit: exactly one geocode in flight, with a
			// pause between successive calls.
			s.sleep(geocodePause)
		}
		lat, lng, err := s.geocoder.Locate(ctx, postalOf(loc))
		if err != nil {
			return nil, fmt.Errorf("geocode location %s: %w", idOf(loc), err)
		}

		name := stringField(loc, "name")
		if name == "" {
			name = shopName
		}
		published = append(published, PublishedLocation{
			LocationID:   idOf(loc),
			ShopID:       shopID,
			Name:         name,
			Address:      stringField(loc, "address"),
			PostalCode:   postalOf(loc),
			Latitude:     lat,
			Longitude:    lng,
			BannerURL:    bannerURL,
			ThumbnailURL: thumbnailURL,
		})
	}

	if s.live == nil {
		s.logger.Warn().Str("shop_id", shopID).Msg("Secondary store not configured, skipping publish")
		return &PublishResult{ShopID: shopID, Locations: published, Published: false}, nil
	}

	for i := range published {
		row := live.LocationRow{
			LocationID:   published[i].LocationID,
			ShopID:       shopID,
			Name:         published[i].Name,
			Address:      published[i].Address,
			PostalCode:   published[i].PostalCode,
			Latitude:     published[i].Latitude,
			Longitude:    published[i].Longitude,
			BannerURL:    bannerURL,
			ThumbnailURL: thumbnailURL,
		}
		if err := s.live.UpsertLocation(ctx, &row); err != nil {
			return nil, fmt.Errorf("publish location %s: %w", row.LocationID, err)
		}
	}

	snapshots, err := s.fetchSnapshots(ctx, shopID)
	if err != nil {
		return nil, err
	}
	customerSnapshot := snapshots.customerDetails
	if bannerURL != "" {
		customerSnapshot["banner_image"] = bannerURL
	}
	if thumbnailURL != "" {
		customerSnapshot["thumbnail_image"] = thumbnailURL
	}

	details := &live.ShopDetails{
		ShopID:          shopID,
		BusinessInfo:    snapshots.businessInfo,
		CardDesign:      snapshots.cardDesign,
		CustomerDetails: customerSnapshot,
		StampData:       snapshots.stampData,
	}
	if err := s.live.UpsertDetails(ctx, details); err != nil {
		return nil, fmt.Errorf("write live details: %w", err)
	}

	s.swallow(shopID, "release_history", s.appendPublishHistory(ctx, shopID, details))

	if err := s.store.Delete(ctx, acceptedTable, map[string]any{"shop_id": shopID}); err != nil {
		return nil, fmt.Errorf("delete accepted record: %w", err)
	}

	monitoring.RecordReviewDecision("published")
	s.logger.Info().
		Str("shop_id", shopID).
		Int("locations", len(published)).
		Msg("Shop published")

	return &PublishResult{ShopID: shopID, Locations: published, Published: true}, nil
}

// PublishedLocations returns the live location rows of an already-published
// shop, straight from the secondary store.
func (s *Service) PublishedLocations(ctx context.Context, shopID string) ([]live.LocationRow, error) {
	if s.live == nil {
		return nil, ErrLiveNotConfigured
	}
	rows, err := s.live.Locations(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("list live locations: %w", err)
	}
	return rows, nil
}

// appendPublishHistory snapshots the just-published live projection into
// the release history. The live row is read back when possible; a read
// failure falls back to the locally assembled copy.
func (s *Service) appendPublishHistory(ctx context.Context, shopID string, local *live.ShopDetails) error {
	details := local
	if readBack, err := s.live.GetDetails(ctx, shopID); err == nil {
		details = readBack
	} else {
		logging.LogBestEffortFailure(err, shopID, "read_back_live_details")
	}

	history := map[string]any{
		"shop_id":          shopID,
		"datetime":         time.Now().UTC().Format(time.RFC3339),
		"event":            "published",
		"business_info":    details.BusinessInfo,
		"card_design":      details.CardDesign,
		"customer_details": details.CustomerDetails,
		"stamp_data":       details.StampData,
	}
	return s.store.Put(ctx, s.tables.ReleaseHistory, history)
}

// relocateImage moves one image to the public bucket, treating every
// failure as "publish without this image".
func (s *Service) relocateImage(ctx context.Context, shopID, srcURL, kind string) string {
	if srcURL == "" {
		return ""
	}
	destKey := fmt.Sprintf("live/%s/%s-%s", shopID, kind, path.Base(srcURL))
	url, err := s.locator.Relocate(ctx, srcURL, destKey)
	if err != nil {
		logging.LogBestEffortFailure(err, shopID, "relocate_"+kind)
		return ""
	}
	return url
}

// pendingRecord loads the pending review and validates its sent_datetime
func (s *Service) pendingRecord(ctx context.Context, shopID string) (map[string]any, string, error) {
	pending, err := s.store.Get(ctx, s.tables.PendingReview, map[string]any{"shop_id": shopID})
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, "", ErrNoPendingReview
		}
		return nil, "", fmt.Errorf("read pending review: %w", err)
	}

	sentDatetime, _ := pending["sent_datetime"].(string)
	if sentDatetime == "" {
		return nil, "", ErrMissingSentDatetime
	}
	return pending, sentDatetime, nil
}

// snapshots holds the four profile tables read for a shop
type snapshots struct {
	businessInfo    map[string]any
	cardDesign      map[string]any
	customerDetails map[string]any
	stampData       map[string]any
}

// fetchSnapshots reads the four profile tables concurrently. A missing row
// becomes an empty object, never an error.
func (s *Service) fetchSnapshots(ctx context.Context, shopID string) (*snapshots, error) {
	out := &snapshots{}
	targets := []struct {
		table string
		dest  *map[string]any
	}{
		{s.tables.BusinessInfo, &out.businessInfo},
		{s.tables.CardDesign, &out.cardDesign},
		{s.tables.CustomerDetails, &out.customerDetails},
		{s.tables.StampData, &out.stampData},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, t := range targets {
		wg.Add(1)
		go func(i int, table string, dest *map[string]any) {
			defer wg.Done()
			item, err := s.store.Get(ctx, table, map[string]any{"shop_id": shopID})
			if err != nil {
				if errors.Is(err, dynamo.ErrNotFound) {
					*dest = map[string]any{}
					return
				}
				errs[i] = fmt.Errorf("read %s: %w", table, err)
				return
			}
			*dest = item
		}(i, t.table, t.dest)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// swallow logs a best-effort step failure without surfacing it. Keeping the
// decision at the call site makes the non-atomic behavior auditable.
func (s *Service) swallow(shopID, step string, err error) {
	if err != nil {
		logging.LogBestEffortFailure(err, shopID, step)
	}
}

// locationsOf extracts the location list from a customer details item
func locationsOf(details map[string]any) []map[string]any {
	raw, _ := details["locations"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func postalOf(loc map[string]any) string {
	return strings.TrimSpace(stringField(loc, "postal_code"))
}

func idOf(loc map[string]any) string {
	return stringField(loc, "location_id")
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
