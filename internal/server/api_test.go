package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapstamp/shop-review-backend/internal/analytics"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/details"
	"github.com/tapstamp/shop-review-backend/internal/dynamo"
	"github.com/tapstamp/shop-review-backend/internal/live"
	"github.com/tapstamp/shop-review-backend/internal/review"
)

var testTables = config.TablesConfig{
	PendingReview:     "review_customer_release",
	Rejected:          "Rejected_Customer_Review",
	Accepted:          "Accepted_Customer_Review",
	ScheduledAccepted: "Scheduled_Accepted_Customer_Review",
	ReleaseHistory:    "ReleaseHistory",
	ShopContact:       "shop_release_contact",
	BusinessInfo:      "businessinformations",
	CardDesign:        "Card_Design",
	CustomerDetails:   "CustomerFacingDetails",
	StampData:         "StampData",
	DailyUniques:      "shop_daily_unique_customers",
}

// fakeStore satisfies the record-store interfaces of every service the
// server wires together, counting reads to assert validation short-circuits.
type fakeStore struct {
	tables map[string]map[string]map[string]any
	reads  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]map[string]map[string]any)}
}

func (f *fakeStore) seed(table string, item map[string]any) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]any)
	}
	id, _ := item["shop_id"].(string)
	f.tables[table][id] = item
}

func (f *fakeStore) Get(_ context.Context, table string, key map[string]any) (map[string]any, error) {
	f.reads++
	id, _ := key["shop_id"].(string)
	item, ok := f.tables[table][id]
	if !ok {
		return nil, dynamo.ErrNotFound
	}
	return item, nil
}

func (f *fakeStore) Query(_ context.Context, table, _ string, pkValue any) ([]map[string]any, error) {
	f.reads++
	var out []map[string]any
	for _, item := range f.tables[table] {
		if item["shop_id"] == pkValue {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) Put(_ context.Context, table string, item map[string]any) error {
	f.seed(table, item)
	return nil
}

func (f *fakeStore) Update(_ context.Context, table string, key, fields map[string]any) error {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]any)
	}
	id, _ := key["shop_id"].(string)
	item, ok := f.tables[table][id]
	if !ok {
		item = map[string]any{"shop_id": id}
	}
	for k, v := range fields {
		item[k] = v
	}
	f.tables[table][id] = item
	return nil
}

func (f *fakeStore) Delete(_ context.Context, table string, key map[string]any) error {
	id, _ := key["shop_id"].(string)
	delete(f.tables[table], id)
	return nil
}

func (f *fakeStore) Scan(_ context.Context, table string) ([]map[string]any, error) {
	f.reads++
	var out []map[string]any
	for _, item := range f.tables[table] {
		out = append(out, item)
	}
	return out, nil
}

type fakeGeocoder struct{}

func (fakeGeocoder) Locate(context.Context, string) (float64, float64, error) {
	return 1.3521, 103.8198, nil
}

type fakeRelocator struct{}

func (fakeRelocator) Relocate(_ context.Context, _, destKey string) (string, error) {
	return "https://tapstamp-live.s3.ap-southeast-1.amazonaws.com/" + destKey, nil
}

type fakePresigner struct{}

func (fakePresigner) Presign(_ context.Context, raw string) (string, error) {
	return raw + "?X-Amz-Signature=abc123", nil
}

type fakeLiveStore struct {
	details   map[string]*live.ShopDetails
	locations []live.LocationRow
}

func (f *fakeLiveStore) UpsertLocation(_ context.Context, row *live.LocationRow) error {
	f.locations = append(f.locations, *row)
	return nil
}

func (f *fakeLiveStore) UpsertDetails(_ context.Context, d *live.ShopDetails) error {
	if f.details == nil {
		f.details = make(map[string]*live.ShopDetails)
	}
	f.details[d.ShopID] = d
	return nil
}

func (f *fakeLiveStore) GetDetails(_ context.Context, shopID string) (*live.ShopDetails, error) {
	d, ok := f.details[shopID]
	if !ok {
		return nil, live.ErrNotFound
	}
	return d, nil
}

func (f *fakeLiveStore) Locations(_ context.Context, shopID string) ([]live.LocationRow, error) {
	var out []live.LocationRow
	for _, row := range f.locations {
		if row.ShopID == shopID {
			out = append(out, row)
		}
	}
	return out, nil
}

func testConfig(jwtSecret string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", Name: "shop-review-api"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		Tables: testTables,
		Auth:   config.AuthConfig{JWTSecret: jwtSecret},
	}
}

func newTestServer(t *testing.T, store *fakeStore, jwtSecret string) *APIServer {
	t.Helper()
	reviews := review.NewService(store, &testTables, fakeGeocoder{}, fakeRelocator{}, &fakeLiveStore{})
	detailSvc := details.NewService(store, &testTables, fakePresigner{})
	analyticsSvc := analytics.NewService(nil, store, &testTables)
	return NewAPIServer(testConfig(jwtSecret), reviews, detailSvc, analyticsSvc)
}

func doJSON(t *testing.T, srv *APIServer, method, path string, body any, opts ...func(*http.Request)) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestPendingReviews(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.PendingReview, map[string]any{"shop_id": "S1", "sent_datetime": "2024-01-01T00:00:00Z"})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/review-customer-release", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])
}

func TestPendingReviews_EmptyListNotNull(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/review-customer-release", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
	assert.NotNil(t, body["data"])
}

func TestReject_MissingShopIDShortCircuits(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/reject_customer_review",
		map[string]any{"reason": "duplicate"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "40001", errorCode(body))
	assert.Zero(t, store.reads)
}

func TestReject_NoPendingReview(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/reject_customer_review",
		map[string]any{"shop_id": "missing", "reason": "duplicate"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "40402", errorCode(body))
}

func TestReject_Success(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.PendingReview, map[string]any{"shop_id": "S1", "sent_datetime": "2024-01-01T00:00:00Z"})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/reject_customer_review",
		map[string]any{"shop_id": "S1", "reason": "duplicate"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "duplicate", data["reason"])
}

func TestAccept_Success(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.PendingReview, map[string]any{"shop_id": "S1", "sent_datetime": "2024-01-01T00:00:00Z"})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/acceptinvitation",
		map[string]any{"shop_id": "S1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, testTables.Accepted, data["table"])
}

func TestFullDetails_ShopIDFromQuery(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.ShopContact, map[string]any{"shop_id": "S1", "email": "owner@example.com"})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/fullIndividualCustomerDetails?shop_id=S1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	contact := data["shop_contact"].(map[string]any)
	assert.Equal(t, "owner@example.com", contact["email"])
}

func TestFullDetails_ShopIDFromBody(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, "")

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/fullIndividualCustomerDetails",
		map[string]any{"shop_id": "S1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFullDetails_MissingShopID(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/fullIndividualCustomerDetails", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "40001", errorCode(body))
	assert.Zero(t, store.reads)
}

func TestHistory_RequiresCookie(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/release-history", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "40001", errorCode(body))
	assert.Zero(t, store.reads)
}

func TestHistory_IgnoresQueryParameter(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, "")

	// The shop id comes from the cookie only
	rec, _ := doJSON(t, srv, http.MethodGet, "/api/release-history?shop_id=S1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_Success(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.ReleaseHistory, map[string]any{
		"shop_id": "S1", "datetime": "2024-01-01T00:00:00Z", "event": "accepted",
	})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/release-history", nil,
		func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "shop_id", Value: "S1"})
		})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestPublish_NoAcceptedShop(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/getAcceptedReviewsWithAddress",
		map[string]any{"shop_id": "S1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "40403", errorCode(body))
}

func TestPublish_MissingPostalCode(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.Accepted, map[string]any{"shop_id": "S1", "sent_datetime": "2024-01-01T00:00:00Z"})
	store.seed(testTables.CustomerDetails, map[string]any{
		"shop_id":   "S1",
		"locations": []any{map[string]any{"location_id": "L1"}},
	})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/getAcceptedReviewsWithAddress",
		map[string]any{"shop_id": "S1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "40001", errorCode(body))
}

func TestPublish_Success(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.Accepted, map[string]any{"shop_id": "S1", "sent_datetime": "2024-01-01T00:00:00Z"})
	store.seed(testTables.CustomerDetails, map[string]any{
		"shop_id": "S1",
		"name":    "Kopi Corner",
		"locations": []any{
			map[string]any{"location_id": "L1", "postal_code": "048616"},
		},
	})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/getAcceptedReviewsWithAddress",
		map[string]any{"shop_id": "S1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["published"])
	locations := data["locations"].([]any)
	require.Len(t, locations, 1)
	assert.Equal(t, "L1", locations[0].(map[string]any)["location_id"])
}

func TestLiveLocations_MissingShopID(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/live-locations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "40001", errorCode(body))
}

func TestLiveLocations_AfterPublish(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.Accepted, map[string]any{"shop_id": "S1", "sent_datetime": "2024-01-01T00:00:00Z"})
	store.seed(testTables.CustomerDetails, map[string]any{
		"shop_id": "S1",
		"locations": []any{
			map[string]any{"location_id": "L1", "postal_code": "048616"},
		},
	})
	srv := newTestServer(t, store, "")

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/getAcceptedReviewsWithAddress",
		map[string]any{"shop_id": "S1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/live-locations?shop_id=S1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestAnalyticsRollup_NotConfigured(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/analytics/rollup", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "50301", errorCode(body))
}

func TestAnalyticsRollup_RejectsBadDate(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "")

	rec, body := doJSON(t, srv, http.MethodPost, "/api/analytics/rollup",
		map[string]any{"date": "January 1st"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "40001", errorCode(body))
}

func TestDailyUniques(t *testing.T) {
	store := newFakeStore()
	store.seed(testTables.DailyUniques, map[string]any{
		"shop_id": "S1", "date": "2024-01-01", "unique_customers": float64(42),
	})
	srv := newTestServer(t, store, "")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/analytics/daily-unique-customers?shop_id=S1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "test-secret")

	rec, body := doJSON(t, srv, http.MethodGet, "/api/review-customer-release", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "40101", errorCode(body))
}

func TestAuth_ValidTokenAccepted(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"admin_id": "admin-1",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	rec, _ := doJSON(t, srv, http.MethodGet, "/api/review-customer-release", nil,
		func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signed)
		})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_ExpiredTokenRejected(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"admin_id": "admin-1",
		"exp":      time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/review-customer-release", nil,
		func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+signed)
		})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "40102", errorCode(body))
}

func TestHealth_BypassesAuth(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "test-secret")

	rec, _ := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
