package details

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/dynamo"
)

var testTables = config.TablesConfig{
	ReleaseHistory:  "ReleaseHistory",
	ShopContact:     "shop_release_contact",
	BusinessInfo:    "businessinformations",
	CardDesign:      "Card_Design",
	CustomerDetails: "CustomerFacingDetails",
	StampData:       "StampData",
}

type fakeStore struct {
	items    map[string]map[string]any // table -> item for the shop
	history  []map[string]any
	getErr   error
	queryErr error
}

func (f *fakeStore) Get(_ context.Context, table string, _ map[string]any) (map[string]any, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[table]
	if !ok {
		return nil, dynamo.ErrNotFound
	}
	return item, nil
}

func (f *fakeStore) Query(_ context.Context, table, pkName string, pkValue any) ([]map[string]any, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.history, nil
}

type fakePresigner struct {
	calls []string
	err   error
}

func (f *fakePresigner) Presign(_ context.Context, raw string) (string, error) {
	f.calls = append(f.calls, raw)
	if f.err != nil {
		return "", f.err
	}
	return raw + "?X-Amz-Signature=abc123", nil
}

func TestFullDetails_AssemblesAllSections(t *testing.T) {
	store := &fakeStore{items: map[string]map[string]any{
		testTables.ShopContact:     {"shop_id": "S1", "email": "owner@example.com"},
		testTables.BusinessInfo:    {"shop_id": "S1", "uen": "202400001A"},
		testTables.CardDesign:      {"shop_id": "S1", "color": "red"},
		testTables.CustomerDetails: {"shop_id": "S1", "name": "Kopi Corner"},
		testTables.StampData:       {"shop_id": "S1", "stamps": float64(10)},
	}}
	svc := NewService(store, &testTables, &fakePresigner{})

	doc, err := svc.FullDetails(context.Background(), "S1")
	require.NoError(t, err)

	assert.Equal(t, "owner@example.com", doc["shop_contact"].(map[string]any)["email"])
	assert.Equal(t, "202400001A", doc["business_info"].(map[string]any)["uen"])
	assert.Equal(t, "red", doc["card_design"].(map[string]any)["color"])
	assert.Equal(t, "Kopi Corner", doc["customer_details"].(map[string]any)["name"])
	assert.Equal(t, float64(10), doc["stamp_data"].(map[string]any)["stamps"])
}

func TestFullDetails_MissingTablesBecomeEmptySections(t *testing.T) {
	store := &fakeStore{items: map[string]map[string]any{
		testTables.ShopContact: {"shop_id": "S1"},
	}}
	svc := NewService(store, &testTables, &fakePresigner{})

	doc, err := svc.FullDetails(context.Background(), "S1")
	require.NoError(t, err)

	require.Len(t, doc, 5)
	assert.Empty(t, doc["business_info"])
	assert.Empty(t, doc["stamp_data"])
}

func TestFullDetails_PresignsNestedImageURLs(t *testing.T) {
	store := &fakeStore{items: map[string]map[string]any{
		testTables.CustomerDetails: {
			"shop_id":      "S1",
			"banner_image": "https://shop-review-uploads-dev.s3.ap-southeast-1.amazonaws.com/S1/banner.png",
			"locations": []any{
				map[string]any{
					"location_id": "L1",
					"photo":       "https://shop-review-uploads-dev.s3.ap-southeast-1.amazonaws.com/S1/L1.png",
				},
			},
		},
	}}
	presigner := &fakePresigner{}
	svc := NewService(store, &testTables, presigner)

	doc, err := svc.FullDetails(context.Background(), "S1")
	require.NoError(t, err)

	customer := doc["customer_details"].(map[string]any)
	banner := customer["banner_image"].(string)
	assert.Contains(t, banner, "X-Amz-Signature")

	loc := customer["locations"].([]any)[0].(map[string]any)
	assert.Contains(t, loc["photo"].(string), "X-Amz-Signature")

	// Non-URL leaves never reach the presigner as successful rewrites
	assert.Equal(t, "S1", customer["shop_id"])
	assert.Len(t, presigner.calls, 2)
}

func TestFullDetails_PresignFailureLeavesValueUntouched(t *testing.T) {
	original := "https://shop-review-uploads-dev.s3.ap-southeast-1.amazonaws.com/S1/banner.png"
	store := &fakeStore{items: map[string]map[string]any{
		testTables.CustomerDetails: {"shop_id": "S1", "banner_image": original},
	}}
	svc := NewService(store, &testTables, &fakePresigner{err: errors.New("expired credentials")})

	doc, err := svc.FullDetails(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, original, doc["customer_details"].(map[string]any)["banner_image"])
}

func TestFullDetails_StoreErrorSurfaces(t *testing.T) {
	store := &fakeStore{getErr: errors.New("throttled")}
	svc := NewService(store, &testTables, &fakePresigner{})

	_, err := svc.FullDetails(context.Background(), "S1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "throttled")
}

func TestHistory(t *testing.T) {
	store := &fakeStore{history: []map[string]any{
		{"shop_id": "S1", "datetime": "2024-01-01T00:00:00Z", "event": "accepted"},
		{"shop_id": "S1", "datetime": "2024-01-02T00:00:00Z", "event": "published"},
	}}
	svc := NewService(store, &testTables, &fakePresigner{})

	entries, err := svc.History(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "accepted", entries[0]["event"])
	assert.Equal(t, "published", entries[1]["event"])
}

func TestHistory_QueryErrorSurfaces(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("table missing")}
	svc := NewService(store, &testTables, &fakePresigner{})

	_, err := svc.History(context.Background(), "S1")
	require.Error(t, err)
}
