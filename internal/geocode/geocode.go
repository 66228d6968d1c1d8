// Package geocode resolves postal codes to coordinates through an external
// address lookup service. Calls are bounded by a per-request timeout and a
// retry budget; results are cached in Redis keyed by postal code.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/logging"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
)

// Lookup errors
var (
	ErrNoResults        = errors.New("postal code not found")
	ErrRetriesExhausted = errors.New("geocoding retries exhausted")
)

const (
	cacheKeyPrefix = "geocode:"
	cacheTTL       = 24 * time.Hour

	// nonTimeoutRetryDelay is the fixed pause before the single retry
	// granted to non-timeout failures.
	nonTimeoutRetryDelay = time.Second
)

// Client resolves postal codes against a OneMap-style search endpoint
type Client struct {
	baseURL string
	http    *http.Client
	redis   *redis.Client
	retries int
	sleep   func(time.Duration)
	logger  zerolog.Logger
}

// New creates a geocoder client. The redis client is optional; nil disables
// the cache.
func New(cfg *config.GeocoderConfig, rdb *redis.Client) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		redis:   rdb,
		retries: cfg.Retries,
		sleep:   time.Sleep,
		logger:  logging.NewLogger("geocode"),
	}
}

type searchResponse struct {
	Found   int `json:"found"`
	Results []struct {
		Latitude  string `json:"LATITUDE"`
		Longitude string `json:"LONGITUDE"`
	} `json:"results"`
}

// Locate resolves a postal code to latitude/longitude. Timeouts are retried
// up to the configured budget with exponential backoff (2^attempt seconds);
// any other failure gets exactly one retry after a fixed one-second delay.
// Exhausting either budget is fatal for the caller's whole operation.
func (c *Client) Locate(ctx context.Context, postalCode string) (lat, lng float64, err error) {
	if lat, lng, ok := c.cacheGet(ctx, postalCode); ok {
		return lat, lng, nil
	}

	timeoutAttempt := 0
	nonTimeoutRetried := false
	for {
		lat, lng, err = c.lookup(ctx, postalCode)
		if err == nil {
			monitoring.RecordGeocodeRequest("ok")
			c.cacheSet(ctx, postalCode, lat, lng)
			return lat, lng, nil
		}

		if isTimeout(err) {
			if timeoutAttempt >= c.retries {
				monitoring.RecordGeocodeRequest("timeout")
				return 0, 0, fmt.Errorf("%w: %d timeouts for postal code %s: %v",
					ErrRetriesExhausted, timeoutAttempt, postalCode, err)
			}
			wait := time.Duration(1<<timeoutAttempt) * time.Second
			c.logger.Warn().
				Str("postal_code", postalCode).
				Int("attempt", timeoutAttempt).
				Dur("wait", wait).
				Msg("Geocode timeout, backing off")
			monitoring.RecordGeocodeRetry()
			c.sleep(wait)
			timeoutAttempt++
			continue
		}

		if nonTimeoutRetried {
			monitoring.RecordGeocodeRequest("error")
			return 0, 0, fmt.Errorf("%w: postal code %s: %v", ErrRetriesExhausted, postalCode, err)
		}
		nonTimeoutRetried = true
		c.logger.Warn().
			Err(err).
			Str("postal_code", postalCode).
			Msg("Geocode failed, retrying once")
		monitoring.RecordGeocodeRetry()
		c.sleep(nonTimeoutRetryDelay)
	}
}

// lookup performs a single search request
func (c *Client) lookup(ctx context.Context, postalCode string) (float64, float64, error) {
	start := time.Now()
	defer func() { monitoring.RecordGeocodeLatency(time.Since(start)) }()

	endpoint := fmt.Sprintf("%s/api/common/elastic/search?searchVal=%s&returnGeom=Y&getAddrDetails=Y",
		c.baseURL, url.QueryEscape(postalCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("decode response: %w", err)
	}
	if body.Found == 0 || len(body.Results) == 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoResults, postalCode)
	}

	lat, err := strconv.ParseFloat(body.Results[0].Latitude, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(body.Results[0].Longitude, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse longitude: %w", err)
	}
	return lat, lng, nil
}

func (c *Client) cacheGet(ctx context.Context, postalCode string) (float64, float64, bool) {
	if c.redis == nil {
		return 0, 0, false
	}

	val, err := c.redis.Get(ctx, cacheKeyPrefix+postalCode).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("Geocode cache read failed")
		}
		monitoring.RecordCacheMiss("geocode")
		return 0, 0, false
	}

	var lat, lng float64
	if _, err := fmt.Sscanf(val, "%f,%f", &lat, &lng); err != nil {
		monitoring.RecordCacheMiss("geocode")
		return 0, 0, false
	}
	monitoring.RecordCacheHit("geocode")
	return lat, lng, true
}

func (c *Client) cacheSet(ctx context.Context, postalCode string, lat, lng float64) {
	if c.redis == nil {
		return
	}
	val := fmt.Sprintf("%f,%f", lat, lng)
	if err := c.redis.Set(ctx, cacheKeyPrefix+postalCode, val, cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Geocode cache write failed")
	}
}

// isTimeout reports whether err is a timeout (deadline or network timeout)
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
