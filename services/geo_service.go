package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"places-server/models"
	"places-server/utils/errors"

	"github.com/redis/go-redis/v9"
)

const DefaultGeocoderURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocoder turns a postal address into coordinates. Implementations fail
// with errors.ErrGeocodeNotFound when the address matches nothing and with
// errors.ErrGeocodeUnavailable when the lookup itself could not be made.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (models.Location, error)
}

// GoogleGeocoder calls the Google Geocoding API. It never retries.
type GoogleGeocoder struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

func NewGoogleGeocoder(httpClient *http.Client, endpoint, apiKey string) *GoogleGeocoder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultGeocoderURL
	}
	return &GoogleGeocoder{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey}
}

type googleGeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location models.Location `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *GoogleGeocoder) Resolve(ctx context.Context, address string) (models.Location, error) {
	if strings.TrimSpace(address) == "" {
		return models.Location{}, errors.Validation("Address must not be empty.")
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return models.Location{}, errors.GeocodeUnavailable(err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.Location{}, errors.GeocodeUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, errors.GeocodeUnavailable(fmt.Errorf("geocoder responded with status %d", resp.StatusCode))
	}

	var body googleGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Location{}, errors.GeocodeUnavailable(fmt.Errorf("decode geocoder response: %w", err))
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return models.Location{}, errors.GeocodeNotFound(address)
	default:
		return models.Location{}, errors.GeocodeUnavailable(fmt.Errorf("geocoder status %s: %s", body.Status, body.ErrorMessage))
	}
	if len(body.Results) == 0 {
		return models.Location{}, errors.GeocodeNotFound(address)
	}
	return body.Results[0].Geometry.Location, nil
}

// CachedGeocoder memoises successful lookups in Redis keyed by the exact
// address string. Redis failures only cost a cache miss.
type CachedGeocoder struct {
	next        Geocoder
	redisClient redis.Cmdable
	ttl         time.Duration
}

func NewCachedGeocoder(next Geocoder, redisClient redis.Cmdable, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, redisClient: redisClient, ttl: ttl}
}

func geocodeKey(address string) string {
	return "geocode:" + address
}

func (c *CachedGeocoder) Resolve(ctx context.Context, address string) (models.Location, error) {
	key := geocodeKey(address)
	cached, err := c.redisClient.Get(ctx, key).Result()
	switch {
	case err == nil:
		var loc models.Location
		if err := json.Unmarshal([]byte(cached), &loc); err == nil {
			return loc, nil
		}
		log.Printf("Discarding unreadable geocode cache entry %q", key)
	case err != redis.Nil:
		log.Printf("Redis geocode cache lookup failed: %v", err)
	}

	loc, err := c.next.Resolve(ctx, address)
	if err != nil {
		return models.Location{}, err
	}

	locJSON, err := json.Marshal(loc)
	if err == nil {
		if err := c.redisClient.Set(ctx, key, locJSON, c.ttl).Err(); err != nil {
			log.Printf("Failed to cache geocode result for %q: %v", address, err)
		}
	}
	return loc, nil
}
