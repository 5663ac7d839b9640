package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hazard-reporter/internal/logger"
	"hazard-reporter/pkg/models"
)

// ReverseGeocoder turns a coordinate into a human-readable address.
// ok is false when no address could be found.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, coord models.GeoCoordinate) (address string, ok bool)
}

// AddressOrUnknown resolves an address and falls back to "Unknown location"
func AddressOrUnknown(ctx context.Context, g ReverseGeocoder, coord models.GeoCoordinate) string {
	if g == nil {
		return models.UnknownLocation
	}
	if address, ok := g.Reverse(ctx, coord); ok && address != "" {
		return address
	}
	return models.UnknownLocation
}

// NominatimGeocoder queries an OpenStreetMap Nominatim instance
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatimGeocoder creates a geocoder; Nominatim rejects requests without a User-Agent
func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		Road         string `json:"road"`
		Pedestrian   string `json:"pedestrian"`
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
	} `json:"address"`
}

func (r *nominatimResponse) street() string {
	return firstNonEmpty(r.Address.Road, r.Address.Pedestrian)
}

func (r *nominatimResponse) city() string {
	return firstNonEmpty(r.Address.City, r.Address.Town, r.Address.Village, r.Address.Municipality)
}

// Reverse returns "street, city" when both are known, else the full display name
func (g *NominatimGeocoder) Reverse(ctx context.Context, coord models.GeoCoordinate) (string, bool) {
	address, err := g.lookup(ctx, coord)
	if err != nil {
		logger.WithError(err).WithField("coordinate", coord.String()).Warn("Reverse geocoding failed")
		return "", false
	}
	return address, address != ""
}

func (g *NominatimGeocoder) lookup(ctx context.Context, coord models.GeoCoordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("geocoder: %s", body.Error)
	}

	street, city := body.street(), body.city()
	if street != "" && city != "" {
		return street + ", " + city, nil
	}
	return body.DisplayName, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
