// Package mapbox resolves place text through the Mapbox geocoding APIs.
package mapbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evcraddock/trip-planner/internal/geo"
)

const (
	// ProviderID is recorded on every location this package resolves.
	ProviderID = "mapbox"

	defaultBaseURL = "https://api.mapbox.com"
	placesPath     = "/geocoding/v5/mapbox.places/"
	batchPath      = "/search/geocode/v6/batch"
	featureTypes   = "poi,address"
)

// Client implements geo.Provider against Mapbox.
type Client struct {
	httpClient  *http.Client
	accessToken string
	now         func() time.Time

	// Overridable for testing.
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a Mapbox client with the given access token.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	if accessToken == "" {
		return nil, errors.New("mapbox access token is required")
	}
	c := &Client{
		httpClient:  &http.Client{},
		accessToken: accessToken,
		now:         time.Now,
		baseURL:     defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ geo.Provider = (*Client)(nil)

func query(text, region string) string {
	if region == "" {
		return text
	}
	return text + ", " + region
}

// placesResponse is the v5 forward geocoding response.
type placesResponse struct {
	Features []struct {
		ID        string    `json:"id"`
		PlaceName string    `json:"place_name"`
		PlaceType []string  `json:"place_type"`
		Center    []float64 `json:"center"`
		Context   []struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			ShortCode string `json:"short_code"`
		} `json:"context"`
	} `json:"features"`
}

// Resolve looks up one text with the v5 forward geocoding API.
func (c *Client) Resolve(ctx context.Context, text, region string) (*geo.LocationRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("location text is required")
	}

	params := url.Values{
		"access_token": {c.accessToken},
		"types":        {featureTypes},
		"limit":        {"1"},
	}
	endpoint := c.baseURL + placesPath + url.PathEscape(query(text, region)) + ".json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var result placesResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	if len(result.Features) == 0 || len(result.Features[0].Center) < 2 {
		return nil, fmt.Errorf("%w: %s", geo.ErrNotFound, query(text, region))
	}

	f := result.Features[0]
	lng, lat := f.Center[0], f.Center[1]
	rec := &geo.LocationRecord{
		Lat:         lat,
		Lng:         lng,
		DisplayName: f.PlaceName,
		MapURL:      geo.MapURL(lat, lng),
		Provider:    ProviderID,
		PlaceID:     f.ID,
		UpdatedAt:   c.now().UTC(),
	}
	if len(f.PlaceType) > 0 || len(f.Context) > 0 {
		rec.Metadata = &geo.Metadata{Types: f.PlaceType}
		for _, part := range f.Context {
			kind, _, _ := strings.Cut(part.ID, ".")
			rec.Metadata.AddressComponents = append(rec.Metadata.AddressComponents, geo.AddressComponent{
				LongName:  part.Text,
				ShortName: part.ShortCode,
				Types:     []string{kind},
			})
		}
	}
	return rec, nil
}

// batchQuery is one entry of a v6 batch request.
type batchQuery struct {
	Q     string   `json:"q"`
	Types []string `json:"types"`
	Limit int      `json:"limit"`
}

// batchResponse is the v6 batch response. Results are positional.
type batchResponse struct {
	Batch []struct {
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				MapboxID    string `json:"mapbox_id"`
				FeatureType string `json:"feature_type"`
				Name        string `json:"name"`
				FullAddress string `json:"full_address"`
			} `json:"properties"`
		} `json:"features"`
	} `json:"batch"`
}

// ResolveBatch looks up texts in one v6 batch call. Slots without a match
// are nil.
func (c *Client) ResolveBatch(ctx context.Context, texts []string, region string) ([]*geo.LocationRecord, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	queries := make([]batchQuery, len(texts))
	for i, text := range texts {
		queries[i] = batchQuery{Q: query(text, region), Types: strings.Split(featureTypes, ","), Limit: 1}
	}
	body, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + batchPath + "?" + url.Values{"access_token": {c.accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result batchResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	if len(result.Batch) != len(texts) {
		return nil, fmt.Errorf("batch returned %d results for %d queries", len(result.Batch), len(texts))
	}

	now := c.now().UTC()
	records := make([]*geo.LocationRecord, len(texts))
	for i, r := range result.Batch {
		if len(r.Features) == 0 || len(r.Features[0].Geometry.Coordinates) < 2 {
			continue
		}
		f := r.Features[0]
		lng, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		name := f.Properties.FullAddress
		if name == "" {
			name = f.Properties.Name
		}
		placeID := f.Properties.MapboxID
		if placeID == "" {
			placeID = f.ID
		}
		records[i] = &geo.LocationRecord{
			Lat:         lat,
			Lng:         lng,
			DisplayName: name,
			MapURL:      geo.MapURL(lat, lng),
			Provider:    ProviderID,
			PlaceID:     placeID,
			UpdatedAt:   now,
		}
		if f.Properties.FeatureType != "" {
			records[i].Metadata = &geo.Metadata{Types: []string{f.Properties.FeatureType}}
		}
	}
	return records, nil
}

// do sends req and decodes a 200 response into out.
func (c *Client) do(req *http.Request, out any) (err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", geo.ErrTimeout, err)
		}
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing body: %w", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", geo.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		var apiErr struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
