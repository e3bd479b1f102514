// Package geo resolves free-text place names to coordinates. It holds the
// durable location cache, the backfill queue and the worker that drains it.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider errors. Implementations wrap these so callers can branch with errors.Is.
var (
	ErrNotFound    = errors.New("location not found")
	ErrRateLimited = errors.New("geocoding provider rate limited")
	ErrTimeout     = errors.New("geocoding provider timed out")
)

// MaxRetries is how many failed batch attempts a queue entry gets before it
// is no longer selected.
const MaxRetries = 3

// Key identifies a cached location: the place text as written plus the
// region it was mentioned in.
type Key struct {
	Text   string
	Region string
}

func (k Key) String() string {
	return k.Text + ", " + k.Region
}

// AddressComponent is one part of a structured address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name,omitempty"`
	Types     []string `json:"types,omitempty"`
}

// Metadata is optional provider detail attached to a record.
type Metadata struct {
	Types             []string           `json:"types,omitempty"`
	AddressComponents []AddressComponent `json:"address_components,omitempty"`
}

// LocationRecord is a resolved geocoding result.
type LocationRecord struct {
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	DisplayName string    `json:"display_name"`
	MapURL      string    `json:"map_url"`
	Provider    string    `json:"provider"`
	PlaceID     string    `json:"place_id,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MapURL returns a map link centred on the given coordinates.
func MapURL(lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%g,%g", lat, lng)
}

// Provider resolves place text within a region.
//
// Resolve returns ErrNotFound (wrapped) when the provider has no match.
// ResolveBatch returns one slot per input text, in order; a nil slot means
// no match. An error means the whole batch failed.
type Provider interface {
	Resolve(ctx context.Context, text, region string) (*LocationRecord, error)
	ResolveBatch(ctx context.Context, texts []string, region string) ([]*LocationRecord, error)
}

// Normalize trims place text. Empty results are not geocodable.
func Normalize(text string) string {
	return strings.TrimSpace(text)
}
