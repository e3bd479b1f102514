package geo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evcraddock/trip-planner/internal/db"
)

// lookupChunk keeps IN lists under SQLite's bound-parameter limit.
const lookupChunk = 400

// Cache is the durable (text, region) → LocationRecord store.
type Cache struct {
	db  db.DBTX
	now func() time.Time
}

// NewCache creates a location cache.
func NewCache(conn db.DBTX) *Cache {
	return &Cache{db: conn, now: time.Now}
}

// Lookup returns the cached records for texts in region, keyed by the
// original text. Texts without a record are absent from the map.
func (c *Cache) Lookup(ctx context.Context, texts []string, region string) (map[string]*LocationRecord, error) {
	found := make(map[string]*LocationRecord, len(texts))
	for start := 0; start < len(texts); start += lookupChunk {
		end := min(start+lookupChunk, len(texts))
		if err := c.lookupChunk(ctx, texts[start:end], region, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (c *Cache) lookupChunk(ctx context.Context, texts []string, region string, found map[string]*LocationRecord) (err error) {
	if len(texts) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(texts)), ", ")
	query := fmt.Sprintf(`SELECT location, lat, lng, display_name, map_url, provider, place_id, metadata, updated_at
		FROM location_cache WHERE region = ? AND location IN (%s)`, placeholders)

	args := make([]any, 0, len(texts)+1)
	args = append(args, region)
	for _, t := range texts {
		args = append(args, t)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("looking up locations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var text string
		var rec LocationRecord
		var metadata sql.NullString
		if err := rows.Scan(&text, &rec.Lat, &rec.Lng, &rec.DisplayName, &rec.MapURL,
			&rec.Provider, &rec.PlaceID, &metadata, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("scanning location: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			rec.Metadata = &Metadata{}
			if err := json.Unmarshal([]byte(metadata.String), rec.Metadata); err != nil {
				return fmt.Errorf("decoding metadata for %q: %w", text, err)
			}
		}
		found[text] = &rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating locations: %w", err)
	}
	return nil
}

// Get returns the cached record for one key, or ErrNotFound.
func (c *Cache) Get(ctx context.Context, text, region string) (*LocationRecord, error) {
	found, err := c.Lookup(ctx, []string{text}, region)
	if err != nil {
		return nil, err
	}
	rec, ok := found[text]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, Key{Text: text, Region: region})
	}
	return rec, nil
}

// Put upserts the record for (text, region). The last write wins. A zero
// UpdatedAt is stamped with the current time.
func (c *Cache) Put(ctx context.Context, text, region string, rec *LocationRecord) error {
	if rec == nil {
		return errors.New("nil location record")
	}
	var metadata sql.NullString
	if rec.Metadata != nil {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = c.now()
	}

	_, err := c.db.ExecContext(ctx, `INSERT INTO location_cache
		(location, region, lat, lng, display_name, map_url, provider, place_id, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, region) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			display_name = excluded.display_name,
			map_url = excluded.map_url,
			provider = excluded.provider,
			place_id = excluded.place_id,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		text, region, rec.Lat, rec.Lng, rec.DisplayName, rec.MapURL, rec.Provider, rec.PlaceID, metadata, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("caching location %q: %w", text, err)
	}
	return nil
}
