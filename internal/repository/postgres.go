package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// ErrNotLineString is returned when a stored range geometry decodes to
// something other than a line string.
var ErrNotLineString = errors.New("range geometry is not a line string")

// FetchPendingAddresses retrieves stop addresses that still need resolving.
// It returns rows with no coordinates, fewer than 5 resolution attempts, and
// a non-empty address, oldest first, limited to the specified count.
func (r *Repository) FetchPendingAddresses(ctx context.Context, limit int) ([]models.RawAddress, error) {
	var pending []models.RawAddress
	query := `
		SELECT stop_id, address, COALESCE(zip_hint, '')
		FROM public.stops
		WHERE
			latitude IS NULL
			AND resolution_attempts < 5
			AND address IS NOT NULL AND address <> ''
		ORDER BY created_at ASC
		LIMIT $1;
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending stop addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw models.RawAddress
		if errScan := rows.Scan(&raw.ID, &raw.Address, &raw.ZipHint); errScan != nil {
			return nil, fmt.Errorf("failed to scan pending stop address: %w", errScan)
		}
		pending = append(pending, raw)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	return pending, nil
}

// SaveResolution stores the full resolution record as JSONB and, when the
// search succeeded, writes the coordinates back onto the stop row. Failed
// resolutions increment the attempt counter instead.
func (r *Repository) SaveResolution(ctx context.Context, record models.ResolutionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution record: %w", err)
	}

	insert := `
		INSERT INTO resolutions (stop_id, successful, record)
		VALUES ($1, $2, $3);
	`
	if _, err = r.db.Exec(ctx, insert, record.Raw.ID, record.Search.Successful, payload); err != nil {
		return fmt.Errorf("failed to insert resolution record: %w", err)
	}

	if record.Search.Successful && record.FinalResult != nil {
		update := `
			UPDATE stops
			SET latitude = $1, longitude = $2, resolution_error = NULL
			WHERE stop_id = $3;
		`
		_, err = r.db.Exec(ctx, update,
			record.FinalResult.Latitude, record.FinalResult.Longitude, record.Raw.ID)
		if err != nil {
			return fmt.Errorf("failed to update stop coordinates: %w", err)
		}
		return nil
	}

	fail := `
		UPDATE stops
		SET resolution_attempts = resolution_attempts + 1, resolution_error = $1
		WHERE stop_id = $2;
	`
	if _, err = r.db.Exec(ctx, fail, record.Search.FinalError, record.Raw.ID); err != nil {
		return fmt.Errorf("failed to update resolution error and attempt count: %w", err)
	}
	return nil
}

// DistinctStreetsInZip returns every distinct street name the range database
// knows within a ZIP code. Used as the fuzzy-matching candidate pool.
func (r *Repository) DistinctStreetsInZip(ctx context.Context, zip string) ([]string, error) {
	query := `
		SELECT DISTINCT street_name
		FROM street_ranges
		WHERE zip = $1
		ORDER BY street_name;
	`

	rows, err := r.db.Query(ctx, query, zip)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct streets: %w", err)
	}
	defer rows.Close()

	var streets []string
	for rows.Next() {
		var name string
		if errScan := rows.Scan(&name); errScan != nil {
			return nil, fmt.Errorf("failed to scan street name: %w", errScan)
		}
		streets = append(streets, name)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	return streets, nil
}

// RangesByStreet returns every address range in a ZIP whose street name
// matches the given ILIKE pattern, with the line geometry decoded from EWKB.
// Missing step values default to 1 (both sides addressed). Rows come back in
// a stable order so repeat queries see the same sequence.
func (r *Repository) RangesByStreet(ctx context.Context, zip, streetPattern string) ([]models.AddressRange, error) {
	query := `
		SELECT zip, street_name, start_number, end_number, COALESCE(step, 1), ST_AsEWKB(geom)
		FROM street_ranges
		WHERE zip = $1 AND street_name ILIKE $2
		ORDER BY street_name, LEAST(start_number, end_number), GREATEST(start_number, end_number);
	`

	rows, err := r.db.Query(ctx, query, zip, streetPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query street ranges: %w", err)
	}
	defer rows.Close()

	var ranges []models.AddressRange
	for rows.Next() {
		var (
			rng models.AddressRange
			raw []byte
		)
		if errScan := rows.Scan(&rng.Zip, &rng.StreetName, &rng.StartNumber, &rng.EndNumber, &rng.Step, &raw); errScan != nil {
			return nil, fmt.Errorf("failed to scan street range: %w", errScan)
		}
		if len(raw) > 0 {
			decoded, decErr := ewkb.Unmarshal(raw)
			if decErr != nil {
				return nil, fmt.Errorf("failed to decode range geometry: %w", decErr)
			}
			line, ok := decoded.(*geom.LineString)
			if !ok {
				return nil, fmt.Errorf("%w: got %T", ErrNotLineString, decoded)
			}
			rng.Geometry = line
		}
		ranges = append(ranges, rng)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	return ranges, nil
}

// LookupOverride checks the curated bad-address table for an exact match on
// the raw address string.
func (r *Repository) LookupOverride(ctx context.Context, raw string) (string, bool, error) {
	query := `SELECT corrected FROM address_overrides WHERE raw_address = $1;`

	var corrected string
	err := r.db.QueryRow(ctx, query, raw).Scan(&corrected)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query address override: %w", err)
	}
	return corrected, true, nil
}

// CachedRecord returns the stored resolution for a previously seen raw
// address, or nil when the cache has no entry. Keys are normalized so that
// casing and punctuation noise still hit.
func (r *Repository) CachedRecord(ctx context.Context, raw string) (*models.ResolutionRecord, error) {
	query := `SELECT record FROM resolution_cache WHERE cache_key = $1;`

	var payload []byte
	err := r.db.QueryRow(ctx, query, models.NormalizeText(raw)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query resolution cache: %w", err)
	}

	var record models.ResolutionRecord
	if err = json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached record: %w", err)
	}
	return &record, nil
}

// StoreRecord writes a resolution into the cache, replacing any previous
// entry for the same normalized key.
func (r *Repository) StoreRecord(ctx context.Context, raw string, record models.ResolutionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for cache: %w", err)
	}

	query := `
		INSERT INTO resolution_cache (cache_key, record)
		VALUES ($1, $2)
		ON CONFLICT (cache_key) DO UPDATE SET record = EXCLUDED.record;
	`
	if _, err = r.db.Exec(ctx, query, models.NormalizeText(raw), payload); err != nil {
		return fmt.Errorf("failed to store record in cache: %w", err)
	}
	return nil
}
