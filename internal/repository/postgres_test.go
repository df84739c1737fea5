package repository_test

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/oceanstate-routing/pinpoint/internal/models"
	"github.com/oceanstate-routing/pinpoint/internal/repository"
)

const fetchPendingQuery = `
		SELECT stop_id, address, COALESCE(zip_hint, '')
		FROM public.stops
		WHERE
			latitude IS NULL
			AND resolution_attempts < 5
			AND address IS NOT NULL AND address <> ''
		ORDER BY created_at ASC
		LIMIT $1;
	`

func TestFetchPendingAddresses(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()
	limit := 10

	t.Run("error - query pending addresses", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery(regexp.QuoteMeta(fetchPendingQuery)).
			WithArgs(limit).
			WillReturnError(assert.AnError)

		pending, err := repo.FetchPendingAddresses(ctx, limit)

		require.Nil(t, pending)
		require.Error(t, err)
		require.ErrorContains(t, err, "failed to query pending stop addresses")
		require.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - scan pending address", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery(regexp.QuoteMeta(fetchPendingQuery)).
			WithArgs(limit).
			WillReturnRows(
				pgxmock.NewRows([]string{"stop_id", "address", "zip_hint"}).
					AddRow("invalid_id", "5 Marie Dr", ""),
			)

		pending, err := repo.FetchPendingAddresses(ctx, limit)

		require.Nil(t, pending)
		require.Error(t, err)
		require.ErrorContains(t, err, "failed to scan pending stop address")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - fetch pending addresses", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery(regexp.QuoteMeta(fetchPendingQuery)).
			WithArgs(limit).
			WillReturnRows(
				pgxmock.NewRows([]string{"stop_id", "address", "zip_hint"}).
					AddRow(123, "5 MARIE DR, BRISTOL, 2809", "2809"),
			)

		pending, err := repo.FetchPendingAddresses(ctx, limit)

		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, 123, pending[0].ID)
		assert.Equal(t, "5 MARIE DR, BRISTOL, 2809", pending[0].Address)
		assert.Equal(t, "2809", pending[0].ZipHint)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveResolution(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()

	successRecord := models.ResolutionRecord{
		Raw: models.RawAddress{ID: 7, Address: "5 Marie Dr, Bristol, RI 02809"},
		Search: models.SearchMetadata{
			AcceptedMethod: models.MethodNumberStreetZip,
			Successful:     true,
		},
		FinalResult: &models.CandidateResult{Latitude: 41.6771, Longitude: -71.2662},
	}

	t.Run("success - stores record and coordinates", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)
		payload, err := json.Marshal(successRecord)
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO resolutions").
			WithArgs(7, true, payload).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE stops").
			WithArgs(41.6771, -71.2662, 7).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.SaveResolution(ctx, successRecord))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure records increment the attempt counter", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)
		failed := models.ResolutionRecord{
			Raw: models.RawAddress{ID: 8, Address: "nowhere"},
			Search: models.SearchMetadata{
				AcceptedMethod: models.MethodNoneAccepted,
				FinalError:     "no accepted result after all search methods",
			},
		}
		payload, err := json.Marshal(failed)
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO resolutions").
			WithArgs(8, false, payload).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE stops").
			WithArgs("no accepted result after all search methods", 8).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.SaveResolution(ctx, failed))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - insert fails", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)
		payload, err := json.Marshal(successRecord)
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO resolutions").
			WithArgs(7, true, payload).
			WillReturnError(assert.AnError)

		err = repo.SaveResolution(ctx, successRecord)

		require.Error(t, err)
		require.ErrorContains(t, err, "failed to insert resolution record")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDistinctStreetsInZip(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()

	t.Run("success - returns street names", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT DISTINCT street_name").
			WithArgs("02809").
			WillReturnRows(
				pgxmock.NewRows([]string{"street_name"}).
					AddRow("Hope Street").
					AddRow("Marie Drive"),
			)

		streets, err := repo.DistinctStreetsInZip(ctx, "02809")

		require.NoError(t, err)
		assert.Equal(t, []string{"Hope Street", "Marie Drive"}, streets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - query fails", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT DISTINCT street_name").
			WithArgs("02809").
			WillReturnError(assert.AnError)

		streets, err := repo.DistinctStreetsInZip(ctx, "02809")

		require.Nil(t, streets)
		require.ErrorContains(t, err, "failed to query distinct streets")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRangesByStreet(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()

	line := geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{
		{-71.70, 41.90}, {-71.68, 41.90},
	})
	line.SetSRID(4326)
	rawGeom, err := ewkb.Marshal(line, binary.LittleEndian)
	require.NoError(t, err)

	t.Run("success - decodes EWKB geometry", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT zip, street_name, start_number, end_number").
			WithArgs("02814", "%Gazza%").
			WillReturnRows(
				pgxmock.NewRows([]string{"zip", "street_name", "start_number", "end_number", "step", "geom"}).
					AddRow("02814", "Gazza Road", 101, 149, 1, rawGeom),
			)

		ranges, err := repo.RangesByStreet(ctx, "02814", "%Gazza%")

		require.NoError(t, err)
		require.Len(t, ranges, 1)
		rng := ranges[0]
		assert.Equal(t, "Gazza Road", rng.StreetName)
		assert.Equal(t, 101, rng.StartNumber)
		assert.Equal(t, 149, rng.EndNumber)
		assert.Equal(t, 1, rng.Step)
		require.NotNil(t, rng.Geometry)
		assert.Equal(t, 2, rng.Geometry.NumCoords())
		assert.InDelta(t, -71.70, rng.Geometry.Coord(0).X(), 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error - geometry is not a line string", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		point := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{-71.70, 41.90})
		rawPoint, err := ewkb.Marshal(point, binary.LittleEndian)
		require.NoError(t, err)

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT zip, street_name, start_number, end_number").
			WithArgs("02814", "%Gazza%").
			WillReturnRows(
				pgxmock.NewRows([]string{"zip", "street_name", "start_number", "end_number", "step", "geom"}).
					AddRow("02814", "Gazza Road", 101, 149, 1, rawPoint),
			)

		ranges, err := repo.RangesByStreet(ctx, "02814", "%Gazza%")

		require.Nil(t, ranges)
		require.ErrorIs(t, err, repository.ErrNotLineString)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT zip, street_name, start_number, end_number").
			WithArgs("02814", "%Nowhere%").
			WillReturnRows(
				pgxmock.NewRows([]string{"zip", "street_name", "start_number", "end_number", "step", "geom"}),
			)

		ranges, err := repo.RangesByStreet(ctx, "02814", "%Nowhere%")

		require.NoError(t, err)
		assert.Empty(t, ranges)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLookupOverride(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()

	t.Run("hit returns the corrected address", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT corrected FROM address_overrides").
			WithArgs("garbage entry").
			WillReturnRows(pgxmock.NewRows([]string{"corrected"}).AddRow("12 Hope St, Warren, RI 02885"))

		corrected, ok, err := repo.LookupOverride(ctx, "garbage entry")

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "12 Hope St, Warren, RI 02885", corrected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss is not an error", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT corrected FROM address_overrides").
			WithArgs("clean entry").
			WillReturnRows(pgxmock.NewRows([]string{"corrected"}))

		corrected, ok, err := repo.LookupOverride(ctx, "clean entry")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, corrected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResolutionCache(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	ctx := t.Context()

	record := models.ResolutionRecord{
		Raw:    models.RawAddress{ID: 3, Address: "5 Marie Dr, Bristol, RI 02809"},
		Search: models.SearchMetadata{Successful: true, AcceptedMethod: models.MethodFreeText},
	}

	t.Run("store uses the normalized key", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)
		payload, err := json.Marshal(record)
		require.NoError(t, err)

		mock.ExpectExec("INSERT INTO resolution_cache").
			WithArgs("5 marie dr bristol ri 02809", payload).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.StoreRecord(ctx, "5 Marie Dr, Bristol, RI 02809", record))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hit round-trips the record", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)
		payload, err := json.Marshal(record)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT record FROM resolution_cache").
			WithArgs("5 marie dr bristol ri 02809").
			WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(payload))

		cached, err := repo.CachedRecord(ctx, "5 Marie Dr, Bristol, RI 02809")

		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, record.Raw.ID, cached.Raw.ID)
		assert.True(t, cached.Search.Successful)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := repository.NewRepository(mock, logger)

		mock.ExpectQuery("SELECT record FROM resolution_cache").
			WithArgs("never seen").
			WillReturnRows(pgxmock.NewRows([]string{"record"}))

		cached, err := repo.CachedRecord(ctx, "never seen")

		require.NoError(t, err)
		assert.Nil(t, cached)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
