package interpolator_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/oceanstate-routing/pinpoint/internal/interpolator"
	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// fakeRangeSource returns a fixed set of ranges regardless of the pattern.
type fakeRangeSource struct {
	ranges []models.AddressRange
	err    error
}

func (f *fakeRangeSource) RangesByStreet(_ context.Context, _, _ string) ([]models.AddressRange, error) {
	return f.ranges, f.err
}

// line builds a west-to-east line string from (lon, lat) pairs.
func line(coords ...geom.Coord) *geom.LineString {
	return geom.NewLineString(geom.XY).MustSetCoords(coords)
}

func newInterpolator(ranges []models.AddressRange) *interpolator.Interpolator {
	return interpolator.New(slog.Default(), &fakeRangeSource{ranges: ranges})
}

func TestLocate_WithinRange(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("midpoint house number lands mid-line", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{{
			Zip: "02809", StreetName: "Marie Drive",
			StartNumber: 10, EndNumber: 20, Step: 1,
			Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
		}})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "15")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, -71.25, res.Longitude, 1e-6)
		assert.InDelta(t, 41.60, res.Latitude, 1e-6)
		assert.Equal(t, models.SourceInterpolated, res.SourceMethod)
		assert.Contains(t, res.DisplayName, "(interpolated)")
	})

	t.Run("fraction is 0.5 when start equals end", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{{
			Zip: "02809", StreetName: "Marie Drive",
			StartNumber: 12, EndNumber: 12, Step: 1,
			Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
		}})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "12")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, -71.25, res.Longitude, 1e-6)
	})

	t.Run("start endpoint maps to fraction zero", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{{
			Zip: "02809", StreetName: "Marie Drive",
			StartNumber: 10, EndNumber: 20, Step: 1,
			Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
		}})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "10")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, -71.30, res.Longitude, 1e-6)
	})

	t.Run("descending range keeps orientation", func(t *testing.T) {
		t.Parallel()
		// Geometry runs from the high-numbered end to the low-numbered end.
		ip := newInterpolator([]models.AddressRange{{
			Zip: "02809", StreetName: "Marie Drive",
			StartNumber: 20, EndNumber: 10, Step: 1,
			Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
		}})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "10")

		require.NoError(t, err)
		require.NotNil(t, res)
		// House 10 is the low end, which the stored line reaches last.
		assert.InDelta(t, -71.20, res.Longitude, 1e-6)
	})

	t.Run("narrowest containing interval wins", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{
			{
				Zip: "02809", StreetName: "Marie Drive",
				StartNumber: 0, EndNumber: 100, Step: 1,
				Geometry: line(geom.Coord{-71.40, 41.60}, geom.Coord{-71.00, 41.60}),
			},
			{
				Zip: "02809", StreetName: "Marie Drive",
				StartNumber: 10, EndNumber: 20, Step: 1,
				Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
			},
		})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "15")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, -71.25, res.Longitude, 1e-6)
	})
}

func TestLocate_BetweenRanges(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("house 179 on Gazza lands between bracketing ranges", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{
			{
				Zip: "02814", StreetName: "Gazza Road",
				StartNumber: 101, EndNumber: 149, Step: 1,
				Geometry: line(geom.Coord{-71.70, 41.90}, geom.Coord{-71.68, 41.90}),
			},
			{
				Zip: "02814", StreetName: "Gazza Road",
				StartNumber: 200, EndNumber: 260, Step: 1,
				Geometry: line(geom.Coord{-71.66, 41.90}, geom.Coord{-71.64, 41.90}),
			},
		})

		res, err := ip.Locate(ctx, "02814", "%Gazza%", "179")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Greater(t, res.Longitude, -71.68)
		assert.Less(t, res.Longitude, -71.66)
		assert.Equal(t, models.SourceInterpolated, res.SourceMethod)
		assert.Contains(t, res.DisplayName, "(interpolated)")
	})
}

func TestLocate_Snapping(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	ranges := []models.AddressRange{{
		Zip: "02809", StreetName: "Marie Drive",
		StartNumber: 10, EndNumber: 20, Step: 1,
		Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
	}}

	t.Run("below every range snaps to the low endpoint", func(t *testing.T) {
		t.Parallel()
		res, err := newInterpolator(ranges).Locate(ctx, "02809", "%Marie Drive%", "4")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, -71.30, res.Longitude, 1e-6)
		assert.Equal(t, models.SourceSnapped, res.SourceMethod)
		assert.Contains(t, res.DisplayName, "(snapped)")
	})

	t.Run("above every range snaps to the high endpoint", func(t *testing.T) {
		t.Parallel()
		res, err := newInterpolator(ranges).Locate(ctx, "02809", "%Marie Drive%", "44")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, -71.20, res.Longitude, 1e-6)
		assert.Equal(t, models.SourceSnapped, res.SourceMethod)
	})
}

func TestLocate_ParityFiltering(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("odd house number skips the even-side range", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{
			{
				Zip: "02809", StreetName: "Marie Drive",
				StartNumber: 10, EndNumber: 20, Step: 2,
				Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
			},
			{
				Zip: "02809", StreetName: "Marie Drive",
				StartNumber: 11, EndNumber: 21, Step: 2,
				Geometry: line(geom.Coord{-71.30, 41.61}, geom.Coord{-71.20, 41.61}),
			},
		})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "15")

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, 41.61, res.Latitude, 1e-6)
	})

	t.Run("unknown step values exclude the range", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{{
			Zip: "02809", StreetName: "Marie Drive",
			StartNumber: 10, EndNumber: 20, Step: 4,
			Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
		}})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "15")

		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestLocate_RowOrderDoesNotChangeResult(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	// Two rows covering the same interval, as duplicate imports produce.
	// The resolved coordinate must not depend on which row comes first.
	a := models.AddressRange{
		Zip: "02809", StreetName: "Marie Drive",
		StartNumber: 1, EndNumber: 29, Step: 1,
		Geometry: line(geom.Coord{-71.30, 41.60}, geom.Coord{-71.20, 41.60}),
	}
	b := models.AddressRange{
		Zip: "02809", StreetName: "Marie Drive",
		StartNumber: 1, EndNumber: 29, Step: 1,
		Geometry: line(geom.Coord{-71.30, 41.70}, geom.Coord{-71.20, 41.70}),
	}

	first, err := newInterpolator([]models.AddressRange{a, b}).Locate(ctx, "02809", "%Marie Drive%", "15")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := newInterpolator([]models.AddressRange{b, a}).Locate(ctx, "02809", "%Marie Drive%", "15")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.InDelta(t, first.Latitude, second.Latitude, 1e-12)
	assert.InDelta(t, first.Longitude, second.Longitude, 1e-12)
	assert.Equal(t, first.DisplayName, second.DisplayName)
}

func TestLocate_Errors(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("zero ranges returns ErrNoRanges", func(t *testing.T) {
		t.Parallel()
		res, err := newInterpolator(nil).Locate(ctx, "02809", "%Nowhere%", "5")

		require.ErrorIs(t, err, interpolator.ErrNoRanges)
		assert.Nil(t, res)
	})

	t.Run("range query failure is wrapped", func(t *testing.T) {
		t.Parallel()
		ip := interpolator.New(slog.Default(), &fakeRangeSource{err: assert.AnError})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "5")

		require.Error(t, err)
		require.ErrorIs(t, err, assert.AnError)
		assert.Nil(t, res)
	})

	t.Run("unparseable house number fails fast", func(t *testing.T) {
		t.Parallel()
		res, err := newInterpolator(nil).Locate(ctx, "02809", "%Marie Drive%", "no-digits")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unparseable house number")
		assert.Nil(t, res)
	})

	t.Run("missing geometry yields no result without error", func(t *testing.T) {
		t.Parallel()
		ip := newInterpolator([]models.AddressRange{{
			Zip: "02809", StreetName: "Marie Drive",
			StartNumber: 10, EndNumber: 20, Step: 1,
		}})

		res, err := ip.Locate(ctx, "02809", "%Marie Drive%", "15")

		require.NoError(t, err)
		assert.Nil(t, res)
	})
}
