// Package interpolator turns an address-range row into a coordinate for a
// house number the primary lookup source cannot resolve, by interpolating
// along the range's line geometry or snapping to its nearest endpoint.
package interpolator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// RangeSource is the range-database boundary: all ranges in a ZIP whose
// street name resembles the given pattern. Returns an empty slice, not an
// error, when nothing matches.
type RangeSource interface {
	RangesByStreet(ctx context.Context, zip, streetPattern string) ([]models.AddressRange, error)
}

// ErrNoRanges is returned when the range database has no rows for the
// requested ZIP and street.
var ErrNoRanges = errors.New("no address ranges for zip and street")

// Interpolator locates coordinates from address ranges.
type Interpolator struct {
	log    *slog.Logger
	source RangeSource
}

// New creates an Interpolator over the given range source.
func New(log *slog.Logger, source RangeSource) *Interpolator {
	return &Interpolator{log: log, source: source}
}

// validRange is a range row with its interval normalized to low <= high and
// its geometry endpoints resolved to the matching house-number ends.
type validRange struct {
	rng      models.AddressRange
	low      int
	high     int
	lowPt    models.Coordinates
	highPt   models.Coordinates
	span     int
	midpoint float64
	// reversed is true when the stored geometry runs high-to-low.
	reversed bool
}

// Locate resolves (zip, street, houseNumber) against the range database.
// Returns ErrNoRanges when the database has no rows; returns a nil result
// and nil error only when rows exist but none are usable.
func (ip *Interpolator) Locate(ctx context.Context, zip, streetName, houseNumber string) (*models.CandidateResult, error) {
	houseNum, ok := parseHouseNumber(houseNumber)
	if !ok {
		return nil, fmt.Errorf("unparseable house number %q", houseNumber)
	}

	rows, err := ip.source.RangesByStreet(ctx, zip, streetName)
	if err != nil {
		return nil, fmt.Errorf("failed to query address ranges: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRanges
	}

	valid := usableRanges(rows, houseNum)
	if len(valid) == 0 {
		ip.log.DebugContext(ctx, "no usable ranges after parity filtering",
			"zip", zip, "street", streetName, "rows", len(rows))
		return nil, nil
	}
	// The selection passes below keep the first entry on exact ties, so the
	// candidate order must not depend on how the source returned its rows.
	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if a.low != b.low {
			return a.low < b.low
		}
		if a.high != b.high {
			return a.high < b.high
		}
		if a.rng.StreetName != b.rng.StreetName {
			return a.rng.StreetName < b.rng.StreetName
		}
		if a.lowPt.Latitude != b.lowPt.Latitude {
			return a.lowPt.Latitude < b.lowPt.Latitude
		}
		return a.lowPt.Longitude < b.lowPt.Longitude
	})

	if res := ip.interpolateWithin(valid, houseNum, zip); res != nil {
		return res, nil
	}
	if res := ip.interpolateBetween(valid, houseNum, zip); res != nil {
		return res, nil
	}
	return ip.snapToNearest(valid, houseNum, zip), nil
}

// usableRanges filters out rows with missing geometry, applies the parity
// rule (step 2 means one-sided addressing; the house number's parity must
// agree with the range's starting parity), and fails closed on step values
// other than 1 or 2.
func usableRanges(rows []models.AddressRange, houseNum int) []validRange {
	valid := make([]validRange, 0, len(rows))
	for _, rng := range rows {
		if rng.Geometry == nil || rng.Geometry.NumCoords() < 2 {
			continue
		}
		switch rng.Step {
		case 1:
		case 2:
			if houseNum%2 != rng.StartNumber%2 {
				continue
			}
		default:
			continue
		}

		low, high := rng.StartNumber, rng.EndNumber
		reversed := false
		if low > high {
			low, high = high, low
			reversed = true
		}
		start := coordAt(rng.Geometry, 0)
		end := coordAt(rng.Geometry, rng.Geometry.NumCoords()-1)
		lowPt, highPt := start, end
		if reversed {
			lowPt, highPt = end, start
		}
		valid = append(valid, validRange{
			rng:      rng,
			low:      low,
			high:     high,
			lowPt:    lowPt,
			highPt:   highPt,
			span:     high - low,
			midpoint: float64(low+high) / 2,
			reversed: reversed,
		})
	}
	return valid
}

// interpolateWithin handles house numbers contained in a range: pick the
// narrowest containing interval (nearest midpoint on ties) and walk the
// line geometry to the interpolation fraction.
func (ip *Interpolator) interpolateWithin(valid []validRange, houseNum int, zip string) *models.CandidateResult {
	var best *validRange
	for i := range valid {
		v := &valid[i]
		if houseNum < v.low || houseNum > v.high {
			continue
		}
		if best == nil ||
			v.span < best.span ||
			(v.span == best.span && math.Abs(float64(houseNum)-v.midpoint) < math.Abs(float64(houseNum)-best.midpoint)) {
			best = v
		}
	}
	if best == nil {
		return nil
	}

	frac := 0.5
	if best.span > 0 {
		frac = float64(houseNum-best.low) / float64(best.span)
	}
	if best.reversed {
		frac = 1 - frac
	}
	pt := pointAlong(best.rng.Geometry, frac)
	return ip.result(pt, houseNum, best.rng.StreetName, zip, models.SourceInterpolated)
}

// interpolateBetween handles house numbers falling in the gap between two
// ranges: interpolate linearly between the lower range's high endpoint and
// the upper range's low endpoint, preferring the narrowest gap.
func (ip *Interpolator) interpolateBetween(valid []validRange, houseNum int, zip string) *models.CandidateResult {
	ordered := make([]validRange, len(valid))
	copy(ordered, valid)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].low != ordered[j].low {
			return ordered[i].low < ordered[j].low
		}
		return ordered[i].high < ordered[j].high
	})

	bestGap := math.MaxInt
	var left, right *validRange
	for i := 0; i+1 < len(ordered); i++ {
		lo, hi := &ordered[i], &ordered[i+1]
		if lo.high < houseNum && houseNum < hi.low {
			gap := hi.low - lo.high
			if gap < bestGap {
				bestGap = gap
				left, right = lo, hi
			}
		}
	}
	if left == nil {
		return nil
	}

	frac := float64(houseNum-left.high) / float64(bestGap)
	pt := models.Coordinates{
		Latitude:  lerp(left.highPt.Latitude, right.lowPt.Latitude, frac),
		Longitude: lerp(left.highPt.Longitude, right.lowPt.Longitude, frac),
	}
	return ip.result(pt, houseNum, left.rng.StreetName, zip, models.SourceInterpolated)
}

// snapToNearest assigns the coordinate of the numerically nearest range
// endpoint, resolving ties toward the lower-numbered endpoint.
func (ip *Interpolator) snapToNearest(valid []validRange, houseNum int, zip string) *models.CandidateResult {
	type endpoint struct {
		number int
		pt     models.Coordinates
		street string
	}
	endpoints := make([]endpoint, 0, 2*len(valid))
	for _, v := range valid {
		endpoints = append(endpoints,
			endpoint{number: v.low, pt: v.lowPt, street: v.rng.StreetName},
			endpoint{number: v.high, pt: v.highPt, street: v.rng.StreetName},
		)
	}
	best := endpoints[0]
	for _, ep := range endpoints[1:] {
		d, bd := abs(houseNum-ep.number), abs(houseNum-best.number)
		if d < bd || (d == bd && ep.number < best.number) {
			best = ep
		}
	}
	return ip.result(best.pt, houseNum, best.street, zip, models.SourceSnapped)
}

// result tags the computed coordinate so it is never mistaken for a genuine
// database hit: the display name carries an explicit suffix and the source
// method names the derivation. The bounding box is the point itself and the
// place rank is address-level, so validation reduces to the ZIP check.
func (ip *Interpolator) result(pt models.Coordinates, houseNum int, street, zip, source string) *models.CandidateResult {
	suffix := "interpolated"
	if source == models.SourceSnapped {
		suffix = "snapped"
	}
	return &models.CandidateResult{
		DisplayName: fmt.Sprintf("%d, %s, %s (%s)", houseNum, street, zip, suffix),
		Latitude:    pt.Latitude,
		Longitude:   pt.Longitude,
		BoundingBox: models.BoundingBox{
			SouthLat: pt.Latitude, NorthLat: pt.Latitude,
			WestLon: pt.Longitude, EastLon: pt.Longitude,
		},
		HasBBox:      true,
		PlaceRank:    30,
		MatchedZip:   zip,
		SourceMethod: source,
	}
}

// pointAlong walks the polyline to the given fraction of its cumulative
// length. Degenerate geometries fall back to the first vertex.
func pointAlong(line *geom.LineString, frac float64) models.Coordinates {
	if frac <= 0 {
		return coordAt(line, 0)
	}
	if frac >= 1 {
		return coordAt(line, line.NumCoords()-1)
	}

	n := line.NumCoords()
	segLens := make([]float64, n-1)
	total := 0.0
	for i := 0; i < n-1; i++ {
		a, b := coordAt(line, i), coordAt(line, i+1)
		segLens[i] = haversineMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
		total += segLens[i]
	}
	if total == 0 {
		return coordAt(line, 0)
	}

	remaining := frac * total
	for i, segLen := range segLens {
		if remaining <= segLen && segLen > 0 {
			t := remaining / segLen
			a, b := coordAt(line, i), coordAt(line, i+1)
			return models.Coordinates{
				Latitude:  lerp(a.Latitude, b.Latitude, t),
				Longitude: lerp(a.Longitude, b.Longitude, t),
			}
		}
		remaining -= segLen
	}
	return coordAt(line, n-1)
}

func coordAt(line *geom.LineString, i int) models.Coordinates {
	c := line.Coord(i)
	return models.Coordinates{Latitude: c.Y(), Longitude: c.X()}
}

func lerp(start, end, frac float64) float64 {
	return start + (end-start)*frac
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

const earthRadiusM = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLmb := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLmb/2)*math.Sin(dLmb/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// parseHouseNumber extracts the leading digits of a house-number token.
func parseHouseNumber(value string) (int, bool) {
	digits := strings.TrimFunc(value, func(r rune) bool { return r < '0' || r > '9' })
	i := 0
	for i < len(digits) && digits[i] >= '0' && digits[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
