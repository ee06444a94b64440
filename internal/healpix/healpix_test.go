package healpix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// angular separation in degrees
func sep(ra1, dec1, ra2, dec2 float64) float64 {
	const d2r = math.Pi / 180
	a := math.Sin(dec1*d2r)*math.Sin(dec2*d2r) +
		math.Cos(dec1*d2r)*math.Cos(dec2*d2r)*math.Cos((ra1-ra2)*d2r)
	if a > 1 {
		a = 1
	} else if a < -1 {
		a = -1
	}
	return math.Acos(a) / d2r
}

func TestNewRejectsBadNside(t *testing.T) {
	for _, n := range []int{0, -1, 3, 12, 100} {
		_, err := New(n)
		require.Error(t, err, "nside=%d", n)
	}
	g, err := New(128)
	require.NoError(t, err)
	require.Equal(t, int64(128), g.Nside())
	require.Equal(t, int64(12*128*128), g.NumPix())
}

func TestBucketRejectsInvalidCoordinates(t *testing.T) {
	g, err := New(128)
	require.NoError(t, err)
	bad := [][2]float64{
		{-0.1, 0}, {360, 0}, {400, 10}, {10, -90.5}, {10, 91},
		{math.NaN(), 0}, {0, math.NaN()},
	}
	for _, p := range bad {
		_, err := g.Bucket(p[0], p[1])
		var ice *InvalidCoordinateError
		require.ErrorAs(t, err, &ice, "ra=%g dec=%g", p[0], p[1])
	}
}

func TestBucketCenterRoundTrip(t *testing.T) {
	g, err := New(128)
	require.NoError(t, err)
	// at nside=128 a pixel is roughly half a degree across
	const maxOff = 0.5
	for _, p := range [][2]float64{
		{0, 0}, {0.1, 0.1}, {45, 41.8}, {180, -60}, {359.9, 89.9},
		{197.45, -23.38}, {12.5, 67.0}, {300.0, -89.9}, {90, 66.7},
	} {
		pix, err := g.Bucket(p[0], p[1])
		require.NoError(t, err)
		require.GreaterOrEqual(t, pix, int64(0))
		require.Less(t, pix, g.NumPix())
		ra, dec := g.Center(pix)
		require.Less(t, sep(p[0], p[1], ra, dec), maxOff,
			"center of bucket(%g,%g) too far away", p[0], p[1])
	}
}

func TestBaseResolutionCenters(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)
	pix, err := g.Bucket(0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(4), pix)
	ra, dec := g.Center(4)
	require.InDelta(t, 0.0, ra, 1e-12)
	require.InDelta(t, 0.0, dec, 1e-12)
}

func TestNeighborsContainSelfAndAdjacent(t *testing.T) {
	g, err := New(128)
	require.NoError(t, err)
	pix, err := g.Bucket(120.0, 15.0)
	require.NoError(t, err)
	nb := g.Neighbors(pix)
	require.Len(t, nb, 9) // interior pixel: itself + 8
	require.Contains(t, nb, pix)
	seen := map[int64]bool{}
	for _, p := range nb {
		require.GreaterOrEqual(t, p, int64(0))
		require.Less(t, p, g.NumPix())
		require.False(t, seen[p], "duplicate neighbor %d", p)
		seen[p] = true
	}
}

// Positions closer than half a pixel end up in the same bucket or in
// mutually neighboring buckets.
func TestNearbyPositionsShareNeighborhood(t *testing.T) {
	g, err := New(128)
	require.NoError(t, err)
	pairs := [][4]float64{
		{120.0, 15.0, 120.2, 15.1},
		{0.05, -0.05, 359.95, 0.05}, // across the ra wrap
		{200.0, -45.0, 200.1, -45.15},
		{10.0, 88.0, 10.3, 88.1},
	}
	for _, p := range pairs {
		b1, err := g.Bucket(p[0], p[1])
		require.NoError(t, err)
		b2, err := g.Bucket(p[2], p[3])
		require.NoError(t, err)
		require.Contains(t, g.Neighbors(b1), b2,
			"(%g,%g) and (%g,%g) not in the same neighborhood", p[0], p[1], p[2], p[3])
	}
}

func TestNeighborsSymmetric(t *testing.T) {
	g, err := New(128)
	require.NoError(t, err)
	for _, p := range [][2]float64{{120, 15}, {0.1, 0.1}, {300, -80}, {45, 89}} {
		pix, err := g.Bucket(p[0], p[1])
		require.NoError(t, err)
		for _, nb := range g.Neighbors(pix) {
			require.Contains(t, g.Neighbors(nb), pix)
		}
	}
}

func TestUniqToOrderPix(t *testing.T) {
	cases := []struct {
		uniq  int64
		order int
		pix   int64
	}{
		{4, 0, 0},
		{15, 0, 11},
		{16, 1, 0},
		{266, 3, 10},
		{4*(1<<20) + 123, 10, 123},
	}
	for _, c := range cases {
		order, pix := UniqToOrderPix(c.uniq)
		require.Equal(t, c.order, order, "uniq=%d", c.uniq)
		require.Equal(t, c.pix, pix, "uniq=%d", c.uniq)
	}
}

func TestCenterBucketIdentity(t *testing.T) {
	g, err := New(64)
	require.NoError(t, err)
	for _, pix := range []int64{0, 1, 1000, 12345, g.NumPix() - 1} {
		ra, dec := g.Center(pix)
		got, err := g.Bucket(ra, dec)
		require.NoError(t, err)
		require.Equal(t, pix, got, "pix=%d center=(%g,%g)", pix, ra, dec)
	}
}
