package skymap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skywatch/transient-gateway/internal/healpix"
	"github.com/skywatch/transient-gateway/internal/skymap/skymaptest"
)

func TestReadTable(t *testing.T) {
	raw := skymaptest.Encode(
		[]int64{1024, 1025, 1026},
		[]float64{0.1, 0.7, 0.2},
		map[string]float64{"DISTMEAN": 100, "DISTSTD": 10},
	)
	tab, err := ReadTable(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 3, tab.NumRows)
	require.Len(t, tab.Columns, 2)

	u, err := tab.Int("UNIQ", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1025), u)

	d, err := tab.Float("PROBDENSITY", 2)
	require.NoError(t, err)
	require.InDelta(t, 0.2, d, 1e-12)

	_, err = tab.Float("NOSUCH", 0)
	require.Error(t, err)
	_, err = tab.Float("UNIQ", 5)
	require.Error(t, err)

	mean, ok := tab.MetaFloat("DISTMEAN")
	require.True(t, ok)
	require.InDelta(t, 100.0, mean, 1e-12)
}

func TestReadTableRejectsGarbage(t *testing.T) {
	_, err := ReadTable(bytes.NewReader([]byte("not a fits file")))
	require.Error(t, err)

	_, err = ReadTable(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestMaxProbPosition(t *testing.T) {
	// pick a known pixel at order 6 and make it the densest row
	order := 6
	grid, err := healpix.NewFromOrder(order)
	require.NoError(t, err)
	pix := int64(12345)
	uniq := pix + (4 << (2 * uint(order)))
	wantRA, wantDec := grid.Center(pix)

	raw := skymaptest.Encode(
		[]int64{uniq - 1, uniq, uniq + 1},
		[]float64{0.2, 0.9, 0.1},
		map[string]float64{"DISTMEAN": 100, "DISTSTD": 10},
	)
	m, err := Parse(raw)
	require.NoError(t, err)

	ra, dec, err := m.MaxProbPosition()
	require.NoError(t, err)
	require.InDelta(t, wantRA, ra, 1e-9)
	require.InDelta(t, wantDec, dec, 1e-9)

	mean, std, ok := m.Distance()
	require.True(t, ok)
	require.InDelta(t, 100.0, mean, 1e-12)
	require.InDelta(t, 10.0, std, 1e-12)
}

func TestDistanceAbsent(t *testing.T) {
	raw := skymaptest.Encode([]int64{4}, []float64{1.0}, nil)
	m, err := Parse(raw)
	require.NoError(t, err)
	_, _, ok := m.Distance()
	require.False(t, ok)
}
