// Package skymap decodes the multi-order probability tables attached to
// gravitational-wave notices and extracts the point estimates the gateway
// needs: the most probable sky position and the 3-D distance moments.
package skymap

import (
	"bytes"
	"fmt"

	"github.com/skywatch/transient-gateway/internal/healpix"
)

// Skymap is a parsed probability table. The raw bytes are kept so the store
// can persist the map verbatim.
type Skymap struct {
	Raw []byte

	table *Table
}

// Parse decodes a binary FITS skymap.
func Parse(raw []byte) (*Skymap, error) {
	t, err := ReadTable(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &Skymap{Raw: raw, table: t}, nil
}

// MaxProbPosition returns (ra, dec) in degrees of the center of the pixel
// with the highest probability density. Multi-order maps encode each row's
// pixel as a uniq index, so rows may sit at different resolutions.
func (s *Skymap) MaxProbPosition() (ra, dec float64, err error) {
	if s.table.NumRows == 0 {
		return 0, 0, fmt.Errorf("skymap: empty table")
	}
	best := 0
	bestDensity, err := s.table.Float("PROBDENSITY", 0)
	if err != nil {
		return 0, 0, err
	}
	for row := 1; row < s.table.NumRows; row++ {
		d, err := s.table.Float("PROBDENSITY", row)
		if err != nil {
			return 0, 0, err
		}
		if d > bestDensity {
			bestDensity = d
			best = row
		}
	}
	uniq, err := s.table.Int("UNIQ", best)
	if err != nil {
		return 0, 0, err
	}
	order, pix := healpix.UniqToOrderPix(uniq)
	grid, err := healpix.NewFromOrder(order)
	if err != nil {
		return 0, 0, fmt.Errorf("skymap: uniq %d: %w", uniq, err)
	}
	ra, dec = grid.Center(pix)
	return ra, dec, nil
}

// Distance returns the DISTMEAN/DISTSTD header values in Mpc. Not every
// alert revision carries 3-D localization; ok is false when either keyword
// is absent.
func (s *Skymap) Distance() (mean, std float64, ok bool) {
	mean, ok1 := s.table.MetaFloat("DISTMEAN")
	std, ok2 := s.table.MetaFloat("DISTSTD")
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return mean, std, true
}
