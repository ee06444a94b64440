// Package healpix maps sky positions to fixed-resolution pixels of the
// HEALPix tessellation (nested ordering) and back. Only the operations the
// event store and the skymap decoder need are implemented: ang2pix, pix2ang
// (pixel center) and the 8-neighbor query.
package healpix

import (
	"fmt"
	"math"
)

const halfPi = math.Pi / 2

// InvalidCoordinateError reports a position outside the valid sky ranges.
type InvalidCoordinateError struct {
	RA  float64
	Dec float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate: ra=%g dec=%g (want ra in [0,360), dec in [-90,90])", e.RA, e.Dec)
}

// Grid is a HEALPix grid at a fixed nside. It is stateless and safe for
// concurrent use.
type Grid struct {
	nside int64
	order uint
	fact1 float64
	fact2 float64
}

// New builds a grid for the given nside, which must be a power of two.
func New(nside int) (*Grid, error) {
	if nside <= 0 || nside&(nside-1) != 0 {
		return nil, fmt.Errorf("healpix: nside must be a positive power of two, got %d", nside)
	}
	n := int64(nside)
	order := uint(0)
	for 1<<order != n {
		order++
	}
	npix := 12 * n * n
	fact2 := 4.0 / float64(npix)
	return &Grid{
		nside: n,
		order: order,
		fact1: float64(n<<1) * fact2,
		fact2: fact2,
	}, nil
}

// NewFromOrder builds a grid with nside = 2^order.
func NewFromOrder(order int) (*Grid, error) {
	if order < 0 || order > 29 {
		return nil, fmt.Errorf("healpix: order out of range: %d", order)
	}
	return New(1 << uint(order))
}

func (g *Grid) Nside() int64 { return g.nside }

// NumPix returns the total pixel count, 12*nside^2.
func (g *Grid) NumPix() int64 { return 12 * g.nside * g.nside }

// Bucket maps (ra, dec) in degrees to the nested pixel index containing it.
func (g *Grid) Bucket(ra, dec float64) (int64, error) {
	if math.IsNaN(ra) || math.IsNaN(dec) || ra < 0 || ra >= 360 || dec < -90 || dec > 90 {
		return 0, &InvalidCoordinateError{RA: ra, Dec: dec}
	}
	z := math.Sin(dec * math.Pi / 180)
	phi := ra * math.Pi / 180
	return g.zphi2pix(z, phi), nil
}

// Center returns the (ra, dec) of the pixel center, in degrees.
func (g *Grid) Center(pix int64) (float64, float64) {
	z, phi := g.pix2zphi(pix)
	ra := phi * 180 / math.Pi
	if ra >= 360 {
		ra -= 360
	}
	dec := math.Asin(z) * 180 / math.Pi
	return ra, dec
}

// Neighbors returns the pixel itself plus its adjacent pixels (8 in the
// general case, fewer at the corners of the base faces).
func (g *Grid) Neighbors(pix int64) []int64 {
	ix, iy, face := g.nest2xyf(pix)
	out := make([]int64, 0, 9)
	out = append(out, pix)
	for i := 0; i < 8; i++ {
		x := ix + nbXOffset[i]
		y := iy + nbYOffset[i]
		nbnum := 4
		if x < 0 {
			x += g.nside
			nbnum--
		} else if x >= g.nside {
			x -= g.nside
			nbnum++
		}
		if y < 0 {
			y += g.nside
			nbnum -= 3
		} else if y >= g.nside {
			y -= g.nside
			nbnum += 3
		}
		f := nbFaceArray[nbnum][face]
		if f < 0 {
			continue
		}
		bits := nbSwapArray[nbnum][face>>2]
		if bits&1 != 0 {
			x = g.nside - x - 1
		}
		if bits&2 != 0 {
			y = g.nside - y - 1
		}
		if bits&4 != 0 {
			x, y = y, x
		}
		out = append(out, g.xyf2nest(x, y, f))
	}
	return out
}

// UniqToOrderPix splits a uniq-encoded multi-order pixel into its resolution
// order and the nested pixel index at that order.
func UniqToOrderPix(uniq int64) (int, int64) {
	order := 0
	for uniq>>(2*uint(order)+2) >= 4 {
		order++
	}
	// uniq = pix + 4*4^order
	return order, uniq - (int64(4) << (2 * uint(order)))
}

var (
	jrll = [12]int64{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	jpll = [12]int64{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}

	nbXOffset = [8]int64{-1, -1, 0, 1, 1, 1, 0, -1}
	nbYOffset = [8]int64{0, 1, 1, 1, 0, -1, -1, -1}

	nbFaceArray = [9][12]int64{
		{8, 9, 10, 11, -1, -1, -1, -1, 10, 11, 8, 9},  // S
		{5, 6, 7, 4, 8, 9, 10, 11, 9, 10, 11, 8},      // SE
		{-1, -1, -1, -1, 5, 6, 7, 4, -1, -1, -1, -1},  // E
		{4, 5, 6, 7, 11, 8, 9, 10, -1, -1, -1, -1},    // NE
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},        // center
		{1, 2, 3, 0, 0, 1, 2, 3, 5, 6, 7, 4},          // NW
		{-1, -1, -1, -1, 7, 4, 5, 6, -1, -1, -1, -1},  // W
		{3, 0, 1, 2, 3, 0, 1, 2, 4, 5, 6, 7},          // SW
		{2, 3, 0, 1, -1, -1, -1, -1, 6, 7, 4, 5},      // N
	}
	nbSwapArray = [9][3]int64{
		{0, 0, 3}, // S
		{0, 0, 6}, // SE
		{0, 0, 0}, // E
		{0, 0, 5}, // NE
		{0, 0, 0}, // center
		{5, 0, 0}, // NW
		{0, 0, 0}, // W
		{6, 0, 0}, // SW
		{3, 0, 0}, // N
	}
)

func spreadBits(v int64) int64 {
	x := uint64(v) & 0xffffffff
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return int64(x)
}

func compressBits(v int64) int64 {
	x := uint64(v) & 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0f0f0f0f0f0f0f0f
	x = (x | x>>4) & 0x00ff00ff00ff00ff
	x = (x | x>>8) & 0x0000ffff0000ffff
	x = (x | x>>16) & 0x00000000ffffffff
	return int64(x)
}

func (g *Grid) xyf2nest(x, y, face int64) int64 {
	return (face << (2 * g.order)) + spreadBits(x) + (spreadBits(y) << 1)
}

func (g *Grid) nest2xyf(pix int64) (x, y, face int64) {
	face = pix >> (2 * g.order)
	rem := pix & (g.nside*g.nside - 1)
	return compressBits(rem), compressBits(rem >> 1), face
}

// zphi2pix implements nested ang2pix on (z=sin(dec), phi).
func (g *Grid) zphi2pix(z, phi float64) int64 {
	tt := math.Mod(phi/halfPi, 4)
	if tt < 0 {
		tt += 4
	}
	za := math.Abs(z)
	var ix, iy, face int64
	if za <= 2.0/3.0 {
		temp1 := float64(g.nside) * (0.5 + tt)
		temp2 := float64(g.nside) * (z * 0.75)
		jp := int64(temp1 - temp2)
		jm := int64(temp1 + temp2)
		ifp := jp >> g.order
		ifm := jm >> g.order
		switch {
		case ifp == ifm:
			face = (ifp & 3) | 4
		case ifp < ifm:
			face = ifp & 3
		default:
			face = (ifm & 3) + 8
		}
		ix = jm & (g.nside - 1)
		iy = g.nside - 1 - (jp & (g.nside - 1))
	} else {
		ntt := int64(tt)
		if ntt >= 4 {
			ntt = 3
		}
		tp := tt - float64(ntt)
		tmp := float64(g.nside) * math.Sqrt(3*(1-za))
		jp := int64(tp * tmp)
		jm := int64((1.0 - tp) * tmp)
		if jp >= g.nside {
			jp = g.nside - 1
		}
		if jm >= g.nside {
			jm = g.nside - 1
		}
		if z >= 0 {
			face = ntt
			ix = g.nside - jm - 1
			iy = g.nside - jp - 1
		} else {
			face = ntt + 8
			ix = jp
			iy = jm
		}
	}
	return g.xyf2nest(ix, iy, face)
}

// pix2zphi returns the center of a nested pixel as (z=sin(dec), phi).
func (g *Grid) pix2zphi(pix int64) (z, phi float64) {
	ix, iy, face := g.nest2xyf(pix)
	jr := jrll[face]*g.nside - ix - iy - 1
	var nr, kshift int64
	switch {
	case jr < g.nside:
		nr = jr
		z = 1 - float64(nr*nr)*g.fact2
		kshift = 0
	case jr > 3*g.nside:
		nr = 4*g.nside - jr
		z = float64(nr*nr)*g.fact2 - 1
		kshift = 0
	default:
		nr = g.nside
		z = float64(2*g.nside-jr) * g.fact1
		kshift = (jr - g.nside) & 1
	}
	jp := (jpll[face]*nr + ix - iy + 1 + kshift) / 2
	if jp > 4*nr {
		jp -= 4 * nr
	}
	if jp < 1 {
		jp += 4 * nr
	}
	phi = (float64(jp) - float64(kshift+1)*0.5) * (halfPi / float64(nr))
	return z, phi
}
