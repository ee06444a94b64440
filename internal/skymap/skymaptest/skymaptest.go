// Package skymaptest builds small FITS probability tables for tests, shaped
// like the maps embedded in gravitational-wave notices (UNIQ + PROBDENSITY
// columns, optional DISTMEAN/DISTSTD keywords).
package skymaptest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const (
	blockSize = 2880
	cardSize  = 80
)

func card(key, value string) []byte {
	c := fmt.Sprintf("%-8s= %s", key, value)
	if len(c) > cardSize {
		panic("skymaptest: header card too long")
	}
	return []byte(fmt.Sprintf("%-80s", c))
}

func bareCard(key string) []byte {
	return []byte(fmt.Sprintf("%-80s", key))
}

func pad(b *bytes.Buffer) {
	if rem := b.Len() % blockSize; rem != 0 {
		b.Write(bytes.Repeat([]byte{' '}, blockSize-rem))
	}
}

func padZero(b *bytes.Buffer) {
	if rem := b.Len() % blockSize; rem != 0 {
		b.Write(make([]byte, blockSize-rem))
	}
}

// Encode produces FITS bytes holding one BINTABLE with the given uniq pixel
// indices and probability densities. Extra float keywords (e.g. DISTMEAN,
// DISTSTD) are written into the table header.
func Encode(uniq []int64, probDensity []float64, meta map[string]float64) []byte {
	if len(uniq) != len(probDensity) {
		panic("skymaptest: uniq and probDensity length mismatch")
	}
	var b bytes.Buffer

	// primary HDU, no data
	b.Write(card("SIMPLE", "T"))
	b.Write(card("BITPIX", "8"))
	b.Write(card("NAXIS", "0"))
	b.Write(bareCard("END"))
	pad(&b)

	// bintable header
	const rowSize = 16 // one K column + one D column
	b.Write(card("XTENSION", "'BINTABLE'"))
	b.Write(card("BITPIX", "8"))
	b.Write(card("NAXIS", "2"))
	b.Write(card("NAXIS1", fmt.Sprintf("%d", rowSize)))
	b.Write(card("NAXIS2", fmt.Sprintf("%d", len(uniq))))
	b.Write(card("PCOUNT", "0"))
	b.Write(card("GCOUNT", "1"))
	b.Write(card("TFIELDS", "2"))
	b.Write(card("TTYPE1", "'UNIQ    '"))
	b.Write(card("TFORM1", "'K       '"))
	b.Write(card("TTYPE2", "'PROBDENSITY'"))
	b.Write(card("TFORM2", "'D       '"))
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Write(card(k, fmt.Sprintf("%g", meta[k])))
	}
	b.Write(bareCard("END"))
	pad(&b)

	// big-endian table data
	for i := range uniq {
		var row [rowSize]byte
		binary.BigEndian.PutUint64(row[0:8], uint64(uniq[i]))
		binary.BigEndian.PutUint64(row[8:16], math.Float64bits(probDensity[i]))
		b.Write(row[:])
	}
	padZero(&b)

	return b.Bytes()
}
