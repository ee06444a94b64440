package skymap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Minimal FITS reader, just enough for the probability tables embedded in
// gravitational-wave notices: a primary HDU followed by one BINTABLE
// extension with scalar big-endian columns.

const (
	blockSize = 2880
	cardSize  = 80
)

// Column describes one field of a binary table.
type Column struct {
	Name   string
	Form   byte // FITS TFORM type letter: K, J, I, D, E
	offset int
	size   int
}

// Table is a decoded FITS binary table plus its header keywords.
type Table struct {
	Columns []Column
	NumRows int

	rowSize int
	data    []byte
	keys    map[string]string
}

type fitsHeader struct {
	cards map[string]string
}

func (h *fitsHeader) str(key string) (string, bool) {
	v, ok := h.cards[key]
	return v, ok
}

func (h *fitsHeader) int(key string) (int, bool) {
	v, ok := h.cards[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseCard splits one 80-byte header card into key and value. Comment-only
// and blank cards return an empty key.
func parseCard(card []byte) (key, value string) {
	key = strings.TrimSpace(string(card[:8]))
	if key == "" || key == "COMMENT" || key == "HISTORY" || key == "END" {
		return key, ""
	}
	if len(card) < 10 || card[8] != '=' {
		return "", ""
	}
	rest := strings.TrimSpace(string(card[10:]))
	if strings.HasPrefix(rest, "'") {
		// quoted string, '' escapes a quote
		end := 1
		for end < len(rest) {
			if rest[end] == '\'' {
				if end+1 < len(rest) && rest[end+1] == '\'' {
					end += 2
					continue
				}
				break
			}
			end++
		}
		return key, strings.TrimRight(rest[1:end], " ")
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return key, strings.TrimSpace(rest)
}

func readHeader(r io.Reader) (*fitsHeader, error) {
	h := &fitsHeader{cards: make(map[string]string)}
	block := make([]byte, blockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("fits: read header block: %w", err)
		}
		for i := 0; i+cardSize <= blockSize; i += cardSize {
			key, value := parseCard(block[i : i+cardSize])
			if key == "END" {
				return h, nil
			}
			if key != "" {
				if _, dup := h.cards[key]; !dup {
					h.cards[key] = value
				}
			}
		}
	}
}

func formSize(form byte) (int, error) {
	switch form {
	case 'K', 'D':
		return 8, nil
	case 'J', 'E':
		return 4, nil
	case 'I':
		return 2, nil
	}
	return 0, fmt.Errorf("fits: unsupported TFORM type %q", string(form))
}

func dataBytes(h *fitsHeader) int {
	naxis, _ := h.int("NAXIS")
	size := 1
	for i := 1; i <= naxis; i++ {
		n, ok := h.int(fmt.Sprintf("NAXIS%d", i))
		if !ok {
			return 0
		}
		size *= n
	}
	if naxis == 0 {
		size = 0
	}
	pcount, _ := h.int("PCOUNT")
	return size + pcount
}

func skipData(r io.Reader, h *fitsHeader) error {
	n := dataBytes(h)
	if n == 0 {
		return nil
	}
	padded := (n + blockSize - 1) / blockSize * blockSize
	_, err := io.CopyN(io.Discard, r, int64(padded))
	return err
}

// ReadTable reads HDUs until the first BINTABLE extension and decodes it.
func ReadTable(r io.Reader) (*Table, error) {
	primary, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if _, ok := primary.str("SIMPLE"); !ok {
		return nil, fmt.Errorf("fits: missing SIMPLE card in primary header")
	}
	if err := skipData(r, primary); err != nil {
		return nil, fmt.Errorf("fits: skip primary data: %w", err)
	}

	for {
		h, err := readHeader(r)
		if err != nil {
			return nil, fmt.Errorf("fits: no BINTABLE extension found: %w", err)
		}
		xt, _ := h.str("XTENSION")
		if strings.TrimRight(xt, " ") != "BINTABLE" {
			if err := skipData(r, h); err != nil {
				return nil, err
			}
			continue
		}
		return decodeBintable(r, h)
	}
}

func decodeBintable(r io.Reader, h *fitsHeader) (*Table, error) {
	rowSize, ok := h.int("NAXIS1")
	if !ok {
		return nil, fmt.Errorf("fits: BINTABLE missing NAXIS1")
	}
	numRows, ok := h.int("NAXIS2")
	if !ok {
		return nil, fmt.Errorf("fits: BINTABLE missing NAXIS2")
	}
	numFields, ok := h.int("TFIELDS")
	if !ok {
		return nil, fmt.Errorf("fits: BINTABLE missing TFIELDS")
	}

	t := &Table{
		NumRows: numRows,
		rowSize: rowSize,
		keys:    h.cards,
	}
	offset := 0
	for i := 1; i <= numFields; i++ {
		name, _ := h.str(fmt.Sprintf("TTYPE%d", i))
		form, ok := h.str(fmt.Sprintf("TFORM%d", i))
		if !ok || form == "" {
			return nil, fmt.Errorf("fits: missing TFORM%d", i)
		}
		form = strings.TrimSpace(form)
		repeat := 1
		letterIdx := 0
		for letterIdx < len(form) && form[letterIdx] >= '0' && form[letterIdx] <= '9' {
			letterIdx++
		}
		if letterIdx > 0 {
			repeat, _ = strconv.Atoi(form[:letterIdx])
		}
		if letterIdx >= len(form) {
			return nil, fmt.Errorf("fits: malformed TFORM%d=%q", i, form)
		}
		size, err := formSize(form[letterIdx])
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, Column{
			Name:   strings.TrimSpace(name),
			Form:   form[letterIdx],
			offset: offset,
			size:   size,
		})
		offset += size * repeat
	}
	if offset > rowSize {
		return nil, fmt.Errorf("fits: columns span %d bytes but NAXIS1=%d", offset, rowSize)
	}

	n := rowSize * numRows
	padded := (n + blockSize - 1) / blockSize * blockSize
	buf := make([]byte, padded)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("fits: read table data: %w", err)
	}
	t.data = buf[:n]
	return t, nil
}

func (t *Table) column(name string) (*Column, error) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], nil
		}
	}
	return nil, fmt.Errorf("fits: no column %q", name)
}

func (t *Table) cell(c *Column, row int) ([]byte, error) {
	if row < 0 || row >= t.NumRows {
		return nil, fmt.Errorf("fits: row %d out of range (%d rows)", row, t.NumRows)
	}
	start := row*t.rowSize + c.offset
	return t.data[start : start+c.size], nil
}

// Float reads the first element of a column cell as float64.
func (t *Table) Float(name string, row int) (float64, error) {
	c, err := t.column(name)
	if err != nil {
		return 0, err
	}
	b, err := t.cell(c, row)
	if err != nil {
		return 0, err
	}
	switch c.Form {
	case 'D':
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case 'E':
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case 'K':
		return float64(int64(binary.BigEndian.Uint64(b))), nil
	case 'J':
		return float64(int32(binary.BigEndian.Uint32(b))), nil
	case 'I':
		return float64(int16(binary.BigEndian.Uint16(b))), nil
	}
	return 0, fmt.Errorf("fits: column %q is not numeric", name)
}

// Int reads the first element of a column cell as int64.
func (t *Table) Int(name string, row int) (int64, error) {
	c, err := t.column(name)
	if err != nil {
		return 0, err
	}
	b, err := t.cell(c, row)
	if err != nil {
		return 0, err
	}
	switch c.Form {
	case 'K':
		return int64(binary.BigEndian.Uint64(b)), nil
	case 'J':
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case 'I':
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case 'D':
		return int64(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case 'E':
		return int64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	}
	return 0, fmt.Errorf("fits: column %q is not numeric", name)
}

// MetaFloat returns a numeric header keyword of the table HDU.
func (t *Table) MetaFloat(key string) (float64, bool) {
	v, ok := t.keys[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
