package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column describes one field of a binary table.
type Column struct {
	Name   string // TTYPE name
	Code   byte   // TFORM type code
	Repeat int    // Element count, above 1 for array columns
	Offset int    // Byte offset of the field within a row
}

// Table holds a decoded binary table HDU. Cell access goes through the typed
// column readers, which convert every numeric type code to float64.
type Table struct {
	Columns []Column
	Rows    int

	rowLen int
	data   []byte
}

// elemSize maps binary table type codes to their byte lengths.
func elemSize(code byte) (int, error) {
	switch code {
	case 'L', 'B', 'A':
		return 1, nil
	case 'I':
		return 2, nil
	case 'J', 'E':
		return 4, nil
	case 'K', 'D':
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported TFORM code %c", code)
	}
}

// decodeTable parses the TFORM and TTYPE cards and wraps the raw row data.
func decodeTable(h *Header, raw []byte) (*Table, error) {
	rowLen, err := h.Int("NAXIS1")
	if err != nil {
		return nil, fmt.Errorf("reading NAXIS1 : %w", err)
	}

	rows, err := h.Int("NAXIS2")
	if err != nil {
		return nil, fmt.Errorf("reading NAXIS2 : %w", err)
	}

	tfields, err := h.Int("TFIELDS")
	if err != nil {
		return nil, fmt.Errorf("reading TFIELDS : %w", err)
	}

	table := &Table{Rows: rows, rowLen: rowLen, data: raw}

	offset := 0
	for i := 1; i <= tfields; i++ {
		form, err := h.Str(fmt.Sprintf("TFORM%d", i))
		if err != nil {
			return nil, fmt.Errorf("reading TFORM%d : %w", i, err)
		}
		form = strings.TrimSpace(form)
		if form == "" {
			return nil, fmt.Errorf("empty TFORM%d", i)
		}

		j := strings.IndexFunc(form, func(r rune) bool { return r < '0' || r > '9' })
		if j == -1 {
			return nil, fmt.Errorf("TFORM%d has no type code : %s", i, form)
		}

		repeat := 1
		if j > 0 {
			repeat, err = strconv.Atoi(form[:j])
			if err != nil {
				return nil, fmt.Errorf("parsing TFORM%d repeat : %w", i, err)
			}
		}

		code := form[j]
		size, err := elemSize(code)
		if err != nil {
			return nil, fmt.Errorf("column %d : %w", i, err)
		}

		name, _ := h.Str(fmt.Sprintf("TTYPE%d", i))
		name = strings.TrimSpace(name)

		table.Columns = append(table.Columns, Column{
			Name:   name,
			Code:   code,
			Repeat: repeat,
			Offset: offset,
		})

		offset += repeat * size
	}

	if offset > rowLen {
		return nil, fmt.Errorf("columns span %d bytes but rows are %d", offset, rowLen)
	}

	return table, nil
}

// Column returns the column with the given TTYPE name.
func (t *Table) Column(name string) (*Column, error) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], nil
		}
	}

	return nil, fmt.Errorf("no column named %s", name)
}

// cell decodes element k of the named column in the given row.
func (t *Table) cell(col *Column, row, k int) float64 {
	size, _ := elemSize(col.Code)
	p := t.data[row*t.rowLen+col.Offset+k*size:]

	switch col.Code {
	case 'B':
		return float64(p[0])
	case 'L':
		if p[0] == 'T' {
			return 1
		}
		return 0
	case 'I':
		return float64(int16(binary.BigEndian.Uint16(p)))
	case 'J':
		return float64(int32(binary.BigEndian.Uint32(p)))
	case 'K':
		return float64(int64(binary.BigEndian.Uint64(p)))
	case 'E':
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case 'D':
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	default:
		return math.NaN()
	}
}

// Floats returns a scalar numeric column as float64 values, one per row.
// Array columns yield their first element.
func (t *Table) Floats(name string) ([]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Code == 'A' {
		return nil, fmt.Errorf("column %s is a string column", name)
	}

	values := make([]float64, t.Rows)
	for row := 0; row < t.Rows; row++ {
		values[row] = t.cell(col, row, 0)
	}

	return values, nil
}

// Vectors returns an array column as one float64 slice per row.
func (t *Table) Vectors(name string) ([][]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Code == 'A' {
		return nil, fmt.Errorf("column %s is a string column", name)
	}

	values := make([][]float64, t.Rows)
	for row := 0; row < t.Rows; row++ {
		elems := make([]float64, col.Repeat)
		for k := 0; k < col.Repeat; k++ {
			elems[k] = t.cell(col, row, k)
		}
		values[row] = elems
	}

	return values, nil
}

// Ints returns a scalar numeric column truncated to int values, one per row.
func (t *Table) Ints(name string) ([]int, error) {
	floats, err := t.Floats(name)
	if err != nil {
		return nil, err
	}

	values := make([]int, len(floats))
	for i, v := range floats {
		values[i] = int(v)
	}

	return values, nil
}

// Strings returns a character column as trimmed strings, one per row.
func (t *Table) Strings(name string) ([]string, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Code != 'A' {
		return nil, fmt.Errorf("column %s is not a string column", name)
	}

	values := make([]string, t.Rows)
	for row := 0; row < t.Rows; row++ {
		start := row*t.rowLen + col.Offset
		values[row] = strings.TrimRight(string(t.data[start:start+col.Repeat]), " \x00")
	}

	return values, nil
}
