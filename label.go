package gridcalc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// labelPattern accepts letters then digits, each optionally preceded by a
// fixed-reference marker. Interleaved forms such as "A1B2" are rejected.
var labelPattern = regexp.MustCompile(`^\$?([A-Za-z]+)\$?([0-9]+)$`)

// Ref is a single 0-based grid position.
type Ref struct {
	Row int
	Col int
}

// NewRef creates a Ref from 0-based row and column indices.
func NewRef(row, col int) Ref {
	return Ref{Row: row, Col: col}
}

// ParseRef parses a cell label like "B3" or "$B$3".
func ParseRef(label string) (Ref, error) {
	row, col, err := FromLabel(label)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Row: row, Col: col}, nil
}

// String formats the Ref as a cell label. Invalid refs render as "R{row}C{col}".
func (r Ref) String() string {
	label, err := ToLabel(r.Row, r.Col)
	if err != nil {
		return fmt.Sprintf("R%dC%d", r.Row, r.Col)
	}
	return label
}

// ToLabel converts 0-based indices to a label: (0,0)→"A1", (2,27)→"AB3".
func ToLabel(row, col int) (string, error) {
	if row < 0 || col < 0 {
		return "", fmt.Errorf("label for row %d col %d: %w", row, col, ErrOutOfBounds)
	}
	label, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", fmt.Errorf("label for row %d col %d: %w", row, col, err)
	}
	return label, nil
}

// FromLabel converts a label to 0-based indices. Fixed-reference markers are
// ignored and letters are case-insensitive.
func FromLabel(label string) (row, col int, err error) {
	canonical, err := canonicalLabel(label)
	if err != nil {
		return 0, 0, err
	}
	c, r, err := excelize.CellNameToCoordinates(canonical)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cell label %q: %w", label, err)
	}
	return r - 1, c - 1, nil
}

// canonicalLabel strips markers, upper-cases the column letters and drops
// leading zeros from the row, so "$a$01" and "A1" name the same cell.
func canonicalLabel(label string) (string, error) {
	m := labelPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return "", fmt.Errorf("invalid cell label %q", label)
	}
	row := strings.TrimLeft(m[2], "0")
	if row == "" {
		row = "0"
	}
	return strings.ToUpper(m[1]) + row, nil
}

// ColumnName converts a 0-based column index to letters: 0→"A", 26→"AA".
func ColumnName(col int) (string, error) {
	return excelize.ColumnNumberToName(col + 1)
}

// Range is a rectangular block of cells between two corners.
type Range struct {
	First Ref
	Last  Ref
}

// ParseRange parses "A1:C5". Corners are normalised so First is top-left.
func ParseRange(s string) (Range, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("invalid range (missing ':'): %q", s)
	}
	first, err := ParseRef(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	last, err := ParseRef(parts[1])
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return Range{
		First: Ref{Row: min(first.Row, last.Row), Col: min(first.Col, last.Col)},
		Last:  Ref{Row: max(first.Row, last.Row), Col: max(first.Col, last.Col)},
	}, nil
}

// String formats the Range as "A1:C5".
func (r Range) String() string {
	return r.First.String() + ":" + r.Last.String()
}

// Len returns the number of cells in the range.
func (r Range) Len() int {
	return (r.Last.Row - r.First.Row + 1) * (r.Last.Col - r.First.Col + 1)
}

// Refs lists every cell in the range in row-major order.
func (r Range) Refs() []Ref {
	refs := make([]Ref, 0, r.Len())
	for row := r.First.Row; row <= r.Last.Row; row++ {
		for col := r.First.Col; col <= r.Last.Col; col++ {
			refs = append(refs, Ref{Row: row, Col: col})
		}
	}
	return refs
}
