package gridcalc

import "fmt"

// Store is a fixed-size matrix of cells. Its bounds never change after
// construction.
type Store struct {
	rows  int
	cols  int
	cells [][]Cell
}

// NewStore creates a store of rows × cols blank cells.
func NewStore(rows, cols int) *Store {
	cells := make([][]Cell, rows)
	for i := range cells {
		cells[i] = make([]Cell, cols)
	}
	return &Store{rows: rows, cols: cols, cells: cells}
}

// Rows returns the fixed row count.
func (s *Store) Rows() int { return s.rows }

// Cols returns the fixed column count.
func (s *Store) Cols() int { return s.cols }

// InBounds reports whether (row, col) addresses a cell of the store.
func (s *Store) InBounds(row, col int) bool {
	return row >= 0 && row < s.rows && col >= 0 && col < s.cols
}

// Get returns the cell at (row, col).
func (s *Store) Get(row, col int) (Cell, error) {
	if !s.InBounds(row, col) {
		return Cell{}, fmt.Errorf("get row %d col %d: %w", row, col, ErrOutOfBounds)
	}
	return s.cells[row][col], nil
}

// Set replaces the cell at (row, col).
func (s *Store) Set(row, col int, c Cell) error {
	if !s.InBounds(row, col) {
		return fmt.Errorf("set row %d col %d: %w", row, col, ErrOutOfBounds)
	}
	s.cells[row][col] = c
	return nil
}

// Extent returns the number of rows and columns up to and including the
// furthest non-blank cell. An empty store has extent (0, 0).
func (s *Store) Extent() (rows, cols int) {
	for r, row := range s.cells {
		for c, cell := range row {
			if cell.IsBlank() {
				continue
			}
			rows = max(rows, r+1)
			cols = max(cols, c+1)
		}
	}
	return rows, cols
}

// Prune returns a copy of the matrix trimmed to Extent.
func (s *Store) Prune() [][]Cell {
	rows, cols := s.Extent()
	out := make([][]Cell, rows)
	for r := range out {
		out[r] = make([]Cell, cols)
		copy(out[r], s.cells[r][:cols])
	}
	return out
}

// Each calls fn for every non-blank cell in row-major order.
func (s *Store) Each(fn func(row, col int, c Cell)) {
	for r, row := range s.cells {
		for c, cell := range row {
			if cell.IsBlank() {
				continue
			}
			fn(r, c, cell)
		}
	}
}
