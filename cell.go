package gridcalc

import (
	"math"
	"strconv"
	"strings"
)

// FormulaPrefix marks raw input as a formula.
const FormulaPrefix = "="

// CellKind tags the shape of a Cell.
type CellKind int

const (
	CellBlank CellKind = iota
	CellLiteral
	CellFormula
)

// String returns a human-readable name for the CellKind.
func (k CellKind) String() string {
	switch k {
	case CellBlank:
		return "Blank"
	case CellLiteral:
		return "Literal"
	case CellFormula:
		return "Formula"
	default:
		return "Unknown"
	}
}

// Cell holds the content of one grid position.
//
// A literal cell's Value is authoritative. A formula cell keeps its source in
// Input and carries either Value or Err, both derived from the source and
// recomputed whenever a referenced cell changes.
type Cell struct {
	Kind  CellKind
	Input string     // raw text as edited; formula source includes the prefix
	Value any        // float64, bool or string; nil when blank or failed
	Err   *EvalError // set only on formula cells whose evaluation failed
}

// Blank returns an empty cell.
func Blank() Cell {
	return Cell{Kind: CellBlank}
}

// Literal returns a plain-value cell for raw input. Numeric text becomes a
// float64, TRUE/FALSE become booleans, anything else stays a string.
func Literal(raw string) Cell {
	if raw == "" {
		return Blank()
	}
	return Cell{Kind: CellLiteral, Input: raw, Value: parseLiteral(raw)}
}

// Formula returns a formula cell with the outcome of its last evaluation.
func Formula(source string, value any, err *EvalError) Cell {
	if err != nil {
		value = nil
	}
	return Cell{Kind: CellFormula, Input: source, Value: value, Err: err}
}

// IsBlank reports whether the cell has neither a formula nor a value.
func (c Cell) IsBlank() bool {
	return c.Kind != CellFormula && c.Value == nil
}

// FormulaText returns the formula source, or "" for non-formula cells.
func (c Cell) FormulaText() string {
	if c.Kind == CellFormula {
		return c.Input
	}
	return ""
}

// Snapshot returns the read-only view handed to the UI layer.
func (c Cell) Snapshot() Snapshot {
	s := Snapshot{Kind: c.Kind, Formula: c.FormulaText(), Value: c.Value}
	if c.Err != nil {
		s.Error = c.Err.Code
		s.ErrorKind = c.Err.Kind
		s.Value = nil
	}
	return s
}

// Snapshot is the externally visible state of a cell after an edit.
type Snapshot struct {
	Kind      CellKind
	Formula   string    // "" when the cell holds no formula
	Value     any       // nil when blank or when Error is set
	Error     string    // display code such as "#DIV/0!", "" on success
	ErrorKind ErrorKind // NoError on success
}

// HasError reports whether the snapshot carries an evaluation error.
func (s Snapshot) HasError() bool {
	return s.Error != ""
}

// Text renders the value the way a grid would display it.
func (s Snapshot) Text() string {
	if s.Error != "" {
		return s.Error
	}
	return formatValue(s.Value)
}

func isFormula(raw string) bool {
	return strings.HasPrefix(raw, FormulaPrefix)
}

func parseLiteral(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch strings.ToUpper(trimmed) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return raw
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return val
	default:
		return ""
	}
}
