package gridcalc

import (
	"fmt"
	"strings"
)

// Describe returns a human-readable dump of the grid: its bounds, every
// non-blank cell with its current value, and the dependency edges.
// Useful for debugging formulas during development.
func (e *Engine) Describe() string {
	var b strings.Builder
	rows, cols := e.store.Extent()
	fmt.Fprintf(&b, "Grid: %dx%d (extent %dx%d)\n", e.store.Rows(), e.store.Cols(), rows, cols)

	var literals, formulas []string
	e.store.Each(func(row, col int, c Cell) {
		label := NewRef(row, col).String()
		s := c.Snapshot()
		if c.Kind == CellFormula {
			formulas = append(formulas, fmt.Sprintf("    %s: %s = %s", label, c.Input, s.Text()))
			return
		}
		literals = append(literals, fmt.Sprintf("    %s: %s", label, s.Text()))
	})
	writeSection(&b, "Values", literals)
	writeSection(&b, "Formulas", formulas)

	var deps []string
	seen := make(map[string]bool)
	for _, edge := range e.graph.Edges() {
		if seen[edge.From] {
			continue
		}
		seen[edge.From] = true
		deps = append(deps, fmt.Sprintf("    %s -> %s", edge.From, strings.Join(e.graph.Subscribers(edge.From), ", ")))
	}
	writeSection(&b, "Dependencies", deps)
	return b.String()
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", title)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
