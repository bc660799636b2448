package gridcalc

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/xuri/excelize/v2"
)

// Engine owns a fixed grid of cells and the dependency graph between them,
// and keeps every formula result consistent as cells are edited.
//
// An Engine is not safe for concurrent use. Each Edit runs to completion,
// including recalculation of every affected cell, before it returns.
// Listeners must not call back into the Engine.
type Engine struct {
	opts    *Options
	store   *Store
	graph   *Graph
	scanner *Scanner
	eval    FormulaEvaluator
	log     *slog.Logger
}

// New creates an Engine from an initial snapshot of raw cell inputs, indexed
// [row][col]. The snapshot may be smaller than the grid; missing cells are
// blank. Formula references are scanned once to seed the dependency graph,
// then every formula is evaluated in dependency order.
func New(snapshot [][]string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.rows <= 0 || o.cols <= 0 || o.rows > excelize.TotalRows || o.cols > excelize.MaxColumns {
		return nil, fmt.Errorf("invalid grid bounds %dx%d", o.rows, o.cols)
	}
	if len(snapshot) > o.rows {
		return nil, fmt.Errorf("snapshot has %d rows, grid allows %d: %w", len(snapshot), o.rows, ErrOutOfBounds)
	}
	ev := o.evaluator
	if ev == nil {
		ev = NewExprEvaluator(o.functions, o.maxRangeCells)
	}
	e := &Engine{
		opts:    o,
		store:   NewStore(o.rows, o.cols),
		graph:   NewGraph(),
		scanner: NewScanner(o.maxRangeCells),
		eval:    ev,
		log:     o.logger,
	}

	for r, row := range snapshot {
		if len(row) > o.cols {
			return nil, fmt.Errorf("snapshot row %d has %d columns, grid allows %d: %w", r+1, len(row), o.cols, ErrOutOfBounds)
		}
		for c, raw := range row {
			if raw == "" {
				continue
			}
			if !isFormula(raw) {
				e.store.cells[r][c] = Literal(raw)
				continue
			}
			e.store.cells[r][c] = Formula(raw, nil, nil)
			e.graph.AddSubscriptions(NewRef(r, c).String(), e.scanner.References(raw))
		}
	}
	e.Recalculate()
	return e, nil
}

// RowCount returns the fixed number of rows.
func (e *Engine) RowCount() int { return e.store.Rows() }

// ColumnCount returns the fixed number of columns.
func (e *Engine) ColumnCount() int { return e.store.Cols() }

// CellAt returns the current state of the cell at (row, col).
func (e *Engine) CellAt(row, col int) (Snapshot, error) {
	c, err := e.store.Get(row, col)
	if err != nil {
		return Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// CellAtLabel returns the current state of the cell with the given label.
func (e *Engine) CellAtLabel(label string) (Snapshot, error) {
	row, col, err := FromLabel(label)
	if err != nil {
		return Snapshot{}, err
	}
	return e.CellAt(row, col)
}

// Edit replaces the content of the cell at (row, col) with raw input and
// recalculates every cell that depends on it. Input starting with "=" is a
// formula, the empty string clears the cell, anything else is a literal.
//
// Evaluation failures never surface here: they are stored on the failing
// cells. The only error is ErrOutOfBounds, in which case nothing changes.
func (e *Engine) Edit(row, col int, raw string) error {
	prev, err := e.store.Get(row, col)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	ref := NewRef(row, col)
	label := ref.String()

	cell := e.evaluate(raw)
	e.store.cells[row][col] = cell

	newRefs := e.scanner.References(cell.FormulaText())
	prevRefs := e.scanner.References(prev.FormulaText())
	added := difference(newRefs, prevRefs)
	removed := difference(prevRefs, newRefs)
	e.graph.AddSubscriptions(label, added)
	e.graph.RemoveSubscriptions(label, removed)
	e.log.Debug("cell edited",
		"cell", label,
		"kind", cell.Kind.String(),
		"refs_added", added,
		"refs_removed", removed,
	)

	e.propagate(ref, cell)
	return nil
}

// EditLabel is Edit addressed by cell label.
func (e *Engine) EditLabel(label, raw string) error {
	row, col, err := FromLabel(label)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	return e.Edit(row, col, raw)
}

// Recalculate re-evaluates every formula cell in dependency order.
func (e *Engine) Recalculate() {
	var roots []string
	e.store.Each(func(row, col int, c Cell) {
		if c.Kind == CellFormula {
			roots = append(roots, NewRef(row, col).String())
		}
	})
	order, cyclic := Order(roots, e.graph.Edges())
	e.markCycles(cyclic)
	for _, label := range order {
		e.reevaluate(label)
	}
	e.log.Debug("full recalculation", "formulas", len(roots), "cyclic", len(cyclic))
}

// Extent returns the number of rows and columns up to and including the
// furthest non-blank cell.
func (e *Engine) Extent() (rows, cols int) {
	return e.store.Extent()
}

// Prune returns snapshots of the occupied part of the grid, trimmed to Extent.
func (e *Engine) Prune() [][]Snapshot {
	cells := e.store.Prune()
	out := make([][]Snapshot, len(cells))
	for r, row := range cells {
		out[r] = make([]Snapshot, len(row))
		for c, cell := range row {
			out[r][c] = cell.Snapshot()
		}
	}
	return out
}

// Subscribers returns the labels of cells whose formulas reference label.
func (e *Engine) Subscribers(label string) []string {
	if canonical, err := canonicalLabel(label); err == nil {
		label = canonical
	}
	return e.graph.Subscribers(label)
}

// Edges returns every dependency edge, sorted.
func (e *Engine) Edges() []Edge {
	return e.graph.Edges()
}

// propagate recomputes the cells transitively subscribed to the edited cell.
// The edited cell itself was evaluated by Edit and is only touched again when
// the edit closed a cycle through it.
func (e *Engine) propagate(ref Ref, cell Cell) {
	start := ref.String()
	edges := e.graph.TransitiveSubscribers(start)
	order, cyclic := Order([]string{start}, edges)

	if !slices.Contains(cyclic, start) {
		e.notify(ref, cell)
	}
	e.markCycles(cyclic)
	for _, label := range order {
		if label == start {
			continue
		}
		e.reevaluate(label)
	}
	e.log.Debug("recalculated", "cell", start, "edges", len(edges), "evaluated", len(order)-1, "cyclic", len(cyclic))
}

func (e *Engine) markCycles(cyclic []string) {
	if len(cyclic) == 0 {
		return
	}
	e.log.Warn("circular reference detected", "cells", cyclic)
	for _, label := range cyclic {
		row, col, ok := e.formulaAt(label)
		if !ok {
			continue
		}
		c := Formula(e.store.cells[row][col].Input, nil, cycleError(label))
		e.store.cells[row][col] = c
		e.notify(NewRef(row, col), c)
	}
}

func (e *Engine) reevaluate(label string) {
	row, col, ok := e.formulaAt(label)
	if !ok {
		return
	}
	c := e.evaluate(e.store.cells[row][col].Input)
	e.store.cells[row][col] = c
	if c.Err != nil {
		e.log.Debug("cell evaluated with error", "cell", label, "error", c.Err.Error())
	} else {
		e.log.Debug("cell evaluated", "cell", label, "value", c.Value)
	}
	e.notify(NewRef(row, col), c)
}

// formulaAt resolves label to an in-bounds formula cell.
func (e *Engine) formulaAt(label string) (row, col int, ok bool) {
	row, col, err := FromLabel(label)
	if err != nil || !e.store.InBounds(row, col) {
		return 0, 0, false
	}
	return row, col, e.store.cells[row][col].Kind == CellFormula
}

// evaluate turns raw input into a cell, running the evaluator for formulas
// against the current grid.
func (e *Engine) evaluate(raw string) Cell {
	if !isFormula(raw) {
		return Literal(raw)
	}
	v, err := e.eval.Evaluate(raw, gridReader{store: e.store})
	if err == nil {
		v, err = normalizeResult(v)
	}
	if err != nil {
		return Formula(raw, nil, asEvalError(err, FunctionError, CodeValue))
	}
	return Formula(raw, v, nil)
}

func (e *Engine) notify(ref Ref, c Cell) {
	if len(e.opts.listeners) == 0 {
		return
	}
	s := c.Snapshot()
	for _, l := range e.opts.listeners {
		l.CellChanged(ref, s)
	}
}

// difference returns the elements of a not in b, keeping a's order.
func difference(a, b []string) []string {
	var out []string
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
