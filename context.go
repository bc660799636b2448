package gridcalc

// gridReader is the read-only view of a Store handed to the evaluator.
//
// Blank cells read as 0. A formula cell whose last evaluation failed reads as
// its error, so the failure surfaces in every cell that references it.
type gridReader struct {
	store *Store
}

func (g gridReader) ReadCell(row, col int) (any, error) {
	if !g.store.InBounds(row, col) {
		return nil, refError(NewRef(row, col).String() + " is outside the grid")
	}
	c := g.store.cells[row][col]
	switch c.Kind {
	case CellFormula:
		if c.Err != nil {
			return nil, c.Err
		}
		if c.Value == nil {
			return 0.0, nil
		}
		return c.Value, nil
	case CellLiteral:
		return c.Value, nil
	default:
		return 0.0, nil
	}
}

// buildEnv resolves every referenced cell into the variable map a compiled
// formula runs against. The first failing reference aborts the evaluation.
func buildEnv(refs []Ref, cells CellReader) (map[string]any, error) {
	env := make(map[string]any, len(refs))
	for _, ref := range refs {
		v, err := cells.ReadCell(ref.Row, ref.Col)
		if err != nil {
			return nil, asEvalError(err, ReferenceError, CodeRef)
		}
		env[ref.String()] = v
	}
	return env, nil
}
