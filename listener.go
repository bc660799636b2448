package gridcalc

// RecalcListener is notified after a cell is written during an edit: first
// the edited cell, then every recomputed subscriber in evaluation order.
// Implement this interface to repaint only the cells an edit touched.
type RecalcListener interface {
	CellChanged(ref Ref, cell Snapshot)
}

// ListenerFunc adapts a plain function to RecalcListener.
type ListenerFunc func(ref Ref, cell Snapshot)

// CellChanged calls f(ref, cell).
func (f ListenerFunc) CellChanged(ref Ref, cell Snapshot) {
	f(ref, cell)
}
