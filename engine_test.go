package gridcalc

import (
	"bytes"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Helpers
// =============================================================================

// recorder collects listener notifications in order.
type recorder struct {
	labels []string
	cells  []Snapshot
}

func (r *recorder) CellChanged(ref Ref, cell Snapshot) {
	r.labels = append(r.labels, ref.String())
	r.cells = append(r.cells, cell)
}

func (r *recorder) reset() {
	r.labels = nil
	r.cells = nil
}

func mustEngine(t *testing.T, snapshot [][]string, opts ...Option) *Engine {
	t.Helper()
	e, err := New(snapshot, opts...)
	require.NoError(t, err)
	return e
}

func mustEdit(t *testing.T, e *Engine, label, raw string) {
	t.Helper()
	require.NoError(t, e.EditLabel(label, raw))
}

func valueAt(t *testing.T, e *Engine, label string) any {
	t.Helper()
	s, err := e.CellAtLabel(label)
	require.NoError(t, err)
	require.False(t, s.HasError(), "%s has error %s", label, s.Error)
	return s.Value
}

func errorAt(t *testing.T, e *Engine, label string) Snapshot {
	t.Helper()
	s, err := e.CellAtLabel(label)
	require.NoError(t, err)
	require.True(t, s.HasError(), "%s has no error (value %v)", label, s.Value)
	return s
}

// scenario builds B2=156, B3==B2, B4==B2 + MULTIPLY(B3, 2).
func scenario() [][]string {
	return [][]string{
		{},
		{"", "156"},
		{"", "=B2"},
		{"", "=B2 + MULTIPLY(B3, 2)"},
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_EvaluatesSnapshot(t *testing.T) {
	e := mustEngine(t, scenario())
	assert.Equal(t, DefaultRows, e.RowCount())
	assert.Equal(t, DefaultColumns, e.ColumnCount())
	assert.Equal(t, 156.0, valueAt(t, e, "B2"))
	assert.Equal(t, 156.0, valueAt(t, e, "B3"))
	assert.Equal(t, 468.0, valueAt(t, e, "B4"))
}

func TestNew_FormulaBeforeItsInputs(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"=B1 * 2", "=C1 + 1", "10"},
	})
	assert.Equal(t, 22.0, valueAt(t, e, "A1"))
	assert.Equal(t, 11.0, valueAt(t, e, "B1"))
}

func TestNew_InvalidBounds(t *testing.T) {
	_, err := New(nil, WithBounds(0, 5))
	assert.Error(t, err)
	_, err = New(nil, WithBounds(5, -1))
	assert.Error(t, err)
	_, err = New(nil, WithBounds(2_000_000, 5))
	assert.Error(t, err)
}

func TestNew_SnapshotTooLarge(t *testing.T) {
	_, err := New([][]string{{"1"}, {"2"}, {"3"}}, WithBounds(2, 2))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = New([][]string{{"1", "2", "3"}}, WithBounds(2, 2))
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestNew_CycleInSnapshot(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"=B1", "=A1", "=A1 + 1", "7"},
	})
	assert.Equal(t, CodeCycle, errorAt(t, e, "A1").Error)
	assert.Equal(t, CodeCycle, errorAt(t, e, "B1").Error)
	assert.Equal(t, CycleError, errorAt(t, e, "C1").ErrorKind)
	assert.Equal(t, 7.0, valueAt(t, e, "D1"))
}

// =============================================================================
// Edit and propagation
// =============================================================================

func TestEngine_EditPropagates(t *testing.T) {
	e := mustEngine(t, scenario())
	mustEdit(t, e, "B2", "200")
	assert.Equal(t, 200.0, valueAt(t, e, "B2"))
	assert.Equal(t, 200.0, valueAt(t, e, "B3"))
	assert.Equal(t, 600.0, valueAt(t, e, "B4"))
}

func TestEngine_EditByIndex(t *testing.T) {
	e := mustEngine(t, scenario())
	require.NoError(t, e.Edit(1, 1, "1"))
	assert.Equal(t, 3.0, valueAt(t, e, "B4"))
}

func TestEngine_EditFormulaRewiresDependencies(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"1", "2", "=A1"},
	})
	assert.Equal(t, []string{"C1"}, e.Subscribers("A1"))

	mustEdit(t, e, "C1", "=B1 * 10")
	assert.Equal(t, 20.0, valueAt(t, e, "C1"))
	assert.Empty(t, e.Subscribers("A1"))
	assert.Equal(t, []string{"C1"}, e.Subscribers("B1"))

	mustEdit(t, e, "A1", "100")
	assert.Equal(t, 20.0, valueAt(t, e, "C1"))
	mustEdit(t, e, "B1", "3")
	assert.Equal(t, 30.0, valueAt(t, e, "C1"))
}

func TestEngine_ClearFormulaDropsEdges(t *testing.T) {
	e := mustEngine(t, scenario())
	mustEdit(t, e, "B4", "")
	assert.Equal(t, []Edge{{From: "B2", To: "B3"}}, e.Edges())

	s, err := e.CellAtLabel("B4")
	require.NoError(t, err)
	assert.Equal(t, CellBlank, s.Kind)
	assert.Nil(t, s.Value)
}

func TestEngine_ClearedInputReadsAsZero(t *testing.T) {
	e := mustEngine(t, scenario())
	mustEdit(t, e, "B2", "")
	assert.Equal(t, 0.0, valueAt(t, e, "B3"))
	assert.Equal(t, 0.0, valueAt(t, e, "B4"))
}

func TestEngine_EdgesIdempotent(t *testing.T) {
	e := mustEngine(t, scenario())
	before := e.Edges()
	mustEdit(t, e, "B4", "=B2 + MULTIPLY(B3, 2)")
	mustEdit(t, e, "B4", "=B2 + MULTIPLY(B3, 2)")
	assert.Equal(t, before, e.Edges())
	assert.Equal(t, []Edge{
		{From: "B2", To: "B3"},
		{From: "B2", To: "B4"},
		{From: "B3", To: "B4"},
	}, before)
}

func TestEngine_DependencyCompleteness(t *testing.T) {
	e := mustEngine(t, nil, WithBounds(10, 10))
	mustEdit(t, e, "A1", "1")
	mustEdit(t, e, "B1", "=A1 + 1")
	mustEdit(t, e, "C1", "=B1 + A1")
	mustEdit(t, e, "D1", "=SUM(A1:C1)")
	mustEdit(t, e, "E1", `=IF(D1 > 6, "big", "small")`)
	assert.Equal(t, "small", valueAt(t, e, "E1"))

	mustEdit(t, e, "A1", "2")
	assert.Equal(t, 3.0, valueAt(t, e, "B1"))
	assert.Equal(t, 5.0, valueAt(t, e, "C1"))
	assert.Equal(t, 10.0, valueAt(t, e, "D1"))
	assert.Equal(t, "big", valueAt(t, e, "E1"))
}

func TestEngine_LabelSpellingsShareOneDependency(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"1", "=A01 + 1", "=$a$1 * 2", "=a1 - 1"},
	})
	assert.Equal(t, []Edge{
		{From: "A1", To: "B1"},
		{From: "A1", To: "C1"},
		{From: "A1", To: "D1"},
	}, e.Edges())

	mustEdit(t, e, "A1", "10")
	assert.Equal(t, 11.0, valueAt(t, e, "B1"))
	assert.Equal(t, 20.0, valueAt(t, e, "C1"))
	assert.Equal(t, 9.0, valueAt(t, e, "D1"))
}

func TestEngine_LargeIntegerArithmetic(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"=10000000000*10000000000", "=3037000500*3037000500", "=A1 + 1"},
	})
	assert.Equal(t, 1e20, valueAt(t, e, "A1"))
	assert.InDelta(t, 9.223372037e18, valueAt(t, e, "B1"), 1e9)
	assert.Equal(t, 1e20, valueAt(t, e, "C1"))
}

func TestEngine_RangeDependency(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"1", "=SUM(A1:A3)"},
		{"2"},
		{"3"},
	})
	assert.Equal(t, 6.0, valueAt(t, e, "B1"))
	mustEdit(t, e, "A2", "10")
	assert.Equal(t, 14.0, valueAt(t, e, "B1"))
	assert.Equal(t, []string{"B1"}, e.Subscribers("A3"))
}

func TestEngine_EditOutOfBounds(t *testing.T) {
	rec := &recorder{}
	e := mustEngine(t, scenario(), WithBounds(5, 5), WithListener(rec))
	rec.reset()
	before := e.Prune()

	assert.ErrorIs(t, e.Edit(5, 0, "1"), ErrOutOfBounds)
	assert.ErrorIs(t, e.Edit(0, -1, "1"), ErrOutOfBounds)
	assert.ErrorIs(t, e.EditLabel("F1", "1"), ErrOutOfBounds)
	assert.Error(t, e.EditLabel("not a label", "1"))

	assert.Equal(t, before, e.Prune())
	assert.Empty(t, rec.labels)
}

func TestEngine_CellAtOutOfBounds(t *testing.T) {
	e := mustEngine(t, nil, WithBounds(2, 2))
	_, err := e.CellAt(2, 2)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = e.CellAtLabel("C1")
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestEngine_LiteralRoundTrip(t *testing.T) {
	e := mustEngine(t, nil)
	mustEdit(t, e, "A1", "hello")
	mustEdit(t, e, "A2", "3.50")
	mustEdit(t, e, "A3", "true")

	assert.Equal(t, "hello", valueAt(t, e, "A1"))
	assert.Equal(t, 3.5, valueAt(t, e, "A2"))
	assert.Equal(t, true, valueAt(t, e, "A3"))

	s, err := e.CellAtLabel("A1")
	require.NoError(t, err)
	assert.Equal(t, CellLiteral, s.Kind)
	assert.Empty(t, s.Formula)
}

func TestEngine_FormulaSnapshot(t *testing.T) {
	e := mustEngine(t, scenario())
	s, err := e.CellAt(3, 1)
	require.NoError(t, err)
	assert.Equal(t, CellFormula, s.Kind)
	assert.Equal(t, "=B2 + MULTIPLY(B3, 2)", s.Formula)
	assert.Equal(t, "468", s.Text())
}

// =============================================================================
// Errors
// =============================================================================

func TestEngine_ErrorsStayOnCells(t *testing.T) {
	e := mustEngine(t, nil, WithBounds(5, 5))
	mustEdit(t, e, "A1", "=1/0")
	mustEdit(t, e, "A2", "=NOSUCH(1)")
	mustEdit(t, e, "A3", "=Z99")
	mustEdit(t, e, "A4", "=1 +")
	mustEdit(t, e, "A5", "text")
	mustEdit(t, e, "B1", "=A5 * 2")

	s := errorAt(t, e, "A1")
	assert.Equal(t, CodeDiv0, s.Error)
	assert.Equal(t, FunctionError, s.ErrorKind)

	s = errorAt(t, e, "A2")
	assert.Equal(t, CodeName, s.Error)
	assert.Equal(t, ParseError, s.ErrorKind)

	s = errorAt(t, e, "A3")
	assert.Equal(t, CodeRef, s.Error)
	assert.Equal(t, ReferenceError, s.ErrorKind)

	s = errorAt(t, e, "A4")
	assert.Equal(t, CodeError, s.Error)
	assert.Equal(t, ParseError, s.ErrorKind)

	s = errorAt(t, e, "B1")
	assert.Equal(t, CodeValue, s.Error)
	assert.Equal(t, FunctionError, s.ErrorKind)
}

func TestEngine_ErrorPropagatesAndRecovers(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"0", "=10 / A1", "=B1 + 1"},
	})
	assert.Equal(t, CodeDiv0, errorAt(t, e, "B1").Error)
	assert.Equal(t, CodeDiv0, errorAt(t, e, "C1").Error)

	mustEdit(t, e, "A1", "5")
	assert.Equal(t, 2.0, valueAt(t, e, "B1"))
	assert.Equal(t, 3.0, valueAt(t, e, "C1"))
}

func TestEngine_ErrorInUntakenBranchStillPropagates(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"=1/0", "=IF(TRUE, 1, A1)", "=IF(TRUE, 1, 1/0)"},
	})
	assert.Equal(t, CodeDiv0, errorAt(t, e, "B1").Error)
	assert.Equal(t, 1.0, valueAt(t, e, "C1"))
}

// =============================================================================
// Cycles
// =============================================================================

func TestEngine_SelfReference(t *testing.T) {
	e := mustEngine(t, nil)
	mustEdit(t, e, "A1", "=A1 + 1")
	s := errorAt(t, e, "A1")
	assert.Equal(t, CodeCycle, s.Error)
	assert.Equal(t, CycleError, s.ErrorKind)
}

func TestEngine_CycleContainment(t *testing.T) {
	rec := &recorder{}
	e := mustEngine(t, [][]string{
		{"1", "=A1 + 1", "=B1 + 1", "=C1 * 2", "99"},
	}, WithListener(rec))
	assert.Equal(t, 6.0, valueAt(t, e, "D1"))

	// B1 -> C1 -> B1 closes a cycle; D1 is downstream, A1 and E1 are not.
	mustEdit(t, e, "B1", "=C1 + A1")
	assert.Equal(t, CodeCycle, errorAt(t, e, "B1").Error)
	assert.Equal(t, CodeCycle, errorAt(t, e, "C1").Error)
	assert.Equal(t, CycleError, errorAt(t, e, "D1").ErrorKind)
	assert.Equal(t, 1.0, valueAt(t, e, "A1"))
	assert.Equal(t, 99.0, valueAt(t, e, "E1"))

	// Edits outside the cycle keep working.
	mustEdit(t, e, "E1", "=A1 * 3")
	assert.Equal(t, 3.0, valueAt(t, e, "E1"))

	// Breaking the cycle restores every cell.
	mustEdit(t, e, "B1", "=A1 + 1")
	assert.Equal(t, 2.0, valueAt(t, e, "B1"))
	assert.Equal(t, 3.0, valueAt(t, e, "C1"))
	assert.Equal(t, 6.0, valueAt(t, e, "D1"))
}

func TestEngine_CycleThroughLiteralEdit(t *testing.T) {
	e := mustEngine(t, [][]string{
		{"=B1", "=A1", "=A1 + 1"},
	})
	mustEdit(t, e, "B1", "5")
	assert.Equal(t, 5.0, valueAt(t, e, "A1"))
	assert.Equal(t, 6.0, valueAt(t, e, "C1"))
}

func TestEngine_CycleTerminates(t *testing.T) {
	e := mustEngine(t, nil, WithBounds(5, 5))
	labels := []string{"A1", "A2", "A3", "A4", "A5"}
	for i, label := range labels {
		mustEdit(t, e, label, "="+labels[(i+1)%len(labels)]+" + 1")
	}
	for _, label := range labels {
		assert.Equal(t, CodeCycle, errorAt(t, e, label).Error, label)
	}
}

// =============================================================================
// Listeners and determinism
// =============================================================================

func TestEngine_ListenerOrder(t *testing.T) {
	rec := &recorder{}
	e := mustEngine(t, scenario(), WithListener(rec))
	assert.Equal(t, []string{"B3", "B4"}, rec.labels)

	rec.reset()
	mustEdit(t, e, "B2", "200")
	assert.Equal(t, []string{"B2", "B3", "B4"}, rec.labels)
	assert.Equal(t, "600", rec.cells[2].Text())
}

func TestEngine_ListenerFunc(t *testing.T) {
	var seen []string
	e := mustEngine(t, nil, WithListener(ListenerFunc(func(ref Ref, cell Snapshot) {
		seen = append(seen, ref.String()+"="+cell.Text())
	})))
	mustEdit(t, e, "C2", "7")
	assert.Equal(t, []string{"C2=7"}, seen)
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() []string {
		rec := &recorder{}
		e := mustEngine(t, nil, WithBounds(10, 10), WithListener(rec))
		mustEdit(t, e, "A1", "1")
		mustEdit(t, e, "B1", "=A1 + 1")
		mustEdit(t, e, "C1", "=A1 * 2")
		mustEdit(t, e, "D1", "=B1 + C1")
		mustEdit(t, e, "E1", "=D1 + A1")
		rec.reset()
		mustEdit(t, e, "A1", "5")
		return rec.labels
	}
	first := run()
	for range 5 {
		assert.Equal(t, first, run())
	}
	assert.Equal(t, "A1", first[0])
	pos := func(label string) int { return slices.Index(first, label) }
	assert.Less(t, pos("B1"), pos("D1"))
	assert.Less(t, pos("C1"), pos("D1"))
	assert.Less(t, pos("D1"), pos("E1"))
}

func TestEngine_EachAffectedCellEvaluatedOnce(t *testing.T) {
	rec := &recorder{}
	e := mustEngine(t, nil, WithBounds(10, 10), WithListener(rec))
	mustEdit(t, e, "A1", "1")
	mustEdit(t, e, "B1", "=A1")
	mustEdit(t, e, "B2", "=A1")
	mustEdit(t, e, "C1", "=B1 + B2")
	mustEdit(t, e, "D1", "=C1 + B1 + A1")
	rec.reset()

	mustEdit(t, e, "A1", "2")
	assert.ElementsMatch(t, []string{"A1", "B1", "B2", "C1", "D1"}, rec.labels)
	assert.Equal(t, 8.0, valueAt(t, e, "D1"))
}

// =============================================================================
// Options and inspection
// =============================================================================

func TestEngine_WithFunction(t *testing.T) {
	e := mustEngine(t, [][]string{{"4", "=twice(A1)"}}, WithFunction("twice", func(args ...any) (any, error) {
		n, err := toNumber(args[0])
		return n * 2, err
	}))
	assert.Equal(t, 8.0, valueAt(t, e, "B1"))
}

type constEvaluator struct{ value any }

func (c constEvaluator) Evaluate(string, CellReader) (any, error) { return c.value, nil }

func TestEngine_WithEvaluator(t *testing.T) {
	e := mustEngine(t, [][]string{{"=anything"}}, WithEvaluator(constEvaluator{value: 42}))
	assert.Equal(t, 42.0, valueAt(t, e, "A1"))
	assert.Empty(t, e.Validate())
}

func TestEngine_WithMaxRangeCells(t *testing.T) {
	e := mustEngine(t, [][]string{{"=SUM(B1:D1)"}}, WithMaxRangeCells(2))
	assert.Equal(t, CodeRef, errorAt(t, e, "A1").Error)
	assert.Equal(t, []string{"A1"}, e.Subscribers("D1"))
	assert.Empty(t, e.Subscribers("C1"))
}

func TestEngine_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := mustEngine(t, nil, WithLogger(logger))
	mustEdit(t, e, "A1", "=A1")
	out := buf.String()
	assert.Contains(t, out, "cell edited")
	assert.Contains(t, out, "circular reference detected")
	assert.True(t, strings.Contains(out, "cell=A1"))
}

func TestEngine_ExtentAndPrune(t *testing.T) {
	e := mustEngine(t, scenario())
	rows, cols := e.Extent()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 2, cols)

	grid := e.Prune()
	require.Len(t, grid, 4)
	assert.Len(t, grid[3], 2)
	assert.Equal(t, "468", grid[3][1].Text())
	assert.Equal(t, CellBlank, grid[0][0].Kind)

	mustEdit(t, e, "B4", "")
	mustEdit(t, e, "B3", "")
	rows, cols = e.Extent()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
}

func TestEngine_SubscribersAcceptsAnyLabelForm(t *testing.T) {
	e := mustEngine(t, scenario())
	assert.Equal(t, []string{"B3", "B4"}, e.Subscribers("$b$2"))
	assert.Empty(t, e.Subscribers("junk"))
}

func TestEngine_Recalculate(t *testing.T) {
	calls := 0
	e := mustEngine(t, [][]string{{"1", "=A1 + 1"}}, WithListener(ListenerFunc(func(Ref, Snapshot) { calls++ })))
	calls = 0
	e.Recalculate()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2.0, valueAt(t, e, "B1"))
}
