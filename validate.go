package gridcalc

import (
	"fmt"
	"slices"
)

// Severity indicates the severity of a validation issue.
type Severity int

const (
	SeverityError   Severity = iota // Cell cannot produce a value
	SeverityWarning                 // Cell may produce unexpected results
)

// ValidationIssue represents a single problem found in a formula cell.
type ValidationIssue struct {
	Severity Severity
	Ref      Ref
	Message  string
}

// String formats the issue as "[ERROR] B4: message" or "[WARN] ...".
func (v ValidationIssue) String() string {
	sev := "ERROR"
	if v.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s: %s", sev, v.Ref, v.Message)
}

// formulaChecker is implemented by evaluators that can check a formula's
// syntax without running it.
type formulaChecker interface {
	Check(formula string) error
}

// Validate statically checks every formula cell without changing the grid.
// Issues are reported in row-major order, followed by cycle members in
// row-major order.
func (e *Engine) Validate() []ValidationIssue {
	var issues []ValidationIssue
	var formulas []string
	checker, _ := e.eval.(formulaChecker)

	e.store.Each(func(row, col int, c Cell) {
		if c.Kind != CellFormula {
			return
		}
		ref := NewRef(row, col)
		formulas = append(formulas, ref.String())
		if checker != nil {
			if err := checker.Check(c.Input); err != nil {
				issues = append(issues, ValidationIssue{
					Severity: SeverityError,
					Ref:      ref,
					Message:  fmt.Sprintf("invalid formula %q: %v", c.Input, err),
				})
				return
			}
		}
		issues = append(issues, e.validateReferences(ref, c.Input)...)
	})

	_, cyclic := Order(formulas, e.graph.Edges())
	var members []Ref
	for _, label := range cyclic {
		if ref, err := ParseRef(label); err == nil {
			members = append(members, ref)
		}
	}
	slices.SortFunc(members, func(a, b Ref) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return a.Col - b.Col
	})
	for _, ref := range members {
		issues = append(issues, ValidationIssue{
			Severity: SeverityError,
			Ref:      ref,
			Message:  "part of a circular reference",
		})
	}
	return issues
}

// validateReferences checks that every referenced cell exists and flags
// references to blank cells, which read as 0.
func (e *Engine) validateReferences(ref Ref, formula string) []ValidationIssue {
	var issues []ValidationIssue
	for _, label := range e.scanner.References(formula) {
		target, err := ParseRef(label)
		if err != nil || !e.store.InBounds(target.Row, target.Col) {
			issues = append(issues, ValidationIssue{
				Severity: SeverityError,
				Ref:      ref,
				Message:  fmt.Sprintf("reference %s is outside the %dx%d grid", label, e.store.Rows(), e.store.Cols()),
			})
			continue
		}
		if e.store.cells[target.Row][target.Col].IsBlank() {
			issues = append(issues, ValidationIssue{
				Severity: SeverityWarning,
				Ref:      ref,
				Message:  fmt.Sprintf("reference %s points to a blank cell", label),
			})
		}
	}
	return issues
}
