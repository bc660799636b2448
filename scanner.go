package gridcalc

import (
	"strings"

	"github.com/xuri/efp"
)

// DefaultMaxRangeCells bounds how many cells a single range reference may
// expand to.
const DefaultMaxRangeCells = 10000

// Scanner extracts the cell labels a formula references.
//
// It tokenises with the Excel formula tokenizer, so label-shaped text inside
// string literals is ignored. Labels are matched textually: nothing is checked
// against grid bounds here.
type Scanner struct {
	maxRangeCells int
}

// NewScanner creates a Scanner. maxRangeCells <= 0 selects DefaultMaxRangeCells.
func NewScanner(maxRangeCells int) *Scanner {
	if maxRangeCells <= 0 {
		maxRangeCells = DefaultMaxRangeCells
	}
	return &Scanner{maxRangeCells: maxRangeCells}
}

// References returns the distinct labels referenced by formula, in order of
// first appearance, with fixed-reference markers stripped. Text without the
// formula prefix yields nil.
//
// A range such as "A1:B3" contributes every label inside it. A range larger
// than the configured limit contributes only its corners.
func (s *Scanner) References(formula string) []string {
	if !isFormula(formula) {
		return nil
	}
	var refs []string
	seen := make(map[string]bool)
	add := func(label string) {
		if !seen[label] {
			seen[label] = true
			refs = append(refs, label)
		}
	}

	ps := efp.ExcelParser()
	for _, tok := range ps.Parse(formula) {
		if tok.TType != efp.TokenTypeOperand || tok.TSubType != efp.TokenSubTypeRange {
			continue
		}
		s.scanOperand(tok.TValue, add)
	}
	return refs
}

func (s *Scanner) scanOperand(operand string, add func(string)) {
	if strings.Contains(operand, ":") {
		if rng, err := ParseRange(operand); err == nil && rng.Len() <= s.maxRangeCells {
			for _, ref := range rng.Refs() {
				add(ref.String())
			}
			return
		}
	}
	for _, part := range strings.Split(operand, ":") {
		if label, err := canonicalLabel(part); err == nil {
			add(label)
		}
	}
}
