package gridcalc

import (
	"errors"
	"strings"
)

// ErrOutOfBounds is returned when a row or column index falls outside the grid.
var ErrOutOfBounds = errors.New("cell index out of bounds")

// ErrorKind classifies a formula failure. The zero value is NoError.
type ErrorKind int

const (
	NoError        ErrorKind = iota // cell holds a value
	ParseError                      // malformed formula syntax or unknown name
	ReferenceError                  // reference outside the grid or otherwise unresolvable
	FunctionError                   // invalid function arguments, division by zero
	CycleError                      // cell participates in a circular reference
)

// String returns a human-readable name for the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "NoError"
	case ParseError:
		return "ParseError"
	case ReferenceError:
		return "ReferenceError"
	case FunctionError:
		return "FunctionError"
	case CycleError:
		return "CycleError"
	default:
		return "Unknown"
	}
}

// Display codes stored as a cell's error text.
const (
	CodeError = "#ERROR!"
	CodeName  = "#NAME?"
	CodeRef   = "#REF!"
	CodeDiv0  = "#DIV/0!"
	CodeValue = "#VALUE!"
	CodeNum   = "#NUM!"
	CodeNA    = "#N/A"
	CodeCycle = "#CYCLE!"
)

// EvalError is the per-cell outcome of a failed evaluation. It is stored on
// the cell instead of aborting recalculation.
type EvalError struct {
	Kind   ErrorKind
	Code   string
	Detail string
}

func (e *EvalError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func newEvalError(kind ErrorKind, code, detail string) *EvalError {
	return &EvalError{Kind: kind, Code: code, Detail: detail}
}

func parseErrorf(code, detail string) *EvalError {
	return newEvalError(ParseError, code, detail)
}

func refError(detail string) *EvalError {
	return newEvalError(ReferenceError, CodeRef, detail)
}

func valueError(detail string) *EvalError {
	return newEvalError(FunctionError, CodeValue, detail)
}

func divZeroError() *EvalError {
	return newEvalError(FunctionError, CodeDiv0, "division by zero")
}

func numError(detail string) *EvalError {
	return newEvalError(FunctionError, CodeNum, detail)
}

func cycleError(label string) *EvalError {
	return newEvalError(CycleError, CodeCycle, "circular reference involving "+label)
}

// codeKinds maps display codes to the kind they are reported under when an
// error has to be recovered from its text only.
var codeKinds = []struct {
	code string
	kind ErrorKind
}{
	{CodeCycle, CycleError},
	{CodeDiv0, FunctionError},
	{CodeNum, FunctionError},
	{CodeRef, ReferenceError},
	{CodeName, ParseError},
	{CodeNA, FunctionError},
	{CodeValue, FunctionError},
	{CodeError, ParseError},
}

// asEvalError converts any error into an *EvalError. Errors that already are
// (or wrap) an *EvalError are returned unchanged; otherwise the message is
// searched for a display code and falls back to fallback.
func asEvalError(err error, fallback ErrorKind, fallbackCode string) *EvalError {
	if err == nil {
		return nil
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee
	}
	msg := firstLine(err.Error())
	for _, ck := range codeKinds {
		if idx := strings.Index(msg, ck.code); idx >= 0 {
			detail := strings.TrimSpace(strings.TrimPrefix(msg[idx+len(ck.code):], ":"))
			return newEvalError(ck.kind, ck.code, detail)
		}
	}
	return newEvalError(fallback, fallbackCode, msg)
}

// errorCodeKind returns the kind for a literal error operand such as "#REF!".
func errorCodeKind(code string) ErrorKind {
	for _, ck := range codeKinds {
		if ck.code == code {
			return ck.kind
		}
	}
	return ParseError
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
