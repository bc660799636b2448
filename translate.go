package gridcalc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/efp"
)

// infixOperators maps spreadsheet operators to expression-language operators.
// "&" becomes "..", which has the same precedence slot (between comparison
// and addition) and is patched into a CONCATENATE call after parsing.
var infixOperators = map[string]string{
	"+":  "+",
	"-":  "-",
	"*":  "*",
	"/":  "/",
	"^":  "^",
	"&":  "..",
	"=":  "==",
	"<>": "!=",
	"<":  "<",
	">":  ">",
	"<=": "<=",
	">=": ">=",
}

// translation is a formula rewritten into expression-language source.
type translation struct {
	source string
	refs   []Ref // distinct referenced cells, in order of appearance
}

type translator struct {
	b             strings.Builder
	refs          []Ref
	seen          map[Ref]bool
	hasFunction   func(name string) bool
	maxRangeCells int
}

// translate tokenises formula (including its prefix) and rewrites it into
// source the expression compiler accepts.
func translate(formula string, hasFunction func(string) bool, maxRangeCells int) (*translation, error) {
	ps := efp.ExcelParser()
	tokens := ps.Parse(formula)
	if len(tokens) == 0 {
		return nil, parseErrorf(CodeError, "empty formula")
	}
	t := &translator{
		seen:          make(map[Ref]bool),
		hasFunction:   hasFunction,
		maxRangeCells: maxRangeCells,
	}
	for _, tok := range tokens {
		if err := t.token(tok); err != nil {
			return nil, err
		}
	}
	return &translation{source: t.b.String(), refs: t.refs}, nil
}

func (t *translator) token(tok efp.Token) error {
	switch tok.TType {
	case efp.TokenTypeOperand:
		return t.operand(tok)
	case efp.TokenTypeFunction:
		if tok.TSubType != efp.TokenSubTypeStart {
			t.b.WriteByte(')')
			return nil
		}
		name := strings.ToUpper(tok.TValue)
		if !t.hasFunction(name) {
			return parseErrorf(CodeName, fmt.Sprintf("unknown function %q", tok.TValue))
		}
		t.b.WriteString(name)
		t.b.WriteByte('(')
	case efp.TokenTypeSubexpression:
		if tok.TSubType == efp.TokenSubTypeStart {
			t.b.WriteByte('(')
		} else {
			t.b.WriteByte(')')
		}
	case efp.TokenTypeArgument:
		t.b.WriteString(", ")
	case efp.TokenTypeOperatorPrefix:
		if tok.TValue == "-" {
			t.b.WriteByte('-')
		}
	case efp.TokenTypeOperatorInfix:
		op, ok := infixOperators[tok.TValue]
		if !ok {
			return parseErrorf(CodeError, fmt.Sprintf("unsupported operator %q", tok.TValue))
		}
		t.b.WriteString(" " + op + " ")
	case efp.TokenTypeOperatorPostfix:
		if tok.TValue != "%" {
			return parseErrorf(CodeError, fmt.Sprintf("unsupported operator %q", tok.TValue))
		}
		t.b.WriteString(" / 100")
	case efp.TokenTypeWhitespace, efp.TokenTypeNoop:
	default:
		return parseErrorf(CodeError, fmt.Sprintf("unexpected %q", tok.TValue))
	}
	return nil
}

func (t *translator) operand(tok efp.Token) error {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		lit, err := floatLiteral(tok.TValue)
		if err != nil {
			return err
		}
		t.b.WriteString(lit)
	case efp.TokenSubTypeText:
		t.b.WriteString(strconv.Quote(tok.TValue))
	case efp.TokenSubTypeLogical:
		t.b.WriteString(strings.ToLower(tok.TValue))
	case efp.TokenSubTypeError:
		return newEvalError(errorCodeKind(tok.TValue), tok.TValue, "error literal in formula")
	case efp.TokenSubTypeRange:
		return t.reference(tok.TValue)
	default:
		return parseErrorf(CodeError, fmt.Sprintf("unexpected operand %q", tok.TValue))
	}
	return nil
}

func (t *translator) reference(text string) error {
	switch upper := strings.ToUpper(text); {
	case upper == "TRUE" || upper == "FALSE":
		t.b.WriteString(strings.ToLower(upper))
		return nil
	case strings.Contains(text, "!"):
		return refError(fmt.Sprintf("%s: references to other sheets are not supported", text))
	case strings.Contains(text, ":"):
		rng, err := ParseRange(text)
		if err != nil {
			return refError(err.Error())
		}
		if rng.Len() > t.maxRangeCells {
			return refError(fmt.Sprintf("range %s exceeds %d cells", rng, t.maxRangeCells))
		}
		labels := make([]string, 0, rng.Len())
		for _, ref := range rng.Refs() {
			labels = append(labels, t.addRef(ref))
		}
		t.b.WriteString("[" + strings.Join(labels, ", ") + "]")
		return nil
	}
	if _, err := canonicalLabel(text); err != nil {
		return parseErrorf(CodeName, fmt.Sprintf("unknown name %q", text))
	}
	ref, err := ParseRef(text)
	if err != nil {
		return refError(err.Error())
	}
	t.b.WriteString(t.addRef(ref))
	return nil
}

func (t *translator) addRef(ref Ref) string {
	if !t.seen[ref] {
		t.seen[ref] = true
		t.refs = append(t.refs, ref)
	}
	return ref.String()
}

// floatLiteral rewrites a number token so the expression compiler types it as
// float64. Integer literals would otherwise compile to int and wrap on
// overflow.
func floatLiteral(text string) (string, error) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) {
		return "", numError(fmt.Sprintf("invalid number %q", text))
	}
	lit := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(lit, ".e") {
		lit += ".0"
	}
	return lit, nil
}
