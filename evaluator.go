package gridcalc

import (
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// FormulaEvaluator computes a formula against a read-only view of the grid.
// Failures are returned as *EvalError values, never raised.
type FormulaEvaluator interface {
	Evaluate(formula string, cells CellReader) (any, error)
}

// CellReader is the read-only capability an evaluator uses to resolve cell
// references.
type CellReader interface {
	ReadCell(row, col int) (any, error)
}

// ExprEvaluator implements FormulaEvaluator using expr-lang/expr.
type ExprEvaluator struct {
	functions     map[string]Function
	options       []expr.Option
	maxRangeCells int
	cache         sync.Map // formula source → *compiledFormula
}

type compiledFormula struct {
	program *vm.Program
	refs    []Ref
}

// NewExprEvaluator creates an evaluator with the built-in function library
// plus extra. Entries in extra override built-ins of the same name.
func NewExprEvaluator(extra map[string]Function, maxRangeCells int) *ExprEvaluator {
	if maxRangeCells <= 0 {
		maxRangeCells = DefaultMaxRangeCells
	}
	functions := builtinFunctions()
	for name, fn := range extra {
		functions[name] = fn
	}
	options := []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Patch(formulaPatcher{}),
	}
	for name, fn := range functions {
		options = append(options, expr.Function(name, fn))
	}
	return &ExprEvaluator{
		functions:     functions,
		options:       options,
		maxRangeCells: maxRangeCells,
	}
}

// Evaluate runs formula (including its "=" prefix) resolving references
// through cells.
func (e *ExprEvaluator) Evaluate(formula string, cells CellReader) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, valueError(fmt.Sprint(r))
		}
	}()
	cf, err := e.compile(formula)
	if err != nil {
		return nil, err
	}
	env, err := buildEnv(cf.refs, cells)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(cf.program, env)
	if err != nil {
		return nil, asEvalError(err, FunctionError, CodeValue)
	}
	return normalizeResult(out)
}

// Check reports whether formula compiles, without evaluating it.
func (e *ExprEvaluator) Check(formula string) error {
	_, err := e.compile(formula)
	return err
}

func (e *ExprEvaluator) hasFunction(name string) bool {
	_, ok := e.functions[name]
	return ok
}

func (e *ExprEvaluator) compile(formula string) (*compiledFormula, error) {
	if cached, ok := e.cache.Load(formula); ok {
		return cached.(*compiledFormula), nil
	}
	if !isFormula(formula) {
		return nil, parseErrorf(CodeError, "missing formula prefix")
	}
	tr, err := translate(formula, e.hasFunction, e.maxRangeCells)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(tr.source, e.options...)
	if err != nil {
		// Source that parses but fails to compile is a type mismatch
		// such as TRUE + 1, not a syntax error.
		if _, perr := parser.Parse(tr.source); perr == nil {
			return nil, valueError(firstLine(err.Error()))
		}
		return nil, parseErrorf(CodeError, firstLine(err.Error()))
	}
	cf := &compiledFormula{program: program, refs: tr.refs}
	e.cache.Store(formula, cf)
	return cf, nil
}

// normalizeResult converts numbers to float64 and rejects values a single
// cell cannot hold.
func normalizeResult(out any) (any, error) {
	if n, ok := numeric(out); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, numError("result is not a finite number")
		}
		return n, nil
	}
	switch v := out.(type) {
	case string, bool:
		return v, nil
	case []any:
		return nil, valueError("a range cannot be shown in a single cell")
	default:
		return nil, valueError(fmt.Sprintf("unsupported result %T", out))
	}
}

// formulaPatcher rewrites operators whose expression-language semantics
// differ from spreadsheet semantics:
//
//	a / b           → DIVIDE(a, b)        division by zero is #DIV/0!, not +Inf
//	a .. b          → CONCATENATE(a, b)   translated from "&"
//	IF(c, a[, b])   → truthy(c) ? a : b   untaken branch is never evaluated
type formulaPatcher struct{}

func (formulaPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		switch n.Operator {
		case "/":
			ast.Patch(node, callNode("DIVIDE", n.Left, n.Right))
		case "..":
			ast.Patch(node, callNode("CONCATENATE", n.Left, n.Right))
		}
	case *ast.CallNode:
		ident, ok := n.Callee.(*ast.IdentifierNode)
		if !ok || ident.Value != "IF" || len(n.Arguments) < 2 || len(n.Arguments) > 3 {
			return
		}
		var otherwise ast.Node = &ast.BoolNode{Value: false}
		if len(n.Arguments) == 3 {
			otherwise = n.Arguments[2]
		}
		ast.Patch(node, &ast.ConditionalNode{
			Cond: callNode(truthyFunc, n.Arguments[0]),
			Exp1: n.Arguments[1],
			Exp2: otherwise,
		})
	}
}

func callNode(name string, args ...ast.Node) *ast.CallNode {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: name},
		Arguments: args,
	}
}
