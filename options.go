package gridcalc

import (
	"log/slog"
	"strings"
)

// Default grid bounds.
const (
	DefaultRows    = 50
	DefaultColumns = 50
)

// Options holds configuration for the Engine.
type Options struct {
	rows          int
	cols          int
	logger        *slog.Logger
	evaluator     FormulaEvaluator
	functions     map[string]Function
	listeners     []RecalcListener
	maxRangeCells int
}

func defaultOptions() *Options {
	return &Options{
		rows:          DefaultRows,
		cols:          DefaultColumns,
		logger:        slog.New(slog.DiscardHandler),
		maxRangeCells: DefaultMaxRangeCells,
	}
}

// Option configures the Engine.
type Option func(*Options)

// WithBounds sets the fixed grid size (default: 50 × 50).
func WithBounds(rows, cols int) Option {
	return func(o *Options) {
		o.rows = rows
		o.cols = cols
	}
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEvaluator replaces the built-in formula evaluator. Functions registered
// with WithFunction only apply to the built-in evaluator.
func WithEvaluator(ev FormulaEvaluator) Option {
	return func(o *Options) { o.evaluator = ev }
}

// WithFunction registers a formula function. Names are matched upper-case.
func WithFunction(name string, fn Function) Option {
	return func(o *Options) {
		if o.functions == nil {
			o.functions = make(map[string]Function)
		}
		o.functions[strings.ToUpper(name)] = fn
	}
}

// WithListener adds a listener notified after each cell is (re)computed.
func WithListener(listener RecalcListener) Option {
	return func(o *Options) { o.listeners = append(o.listeners, listener) }
}

// WithMaxRangeCells bounds how many cells one range reference may span
// (default: 10000).
func WithMaxRangeCells(n int) Option {
	return func(o *Options) { o.maxRangeCells = n }
}
