// Package engine re-simulates inventory projections: it resolves the
// effective planning parameters of each month, walks every day of the
// horizon applying consumption and receipts, and regenerates reorder alerts.
//
// Everything in this package is pure with respect to I/O. Methods mutate
// the product they are given and allocate their own working state, so
// independent products may be processed concurrently.
package engine

import (
	"math"

	"github.com/rs/zerolog"
)

const (
	// DefaultLeadTimeDays applies when neither an override nor the product
	// configuration sets a lead time.
	DefaultLeadTimeDays = 20
	// DefaultServiceLevel is the service level target, in percent.
	DefaultServiceLevel = 99.99
	// consistencyTolerance bounds the allowed gap between the last simulated
	// day and the derived month-end stock.
	consistencyTolerance = 0.01
)

// Options tunes the engine defaults.
type Options struct {
	DefaultLeadTimeDays int
	DefaultServiceLevel float64
	MinUnitsPerBox      float64
	Workers             int
}

// DefaultOptions returns the defaults used by the forecasting process.
func DefaultOptions() Options {
	return Options{
		DefaultLeadTimeDays: DefaultLeadTimeDays,
		DefaultServiceLevel: DefaultServiceLevel,
		MinUnitsPerBox:      1,
		Workers:             4,
	}
}

// Engine runs simulations with a fixed set of defaults.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// New creates an Engine. Zero-valued options fall back to DefaultOptions.
func New(opts Options, logger zerolog.Logger) *Engine {
	def := DefaultOptions()
	if opts.DefaultLeadTimeDays <= 0 {
		opts.DefaultLeadTimeDays = def.DefaultLeadTimeDays
	}
	if opts.DefaultServiceLevel <= 0 || opts.DefaultServiceLevel >= 100 {
		opts.DefaultServiceLevel = def.DefaultServiceLevel
	}
	if opts.MinUnitsPerBox <= 0 {
		opts.MinUnitsPerBox = def.MinUnitsPerBox
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	return &Engine{
		opts: opts,
		log:  logger.With().Str("component", "engine").Logger(),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

func maxFloat(values ...float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
