package decode

import (
	"errors"
	"log/slog"

	"github.com/dio26699-sudo/ocrmonday/internal/document"
)

// ErrNotFound is the terminal result when every strategy and engine has been
// tried against every candidate without a decode. It is an expected outcome,
// not a processing error.
var ErrNotFound = errors.New("no decodable invoice code found")

// Result carries the first successful payload and its provenance.
type Result struct {
	Payload  string
	Engine   string
	Strategy string
	Source   string
}

// Attempt identifies one (candidate, strategy, engine) combination, reported
// to the observer just before the engine runs.
type Attempt struct {
	Source   string
	Strategy string
	Engine   string
}

// Cascade runs an ordered exhaustive-until-success search over preprocessing
// strategies and decode engines for each raster candidate. Scanned invoices
// vary too much in lighting and compression for any single combination to win
// reliably, so the cascade trades latency for recall and short-circuits on
// the first hit to bound the typical case.
type Cascade struct {
	strategies []Strategy
	engines    []Engine

	// Observer, when set, receives every attempt in execution order. Tests
	// use it to pin the search order; it is nil in production.
	Observer func(Attempt)
}

// NewCascade builds a cascade with the default strategy and engine tables.
func NewCascade() *Cascade {
	return &Cascade{
		strategies: defaultStrategies(),
		engines:    defaultEngines(),
	}
}

// Decode materializes each candidate producer in turn and searches it. A
// candidate that fails to render is skipped; the search continues with the
// remaining producers.
func (c *Cascade) Decode(producers []document.Producer) (*Result, error) {
	for _, producer := range producers {
		raster, err := producer.Produce()
		if err != nil {
			slog.Debug("Candidate failed to render, advancing", "source", producer.Source, "error", err)
			continue
		}
		if result := c.search(raster); result != nil {
			return result, nil
		}
		// raster goes out of scope here; nothing derived from it survives
		// into the next candidate.
	}
	return nil, ErrNotFound
}

func (c *Cascade) search(raster *document.Raster) *Result {
	for _, strategy := range c.strategies {
		if strategy.When != nil && !strategy.When(raster.Image) {
			continue
		}
		if result := c.tryStrategy(raster, strategy); result != nil {
			return result
		}
	}
	return nil
}

// tryStrategy scopes the preprocessed variant: the buffer is collectable as
// soon as this returns, before the next transform allocates. Peak working-set
// size is the binding constraint when several workers decode at once.
func (c *Cascade) tryStrategy(raster *document.Raster, strategy Strategy) *Result {
	variant := strategy.Apply(raster.Image)
	for _, engine := range c.engines {
		if c.Observer != nil {
			c.Observer(Attempt{Source: raster.Source, Strategy: strategy.Name, Engine: engine.Name})
		}
		payload, err := engine.Decode(variant)
		if err != nil || payload == "" {
			continue
		}
		return &Result{
			Payload:  payload,
			Engine:   engine.Name,
			Strategy: strategy.Name,
			Source:   raster.Source,
		}
	}
	return nil
}
