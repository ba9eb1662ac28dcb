// Package derive re-derives the expected inventory counts from raw
// provider documents. A derivation pass is a pure function of the
// documents fetched during that pass.
package derive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"inventory-verify/decision/fetch"
	"inventory-verify/decision/flavor"
	"inventory-verify/pkg/entity"
	verr "inventory-verify/pkg/errors"
)

// Engine holds one derivation rule per entity type.
type Engine struct {
	rules     map[entity.Type]Rule
	constants Constants
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConstants overrides the catalog constants.
func WithConstants(c Constants) Option {
	return func(e *Engine) { e.constants = c }
}

// NewEngine creates an engine with the default rule set.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules:     make(map[entity.Type]Rule),
		constants: DefaultConstants(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.RegisterRules(DefaultRules(e.constants)...)
	return e
}

// RegisterRule adds or replaces the rule of its entity type.
func (e *Engine) RegisterRule(r Rule) {
	e.rules[r.EntityType()] = r
}

// RegisterRules adds multiple rules.
func (e *Engine) RegisterRules(rules ...Rule) {
	for _, r := range rules {
		e.RegisterRule(r)
	}
}

// Constants returns the catalog constants in use.
func (e *Engine) Constants() Constants {
	return e.constants
}

// Derive fetches the documents of one pass through a fresh cache and
// derives the expected counts. Any failure aborts the pass and no
// mapping is returned.
func (e *Engine) Derive(ctx context.Context, f fetch.Fetcher, flavors flavor.Lookup) (entity.Counts, error) {
	cache := fetch.NewCache(f, e.logger)
	snap, err := loadSnapshot(ctx, cache)
	if err != nil {
		return nil, err
	}
	snap.Flavors = flavors

	stats := cache.Stats()
	e.logger.Debug().
		Int("instances", len(snap.Instances)).
		Int("stacks", len(snap.Stacks)).
		Int("fetches", stats.Misses).
		Msg("loaded derivation snapshot")

	return e.DeriveSnapshot(snap)
}

// DeriveSnapshot applies every rule to an already loaded snapshot.
func (e *Engine) DeriveSnapshot(s *Snapshot) (entity.Counts, error) {
	counts := make(entity.Counts, len(e.rules))
	for _, typ := range entity.All() {
		rule, ok := e.rules[typ]
		if !ok {
			return nil, verr.NewMissingRuleError(string(typ))
		}
		n, err := rule.Derive(s)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", typ, err)
		}
		counts[typ] = n
	}
	return counts, nil
}
