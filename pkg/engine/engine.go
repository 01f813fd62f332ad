// Package engine runs every loaded policy's rule evaluator over an immutable
// plan snapshot and collects the violations.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// Evaluator applies one policy family to a snapshot. Evaluators read only the
// shared immutable snapshot and their own policy parameters, so the engine
// runs them concurrently without locking. Evaluators never fail: anything
// short of a violation is a skip.
type Evaluator interface {
	Family() policy.Family
	Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation
}

// Preparer is implemented by evaluators that need a load-time compilation
// step (e.g. CEL rules). Prepare failures are fatal configuration errors and
// surface before any evaluation starts.
type Preparer interface {
	Prepare(pol policy.Policy) error
}

// Result pairs a policy with the violations its evaluator produced.
type Result struct {
	Policy     policy.Policy
	Violations []policy.Violation
}

// Engine dispatches policies to registered evaluators.
type Engine struct {
	logger     *slog.Logger
	evaluators map[policy.Family]Evaluator
}

// New builds an engine with no evaluators registered.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		logger:     logger,
		evaluators: make(map[policy.Family]Evaluator),
	}
}

// Register installs an evaluator for its family.
func (e *Engine) Register(ev Evaluator) {
	e.evaluators[ev.Family()] = ev
}

// Validate checks that every loaded policy has an evaluator and runs any
// load-time preparation. Called before Run; a failure here aborts the run
// before evaluation.
func (e *Engine) Validate(reg *policy.Registry) error {
	for _, pol := range reg.Policies() {
		ev, ok := e.evaluators[pol.Family]
		if !ok {
			return &policy.ConfigurationError{Policy: pol.Name, Reason: fmt.Sprintf("no evaluator for family %q", pol.Family)}
		}
		if prep, ok := ev.(Preparer); ok {
			if err := prep.Prepare(pol); err != nil {
				return &policy.ConfigurationError{Policy: pol.Name, Reason: err.Error()}
			}
		}
	}
	return nil
}

// Run evaluates every policy against the snapshot, concurrently, and returns
// results in registry order. It never short-circuits: every policy runs and
// every violation is collected, so the report is complete even when a hard
// failure has already been found.
func (e *Engine) Run(ctx context.Context, snap *plan.Snapshot, env environment.Context, reg *policy.Registry) ([]Result, error) {
	policies := reg.Policies()
	results := make([]Result, len(policies))

	tracer := otel.Tracer("planwarden/engine")

	var wg sync.WaitGroup
	for i, pol := range policies {
		ev, ok := e.evaluators[pol.Family]
		if !ok {
			return nil, &policy.ConfigurationError{Policy: pol.Name, Reason: fmt.Sprintf("no evaluator for family %q", pol.Family)}
		}

		wg.Add(1)
		go func(i int, pol policy.Policy, ev Evaluator) {
			defer wg.Done()

			ctx, span := tracer.Start(ctx, "Evaluate."+string(pol.Family))
			defer span.End()

			violations := ev.Evaluate(ctx, snap, pol, env)
			span.SetAttributes(
				attribute.String("policy", pol.Name),
				attribute.String("enforcement", string(pol.Enforcement)),
				attribute.Int("violations", len(violations)),
			)
			if len(violations) > 0 {
				e.logger.Debug("policy produced violations",
					"policy", pol.Name, "count", len(violations))
			}

			results[i] = Result{Policy: pol, Violations: violations}
		}(i, pol, ev)
	}
	wg.Wait()

	return results, nil
}
