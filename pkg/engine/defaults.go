package engine

import (
	"log/slog"

	"github.com/planwarden/planwarden/pkg/engine/rules"
	"github.com/planwarden/planwarden/pkg/pricing"
)

// NewDefault builds an engine with every built-in policy family registered.
func NewDefault(logger *slog.Logger, estimates *pricing.Estimates) *Engine {
	e := New(logger)
	e.Register(rules.TagEvaluator{})
	e.Register(rules.NamingEvaluator{})
	e.Register(rules.NetworkEvaluator{})
	e.Register(rules.EncryptionEvaluator{})
	e.Register(rules.CostEvaluator{Estimates: estimates})
	e.Register(rules.BackupEvaluator{})
	e.Register(rules.NewCustomEvaluator(logger))
	return e
}
