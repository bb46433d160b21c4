// Package enrichpipeline implements the engine's tiered enrichment pipeline
// (spec.md §4.6): one consumer of the shared ingest queue, one producer into
// the bulk-writer queue, records flowing sequentially through tier 1
// (library-backed lookups), tier 2 (cross-request state), and tier 3
// (anomaly detection) analyzers. Grounded on the teacher's
// internal/pipeline/chain.go Chain/Middleware composition, adapted from
// abort-on-error to continue-on-error (spec.md §4.6: "a failure never aborts
// the pipeline").
package enrichpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/record"
)

// Analyzer appends `_srv_*` pairs to rec and returns the annotated record.
// An analyzer that cannot complete its work returns the input record
// unchanged alongside a non-nil error; the pipeline logs and continues.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, rec record.Record) (record.Record, error)
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc struct {
	FuncName string
	Fn       func(ctx context.Context, rec record.Record) (record.Record, error)
}

func (f AnalyzerFunc) Name() string { return f.FuncName }

func (f AnalyzerFunc) Analyze(ctx context.Context, rec record.Record) (record.Record, error) {
	return f.Fn(ctx, rec)
}

// Pipeline runs its tiers' analyzers in fixed order (1→2→3); within a tier,
// analyzer order is not an observable contract (spec.md §4.6).
type Pipeline struct {
	tier1 []Analyzer
	tier2 []Analyzer
	tier3 []Analyzer
}

// New composes a Pipeline from its three tiers.
func New(tier1, tier2, tier3 []Analyzer) *Pipeline {
	return &Pipeline{tier1: tier1, tier2: tier2, tier3: tier3}
}

// Run executes every analyzer across all three tiers against rec in order,
// returning the fully annotated record. No analyzer failure aborts the
// pipeline (spec.md §4.6).
func (p *Pipeline) Run(ctx context.Context, rec record.Record) record.Record {
	rec = runTier(ctx, p.tier1, rec)
	rec = runTier(ctx, p.tier2, rec)
	rec = runTier(ctx, p.tier3, rec)
	return rec
}

func runTier(ctx context.Context, analyzers []Analyzer, rec record.Record) record.Record {
	for _, a := range analyzers {
		rec = runOne(ctx, a, rec)
	}
	return rec
}

func runOne(ctx context.Context, a Analyzer, rec record.Record) (out record.Record) {
	out = rec
	start := time.Now()
	err := recoverAnalyze(a.Name(), func() error {
		var innerErr error
		out, innerErr = a.Analyze(ctx, rec)
		return innerErr
	})
	if err != nil {
		log.Warn().Err(err).Str("analyzer", a.Name()).Dur("elapsed", time.Since(start)).
			Msg("enrichpipeline: analyzer failed, skipping")
		return rec
	}
	return out
}

func recoverAnalyze(name string, fn func() error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("analyzer %s: panic: %v", name, r)
		}
	}()
	return fn()
}
