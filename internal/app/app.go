// Package app wires the engine's components from configuration. The HTTP
// server and the CLI share this bootstrap so they always agree on the stack.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/consolidate"
	"github.com/inquora/distill/internal/consolidate/consensus"
	"github.com/inquora/distill/internal/consolidate/rollback"
	"github.com/inquora/distill/internal/consolidate/similarity"
	"github.com/inquora/distill/internal/graph"
	"github.com/inquora/distill/internal/llm"
	"github.com/inquora/distill/internal/store"
)

type App struct {
	Cfg          *config.Config
	Store        *store.Store
	Orchestrator *consolidate.Orchestrator
	Rollback     *rollback.Manager

	projector *graph.Projector
}

// New builds the full stack. Optional pieces degrade instead of failing the
// boot: no LLM provider means lexical-only detection, an unreachable graph
// database means no projection.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	llmClient, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	if embedder == nil {
		log.Println("No embedding provider configured, semantic matching disabled")
	}

	matcher := similarity.NewMatcher(embedder, cfg.Cache.TTL())
	scorer := consensus.NewScorer(cfg.Consensus)
	if cfg.LLM.ReviewContradictions && llmClient != nil {
		scorer.WithReviewer(consensus.NewReviewer(llmClient))
	}

	orchestrator := consolidate.NewOrchestrator(cfg, st, matcher, scorer)

	a := &App{
		Cfg:          cfg,
		Store:        st,
		Orchestrator: orchestrator,
		Rollback:     rollback.NewManager(st),
	}

	if cfg.Memgraph.Enabled {
		projector, err := graph.NewProjector(ctx, cfg.Memgraph)
		if err != nil {
			log.Printf("Warning: graph projection disabled: %v", err)
		} else {
			a.projector = projector
			orchestrator.WithProjector(projector)
			a.Rollback.WithGraphCleaner(projector)
		}
	}
	return a, nil
}

func (a *App) Close(ctx context.Context) {
	if a.projector != nil {
		if err := a.projector.Close(ctx); err != nil {
			log.Printf("Warning: failed to close graph driver: %v", err)
		}
	}
	if err := a.Store.Close(); err != nil {
		log.Printf("Warning: failed to close store: %v", err)
	}
}
