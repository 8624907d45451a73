// Package detect partitions same-type raw entities into duplicate clusters
// using fuzzy-first two-stage matching: cheap lexical scoring first, the
// embedding service only for pairs the lexical stage cannot decide.
package detect

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/consolidate/similarity"
	"github.com/inquora/distill/internal/model"
)

type Detector struct {
	matcher *similarity.Matcher
	cfg     *config.Config
	workers int
}

// Result is one type's partition plus the cost accounting the run report
// surfaces.
type Result struct {
	Clusters []model.DuplicateCluster
	// PairsCompared counts candidate pairs inside the bounded window.
	PairsCompared int
	// EmbeddingCallsSaved counts pairs decided by the lexical short-circuits
	// (high-similarity accept or fuzzy-floor reject) without embeddings.
	EmbeddingCallsSaved int
	// Degraded is set when any pair fell back to lexical-only decisioning
	// because the embedding service was unavailable.
	Degraded bool
}

func NewDetector(matcher *similarity.Matcher, cfg *config.Config) *Detector {
	return &Detector{
		matcher: matcher,
		cfg:     cfg,
		workers: cfg.Concurrency.PairWorkers,
	}
}

type pairEdge struct {
	i, j  int
	score float64
}

// Detect partitions entities of one type into disjoint clusters. Every
// input entity lands in exactly one cluster; singletons are clusters of one.
// Re-running over the same input yields the same partition.
func (d *Detector) Detect(ctx context.Context, t model.EntityType, entities []model.RawEntity) (*Result, error) {
	res := &Result{}
	if len(entities) == 0 {
		return res, nil
	}

	// Sort by normalized text so the bounded candidate window sees the
	// likeliest duplicates, and so runs are reproducible regardless of
	// input order.
	order := make([]int, len(entities))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		na := similarity.Normalize(entities[order[a]].Text())
		nb := similarity.Normalize(entities[order[b]].Text())
		if na != nb {
			return na < nb
		}
		return entities[order[a]].ID < entities[order[b]].ID
	})

	th := d.cfg.Thresholds(t)
	skip := d.cfg.Detection.SkipSemanticThreshold
	window := d.cfg.Detection.MaxCandidates

	// Candidate pairs within the window, in sorted order.
	var pairs [][2]int
	for a := 0; a < len(order); a++ {
		limit := a + window
		if limit > len(order)-1 {
			limit = len(order) - 1
		}
		for b := a + 1; b <= limit; b++ {
			pairs = append(pairs, [2]int{order[a], order[b]})
		}
	}
	res.PairsCompared = len(pairs)

	var mu sync.Mutex
	var edges []pairEdge

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, p := range pairs {
		i, j := p[0], p[1]
		g.Go(func() error {
			dup, score, saved, degraded, err := d.comparePair(gctx, th, skip, &entities[i], &entities[j])
			if err != nil {
				return err
			}
			mu.Lock()
			if saved {
				res.EmbeddingCallsSaved++
			}
			if degraded {
				res.Degraded = true
			}
			if dup {
				edges = append(edges, pairEdge{i: i, j: j, score: score})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Clusters = buildClusters(entities, edges)
	return res, nil
}

// comparePair runs the two-stage decision for one candidate pair.
func (d *Detector) comparePair(ctx context.Context, th config.TypeThresholds, skip float64, a, b *model.RawEntity) (dup bool, score float64, saved, degraded bool, err error) {
	lex := d.matcher.Lexical(a.Text(), b.Text())

	// Stage 1: near-identical text needs no embedding call.
	if lex >= skip {
		return true, lex, true, false, nil
	}
	// Stage 2: below the fuzzy floor, reject without the embedding call.
	if lex < th.FuzzyFloor {
		return false, lex, true, false, nil
	}

	// Stage 3: the lexical score is ambiguous; ask the embedding service.
	sem, semErr := d.matcher.Semantic(ctx, a.Text(), b.Text())
	if semErr != nil {
		if errors.Is(semErr, similarity.ErrSemanticUnavailable) {
			log.Printf("Warning: degraded to lexical-only for pair %s/%s: %v", a.ID, b.ID, semErr)
			// Lexical-only fallback holds the pair to the semantic bar.
			return lex >= th.SemanticThreshold, lex, false, true, nil
		}
		return false, 0, false, false, semErr
	}
	return sem >= th.SemanticThreshold, sem, false, false, nil
}

// buildClusters closes the duplicate edges transitively and picks each
// cluster's primary deterministically.
func buildClusters(entities []model.RawEntity, edges []pairEdge) []model.DuplicateCluster {
	uf := newUnionFind(len(entities))
	bestScore := make(map[int]float64, len(entities))
	for _, e := range edges {
		uf.union(e.i, e.j)
		if e.score > bestScore[e.i] {
			bestScore[e.i] = e.score
		}
		if e.score > bestScore[e.j] {
			bestScore[e.j] = e.score
		}
	}

	var clusters []model.DuplicateCluster
	for _, members := range uf.groups() {
		// Stable member order inside the cluster.
		sort.Slice(members, func(a, b int) bool {
			return entities[members[a]].ID < entities[members[b]].ID
		})

		cluster := model.DuplicateCluster{
			PairScores: make(map[string]float64, len(members)),
		}
		for _, idx := range members {
			cluster.Members = append(cluster.Members, entities[idx])
			if s, ok := bestScore[idx]; ok {
				cluster.PairScores[entities[idx].ID] = s
			}
		}
		cluster.Primary = pickPrimary(cluster.Members)
		clusters = append(clusters, cluster)
	}

	// Largest clusters first; ties broken by primary id for determinism.
	sort.Slice(clusters, func(a, b int) bool {
		if len(clusters[a].Members) != len(clusters[b].Members) {
			return len(clusters[a].Members) > len(clusters[b].Members)
		}
		return clusters[a].PrimaryEntity().ID < clusters[b].PrimaryEntity().ID
	})
	return clusters
}

// pickPrimary selects the highest-information member: the longest combined
// text wins, ties broken by lowest source interview id, then lowest id.
func pickPrimary(members []model.RawEntity) int {
	best := 0
	for i := 1; i < len(members); i++ {
		li, lb := len(members[i].Text()), len(members[best].Text())
		switch {
		case li > lb:
			best = i
		case li == lb:
			if members[i].SourceInterviewID < members[best].SourceInterviewID ||
				(members[i].SourceInterviewID == members[best].SourceInterviewID &&
					members[i].ID < members[best].ID) {
				best = i
			}
		}
	}
	return best
}
