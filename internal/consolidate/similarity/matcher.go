// Package similarity scores how alike two entity mentions are, lexically
// and semantically. It is side-effect free apart from the embedding cache.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/inquora/distill/internal/llm"
)

// ErrSemanticUnavailable means the embedding service could not score the
// pair. Callers must fall back to lexical-only decisioning; treating this
// as "similarity zero" would silently turn outages into non-duplicates.
var ErrSemanticUnavailable = errors.New("semantic similarity unavailable")

const (
	maxEmbedRetries = 2
	retryBackoff    = 500 * time.Millisecond
)

type Matcher struct {
	embedder llm.EmbedderClient
	cache    *embeddingCache

	embedCalls   atomic.Int64
	cacheHits    atomic.Int64
	cacheLookups atomic.Int64
}

// NewMatcher builds a matcher over an optional embedder. A nil embedder is
// legal: Semantic then always reports ErrSemanticUnavailable.
func NewMatcher(embedder llm.EmbedderClient, cacheTTL time.Duration) *Matcher {
	return &Matcher{
		embedder: embedder,
		cache:    newEmbeddingCache(cacheTTL),
	}
}

// Lexical returns a normalized [0,1] similarity combining edit distance and
// token overlap. The max of the two is used: edit distance catches spelling
// variants, token Jaccard catches reordered phrasing.
func (m *Matcher) Lexical(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return math.Max(editSimilarity(na, nb), tokenJaccard(na, nb))
}

// Semantic returns the cosine similarity of the two texts' embeddings,
// mapped to [0,1]. Embeddings are cached by normalized text with
// insert-if-absent semantics; lookups are safe for concurrent use.
func (m *Matcher) Semantic(ctx context.Context, a, b string) (float64, error) {
	if m.embedder == nil {
		return 0, fmt.Errorf("no embedder configured: %w", ErrSemanticUnavailable)
	}
	va, err := m.embed(ctx, Normalize(a))
	if err != nil {
		return 0, err
	}
	vb, err := m.embed(ctx, Normalize(b))
	if err != nil {
		return 0, err
	}
	cos := cosine(va, vb)
	// Cosine lands in [-1,1]; clamp the negative tail rather than rescale,
	// since anti-correlated text is simply "not similar" here.
	if cos < 0 {
		cos = 0
	}
	return cos, nil
}

func (m *Matcher) embed(ctx context.Context, text string) ([]float32, error) {
	m.cacheLookups.Add(1)
	if vec, ok := m.cache.get(text); ok {
		m.cacheHits.Add(1)
		return vec, nil
	}

	var lastErr error
	for attempt := 0; attempt <= maxEmbedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embedding cancelled: %w", ErrSemanticUnavailable)
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
		m.embedCalls.Add(1)
		vec, err := m.embedder.Embed(ctx, text)
		if err == nil && len(vec) > 0 {
			m.cache.put(text, vec)
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %v: %w",
		maxEmbedRetries+1, lastErr, ErrSemanticUnavailable)
}

// EmbedCalls reports how many times the external service was actually hit.
func (m *Matcher) EmbedCalls() int64 { return m.embedCalls.Load() }

// CacheHitRate reports the fraction of embedding lookups served from cache.
func (m *Matcher) CacheHitRate() float64 {
	lookups := m.cacheLookups.Load()
	if lookups == 0 {
		return 0
	}
	return float64(m.cacheHits.Load()) / float64(lookups)
}

// Normalize lowercases, strips punctuation and collapses whitespace; it is
// the cache key and the input to both similarity measures.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func editSimilarity(a, b string) float64 {
	dist := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(longest)
}

func tokenJaccard(a, b string) float64 {
	setA := make(map[string]bool)
	for _, t := range strings.Fields(a) {
		setA[t] = true
	}
	setB := make(map[string]bool)
	for _, t := range strings.Fields(b) {
		setB[t] = true
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
