package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/inquora/distill/internal/model"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	// ReviewContradictions routes heuristic contradiction flags through the
	// LLM for confirmation. Off by default so detection stays deterministic.
	ReviewContradictions bool `toml:"review_contradictions"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	// Enabled controls whether consolidated output is projected after a run.
	Enabled bool `toml:"enabled"`
}

// TypeThresholds carries the per-entity-type merge-risk tolerances.
type TypeThresholds struct {
	FuzzyFloor        float64 `toml:"fuzzy_floor"`
	SemanticThreshold float64 `toml:"semantic_threshold"`
}

type DetectionConfig struct {
	// SkipSemanticThreshold short-circuits a pair as duplicate on lexical
	// similarity alone, saving an embedding call.
	SkipSemanticThreshold float64                   `toml:"skip_semantic_threshold"`
	MaxCandidates         int                       `toml:"max_candidates"`
	Types                 map[string]TypeThresholds `toml:"types"`
}

type ConsensusConfig struct {
	Divisor              float64 `toml:"divisor"`
	SingleSourcePenalty  float64 `toml:"single_source_penalty"`
	ContradictionPenalty float64 `toml:"contradiction_penalty"`
	AgreementBonus       float64 `toml:"agreement_bonus"`
}

// PatternConfig carries the pattern-recognition floors. All bounds are
// inclusive: a recurring_floor of 3 means three independent sources qualify.
type PatternConfig struct {
	RecurringFloor       int     `toml:"recurring_floor"`
	ProblematicLinkFloor int     `toml:"problematic_link_floor"`
	PriorityShare        float64 `toml:"priority_share"`
}

type CacheConfig struct {
	EmbeddingTTLSeconds int `toml:"embedding_ttl_seconds"`
}

// TTL converts the configured cache lifetime into a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.EmbeddingTTLSeconds) * time.Second
}

type ConcurrencyConfig struct {
	TypeWorkers int `toml:"type_workers"`
	PairWorkers int `toml:"pair_workers"`
}

type Config struct {
	Store       StoreConfig       `toml:"store"`
	Memgraph    MemgraphConfig    `toml:"memgraph"`
	LLM         LLMConfig         `toml:"llm"`
	Detection   DetectionConfig   `toml:"detection"`
	Consensus   ConsensusConfig   `toml:"consensus"`
	Patterns    PatternConfig     `toml:"patterns"`
	Cache       CacheConfig       `toml:"cache"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
}

// Default returns the documented baseline configuration. Consensus and
// threshold constants are plain config, never compiled in: the right values
// are corpus-dependent.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "data/distill.db"},
		Detection: DetectionConfig{
			SkipSemanticThreshold: 0.95,
			MaxCandidates:         50,
			Types: map[string]TypeThresholds{
				string(model.TypePainPoint):           {FuzzyFloor: 0.70, SemanticThreshold: 0.80},
				string(model.TypeProcess):             {FuzzyFloor: 0.75, SemanticThreshold: 0.82},
				string(model.TypeSystem):              {FuzzyFloor: 0.75, SemanticThreshold: 0.82},
				string(model.TypeKPI):                 {FuzzyFloor: 0.85, SemanticThreshold: 0.88},
				string(model.TypeAutomationCandidate): {FuzzyFloor: 0.75, SemanticThreshold: 0.82},
				string(model.TypeTeamStructure):       {FuzzyFloor: 0.90, SemanticThreshold: 0.90},
			},
		},
		Consensus: ConsensusConfig{
			Divisor:              10,
			SingleSourcePenalty:  0.2,
			ContradictionPenalty: 0.15,
			AgreementBonus:       0.1,
		},
		Patterns: PatternConfig{
			RecurringFloor:       3,
			ProblematicLinkFloor: 5,
			PriorityShare:        0.30,
		},
		Cache:       CacheConfig{EmbeddingTTLSeconds: 3600},
		Concurrency: ConcurrencyConfig{TypeWorkers: 4, PairWorkers: 8},
	}
}

// Load reads a TOML config over the defaults and applies env overrides.
// Invalid thresholds are fatal here, before any store writes happen.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DISTILL_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
		c.Memgraph.Enabled = true
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
}

// Validate rejects configurations that would corrupt a run. Every known
// entity type must carry thresholds; a partial threshold map is a config
// error, not a runtime fallback.
func (c *Config) Validate() error {
	if c.Detection.SkipSemanticThreshold <= 0 || c.Detection.SkipSemanticThreshold > 1 {
		return fmt.Errorf("config: skip_semantic_threshold %.2f out of (0,1]", c.Detection.SkipSemanticThreshold)
	}
	if c.Detection.MaxCandidates < 1 {
		return fmt.Errorf("config: max_candidates must be >= 1")
	}
	for _, t := range model.AllEntityTypes() {
		th, ok := c.Detection.Types[string(t)]
		if !ok {
			return fmt.Errorf("config: missing detection thresholds for entity type %q", t)
		}
		if th.FuzzyFloor < 0 || th.FuzzyFloor > 1 {
			return fmt.Errorf("config: %s fuzzy_floor %.2f out of [0,1]", t, th.FuzzyFloor)
		}
		if th.SemanticThreshold < 0 || th.SemanticThreshold > 1 {
			return fmt.Errorf("config: %s semantic_threshold %.2f out of [0,1]", t, th.SemanticThreshold)
		}
		if th.FuzzyFloor > c.Detection.SkipSemanticThreshold {
			return fmt.Errorf("config: %s fuzzy_floor %.2f exceeds skip_semantic_threshold %.2f",
				t, th.FuzzyFloor, c.Detection.SkipSemanticThreshold)
		}
	}
	if c.Consensus.Divisor < 1 {
		return fmt.Errorf("config: consensus divisor must be >= 1")
	}
	for name, v := range map[string]float64{
		"single_source_penalty": c.Consensus.SingleSourcePenalty,
		"contradiction_penalty": c.Consensus.ContradictionPenalty,
		"agreement_bonus":       c.Consensus.AgreementBonus,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: consensus %s %.2f out of [0,1]", name, v)
		}
	}
	if c.Patterns.RecurringFloor < 1 || c.Patterns.ProblematicLinkFloor < 1 {
		return fmt.Errorf("config: pattern floors must be >= 1")
	}
	if c.Patterns.PriorityShare < 0 || c.Patterns.PriorityShare > 1 {
		return fmt.Errorf("config: priority_share %.2f out of [0,1]", c.Patterns.PriorityShare)
	}
	if c.Concurrency.TypeWorkers < 1 {
		c.Concurrency.TypeWorkers = 1
	}
	if c.Concurrency.PairWorkers < 1 {
		c.Concurrency.PairWorkers = 1
	}
	return nil
}

// Thresholds returns the detection thresholds for a type. Validate has
// already guaranteed presence for every known type.
func (c *Config) Thresholds(t model.EntityType) TypeThresholds {
	return c.Detection.Types[string(t)]
}
