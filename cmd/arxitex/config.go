package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/citations"
	"github.com/pdiddy/arxitex/internal/oracle"
	"github.com/pdiddy/arxitex/internal/store"
	"github.com/pdiddy/arxitex/pkg/types"
)

// configDefaults registers the default value for every config key, so
// precedence is flag > environment > config file > default.
func configDefaults() {
	viper.SetDefault("acquisition.cache_dir", "cache/sources")
	viper.SetDefault("acquisition.timeout", 60*time.Second)
	viper.SetDefault("acquisition.user_agent", "arxitex/0.1")
	viper.SetDefault("acquisition.max_attempts", 4)
	viper.SetDefault("acquisition.retry_base_wait", 2*time.Second)

	viper.SetDefault("oracle.model", "gemini-2.5-flash")
	viper.SetDefault("oracle.max_retries", 3)
	viper.SetDefault("oracle.cache_dir", "cache/oracle")

	viper.SetDefault("enhance.strategy", string(types.TermsGlobal))
	viper.SetDefault("enhance.term_concurrency", 4)
	viper.SetDefault("enhance.synthesis_concurrency", 4)

	viper.SetDefault("infer.mode", string(types.InferAuto))
	viper.SetDefault("infer.max_total_pairs", 200)
	viper.SetDefault("infer.hybrid_topk_per_source", 3)
	viper.SetDefault("infer.hybrid_max_total_candidates", 60)
	viper.SetDefault("infer.auto_max_nodes_global", 40)
	viper.SetDefault("infer.auto_max_tokens_global", 60000)
	viper.SetDefault("infer.proof_char_budget", 2000)

	viper.SetDefault("workflow.max_concurrent_tasks", 4)
	viper.SetDefault("workflow.output_dir", "output")
	viper.SetDefault("workflow.max_pages", 80)

	viper.SetDefault("citations.timeout", 30*time.Second)
	viper.SetDefault("citations.user_agent", "arxitex/0.1")
	viper.SetDefault("citations.requests_per_second", 5.0)
	viper.SetDefault("citations.burst", 5)
	viper.SetDefault("citations.ttl_days", 30)
}

// pipelineConfig assembles the full pipeline configuration from viper.
// API keys fall back to the .secrets/ directory when the config leaves
// them empty. An empty store.db_path resolves to the workflow output dir.
func pipelineConfig() types.PipelineConfig {
	var cfg types.PipelineConfig

	cfg.Acquisition = types.AcquisitionConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("acquisition.timeout"),
			UserAgent: viper.GetString("acquisition.user_agent"),
		},
		CacheDir:      viper.GetString("acquisition.cache_dir"),
		MaxAttempts:   viper.GetInt("acquisition.max_attempts"),
		RetryBaseWait: viper.GetDuration("acquisition.retry_base_wait"),
	}
	cfg.Oracle = types.OracleConfig{
		AIConfig: types.AIConfig{
			Model:      viper.GetString("oracle.model"),
			APIKey:     secretDefault("gemini-api-key", viper.GetString("oracle.api_key")),
			MaxRetries: viper.GetInt("oracle.max_retries"),
		},
		CacheDir: viper.GetString("oracle.cache_dir"),
	}
	cfg.Enhance = types.EnhanceConfig{
		Strategy:             types.TermStrategy(viper.GetString("enhance.strategy")),
		TermConcurrency:      viper.GetInt("enhance.term_concurrency"),
		SynthesisConcurrency: viper.GetInt("enhance.synthesis_concurrency"),
		ValidateSynthesized:  viper.GetBool("enhance.validate_synthesized"),
	}
	cfg.Infer = types.InferConfig{
		Mode:                     types.InferMode(viper.GetString("infer.mode")),
		MaxTotalPairs:            viper.GetInt("infer.max_total_pairs"),
		HybridTopKPerSource:      viper.GetInt("infer.hybrid_topk_per_source"),
		HybridMaxTotalCandidates: viper.GetInt("infer.hybrid_max_total_candidates"),
		AutoMaxNodesGlobal:       viper.GetInt("infer.auto_max_nodes_global"),
		AutoMaxTokensGlobal:      viper.GetInt("infer.auto_max_tokens_global"),
		ProofCharBudget:          viper.GetInt("infer.proof_char_budget"),
	}
	cfg.Workflow = types.WorkflowConfig{
		MaxConcurrentTasks: viper.GetInt("workflow.max_concurrent_tasks"),
		OutputDir:          viper.GetString("workflow.output_dir"),
		MaxPages:           viper.GetInt("workflow.max_pages"),
		SkipTitleKeywords:  viper.GetStringSlice("workflow.skip_title_keywords"),
	}
	cfg.Citations = types.CitationsConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("citations.timeout"),
			UserAgent: viper.GetString("citations.user_agent"),
		},
		RequestsPerSecond: viper.GetFloat64("citations.requests_per_second"),
		Burst:             viper.GetInt("citations.burst"),
		TTLDays:           viper.GetInt("citations.ttl_days"),
		Email:             secretDefault("openalex-email", viper.GetString("citations.email")),
	}
	cfg.Store = types.StoreConfig{DBPath: viper.GetString("store.db_path")}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(cfg.Workflow.OutputDir, "arxitex.db")
	}
	return cfg
}

// stack bundles the long-lived dependencies the workflow commands share.
// All outbound arXiv and index traffic rides one token bucket.
type stack struct {
	cfg      types.PipelineConfig
	store    *store.Store
	client   *http.Client
	limiter  *rate.Limiter
	searcher *arxiv.Client
}

func buildStack() (*stack, error) {
	cfg := pipelineConfig()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Acquisition.Timeout}
	limiter := citations.NewLimiter(cfg.Citations)

	return &stack{
		cfg:      cfg,
		store:    st,
		client:   client,
		limiter:  limiter,
		searcher: arxiv.NewClient(client, cfg.Acquisition.UserAgent, limiter),
	}, nil
}

func (s *stack) Close() error {
	return s.store.Close()
}

// stageOracle builds the oracle chain for mode, or nil when the regex
// mode needs none. The on-disk cache wraps Gemini when a cache dir is set.
func stageOracle(ctx context.Context, mode types.Mode, cfg types.OracleConfig) (oracle.Oracle, error) {
	if mode == types.ModeRegex {
		return nil, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mode %s requires a Gemini API key: set oracle.api_key or .secrets/gemini-api-key", mode)
	}

	backend, err := oracle.NewGemini(ctx, cfg.AIConfig)
	if err != nil {
		return nil, err
	}
	var b oracle.Backend = backend
	if cfg.CacheDir != "" {
		b, err = oracle.NewCache(b, cfg.CacheDir)
		if err != nil {
			return nil, err
		}
	}
	return oracle.NewClient(b), nil
}
