package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "arxitex/0.1"). Per prd001-acquisition R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AcquisitionConfig holds settings for the source acquisition stage.
// Per prd001-acquisition R2.6, R5.1-R5.3.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline"`

	// CacheDir is the directory where e-print archives are unpacked,
	// one subdirectory per paper.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// MaxAttempts bounds download retries (default 4).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RetryBaseWait is the initial backoff interval between download
	// attempts (default 2s).
	RetryBaseWait time.Duration `json:"retry_base_wait" yaml:"retry_base_wait"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "gemini-2.5-flash").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// OracleConfig holds settings for the structured model oracle.
// Per prd005-enhancement R5.1, prd006-inference R5.1.
type OracleConfig struct {
	AIConfig `yaml:",inline"`

	// CacheDir is the directory for the on-disk response cache. Empty
	// disables caching.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
}

// TermStrategy selects how phase two of enhancement discovers terms.
// Per prd005-enhancement R3.1.
type TermStrategy string

const (
	// TermsGlobal sends all artifact contents in one request.
	TermsGlobal TermStrategy = "global"

	// TermsSingle sends one request per artifact, concurrently.
	TermsSingle TermStrategy = "single"
)

// EnhanceConfig holds settings for the definition enhancement stage.
// Per prd005-enhancement R3.1-R3.4, R6.2.
type EnhanceConfig struct {
	// Strategy selects global or per-artifact term discovery (default global).
	Strategy TermStrategy `json:"strategy" yaml:"strategy"`

	// TermConcurrency bounds concurrent per-artifact term requests (default 4).
	TermConcurrency int `json:"term_concurrency" yaml:"term_concurrency"`

	// SynthesisConcurrency bounds concurrent definition synthesis requests
	// (default 4).
	SynthesisConcurrency int `json:"synthesis_concurrency" yaml:"synthesis_concurrency"`

	// ValidateSynthesized rejects synthesized definitions whose sentences
	// do not occur verbatim in the provided context (default false).
	ValidateSynthesized bool `json:"validate_synthesized" yaml:"validate_synthesized"`
}

// InferMode selects the dependency inference strategy.
// Per prd006-inference R3.1.
type InferMode string

const (
	InferPairwise InferMode = "pairwise"
	InferGlobal   InferMode = "global"
	InferHybrid   InferMode = "hybrid"
	InferAuto     InferMode = "auto"
)

// InferConfig holds settings for the dependency inference stage.
// Per prd006-inference R3.2-R3.6.
type InferConfig struct {
	// Mode selects pairwise, global, hybrid, or auto (default auto).
	Mode InferMode `json:"mode" yaml:"mode"`

	// MaxTotalPairs caps oracle verification calls per paper (default 200).
	MaxTotalPairs int `json:"max_total_pairs" yaml:"max_total_pairs"`

	// HybridTopKPerSource caps proposal candidates kept per source artifact
	// (default 3).
	HybridTopKPerSource int `json:"hybrid_topk_per_source" yaml:"hybrid_topk_per_source"`

	// HybridMaxTotalCandidates caps proposal candidates overall (default 60).
	HybridMaxTotalCandidates int `json:"hybrid_max_total_candidates" yaml:"hybrid_max_total_candidates"`

	// AutoMaxNodesGlobal is the largest graph auto mode will send in a
	// single global request (default 40).
	AutoMaxNodesGlobal int `json:"auto_max_nodes_global" yaml:"auto_max_nodes_global"`

	// AutoMaxTokensGlobal is the largest estimated token size auto mode
	// will send in a single global request (default 60000).
	AutoMaxTokensGlobal int `json:"auto_max_tokens_global" yaml:"auto_max_tokens_global"`

	// ProofCharBudget truncates proofs included in oracle prompts (default 2000).
	ProofCharBudget int `json:"proof_char_budget" yaml:"proof_char_budget"`
}

// StoreConfig holds settings for the persistence stage.
// Per prd007-store R1.1.
type StoreConfig struct {
	// DBPath is the SQLite database file, default relative to the
	// workflow output directory.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// WorkflowConfig holds settings for the discovery and processing workflows.
// Per prd008-workflow R2.2-R2.5.
type WorkflowConfig struct {
	// MaxConcurrentTasks bounds papers processed in parallel (default 4).
	MaxConcurrentTasks int `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`

	// OutputDir receives run reports and the default database file.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxPages skips papers whose comment metadata reports more pages
	// (default 80; 0 disables the heuristic).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// SkipTitleKeywords skips papers whose title contains any of these,
	// case-insensitive.
	SkipTitleKeywords []string `json:"skip_title_keywords" yaml:"skip_title_keywords"`
}

// CitationsConfig holds settings for citation resolution.
// Per prd009-citations R2.1-R2.4.
type CitationsConfig struct {
	HTTPConfig `yaml:",inline"`

	// RequestsPerSecond feeds the shared token bucket over all outbound
	// index calls (default 5).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the token bucket burst size (default 5).
	Burst int `json:"burst" yaml:"burst"`

	// TTLDays is how long a stored citation count or reference match stays
	// fresh (default 30).
	TTLDays int `json:"ttl_days" yaml:"ttl_days"`

	// Email is sent to the scholarly index for polite-pool routing.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition"`
	Oracle      OracleConfig      `json:"oracle" yaml:"oracle"`
	Enhance     EnhanceConfig     `json:"enhance" yaml:"enhance"`
	Infer       InferConfig       `json:"infer" yaml:"infer"`
	Store       StoreConfig       `json:"store" yaml:"store"`
	Workflow    WorkflowConfig    `json:"workflow" yaml:"workflow"`
	Citations   CitationsConfig   `json:"citations" yaml:"citations"`
}
