package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port              int              `json:"port"`
	Database          DatabaseConfig   `json:"database"`
	LogConfig         logger.LogConfig `json:"log_config"`
	AI                AIConfig         `json:"ai"`
	Reranker          RerankerConfig   `json:"reranker"`
	Arxiv             ArxivConfig      `json:"arxiv"`
	Search            SearchConfig     `json:"search"`
	Ingest            IngestConfig     `json:"ingest"`
	Chat              ChatConfig       `json:"chat"`
	EmbedCache        EmbedCacheConfig `json:"embed_cache"`
	FileStore         FileStoreConfig  `json:"file_store"`
	Cron              CronConfig       `json:"cron"`
	CORSAllowOrigins  []string         `json:"cors_allow_origins"`
	RateLimitWindowMS int              `json:"rate_limit_window_ms"`
	SessionTTLDays    int              `json:"session_ttl_days"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// AIProviderConfig declares one named provider instance. Data is decoded by
// the provider factory registered under Type.
type AIProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// AIModelRef binds a role to a model served by a named provider. Several refs
// for one role form a fallback group tried in order.
type AIModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Providers  []AIProviderConfig `json:"providers"`
	Planner    []AIModelRef       `json:"planner"`
	Chat       []AIModelRef       `json:"chat"`
	Summarizer []AIModelRef       `json:"summarizer"`
	Embedder   []AIModelRef       `json:"embedder"`
	Timeout    int                `json:"timeout"`
}

type RerankerConfig struct {
	Type    string `json:"type"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	Timeout int    `json:"timeout"`
}

type ArxivConfig struct {
	BaseURL            string `json:"base_url"`
	MaxResultsPerQuery int    `json:"max_results_per_query"`
	MinIntervalMS      int    `json:"min_interval_ms"`
	MaxRetries         int    `json:"max_retries"`
	Timeout            int    `json:"timeout"`
}

type SearchConfig struct {
	RerankTopK     int `json:"rerank_top_k"`
	ResponseLimit  int `json:"response_limit"`
	PlanCacheSize  int `json:"plan_cache_size"`
	PlanCacheTTLMS int `json:"plan_cache_ttl_ms"`
}

type IngestConfig struct {
	MaxDocumentBytes int64 `json:"max_document_bytes"`
	ChunkTokens      int   `json:"chunk_tokens"`
	OverlapTokens    int   `json:"overlap_tokens"`
	EmbedConcurrency int   `json:"embed_concurrency"`
	FetchTimeout     int   `json:"fetch_timeout"`
	Timeout          int   `json:"timeout"`
}

type ChatConfig struct {
	ContextTokens   int     `json:"context_tokens"`
	TriggerFraction float64 `json:"trigger_fraction"`
	KeepFraction    float64 `json:"keep_fraction"`
	RetrievalK      int     `json:"retrieval_k"`
	MaxToolRounds   int     `json:"max_tool_rounds"`
	Temperature     float32 `json:"temperature"`
	Timeout         int     `json:"timeout"`
}

type EmbedCacheConfig struct {
	LRUSize    int  `json:"lru_size"`
	LRUTTLSec  int  `json:"lru_ttl_sec"`
	EnableDB   bool `json:"enable_db"`
	MaxAgeDays int  `json:"max_age_days"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CronConfig struct {
	EmbeddingCacheCleanup string `json:"embedding_cache_cleanup"`
	SessionCleanup        string `json:"session_cleanup"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if len(c.AI.Providers) == 0 {
		return fmt.Errorf("ai.providers is required")
	}
	for role, refs := range map[string][]AIModelRef{
		"planner":  c.AI.Planner,
		"chat":     c.AI.Chat,
		"embedder": c.AI.Embedder,
	} {
		if len(refs) == 0 {
			return fmt.Errorf("ai.%s is required", role)
		}
	}
	if len(c.AI.Summarizer) == 0 {
		c.AI.Summarizer = c.AI.Chat
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 60
	}

	c.Reranker.Type = strings.ToLower(strings.TrimSpace(c.Reranker.Type))
	if c.Reranker.Type == "" {
		c.Reranker.Type = "embedding"
	}
	switch c.Reranker.Type {
	case "embedding":
	case "cross_encoder":
		if c.Reranker.BaseURL == "" {
			return fmt.Errorf("reranker.base_url is required for cross_encoder reranker")
		}
	default:
		return fmt.Errorf("reranker.type must be embedding or cross_encoder")
	}
	if c.Reranker.Timeout <= 0 {
		c.Reranker.Timeout = 30
	}

	if c.Arxiv.BaseURL == "" {
		c.Arxiv.BaseURL = "https://export.arxiv.org/api/query"
	}
	if c.Arxiv.MaxResultsPerQuery <= 0 {
		c.Arxiv.MaxResultsPerQuery = 5
	}
	if c.Arxiv.MinIntervalMS <= 0 {
		c.Arxiv.MinIntervalMS = 3000
	}
	if c.Arxiv.MaxRetries < 0 {
		c.Arxiv.MaxRetries = 0
	}
	if c.Arxiv.Timeout <= 0 {
		c.Arxiv.Timeout = 20
	}

	if c.Search.RerankTopK <= 0 {
		c.Search.RerankTopK = 10
	}
	if c.Search.ResponseLimit <= 0 {
		c.Search.ResponseLimit = 5
	}
	if c.Search.PlanCacheSize <= 0 {
		c.Search.PlanCacheSize = 1000
	}
	if c.Search.PlanCacheTTLMS <= 0 {
		c.Search.PlanCacheTTLMS = 30 * 60 * 1000
	}

	if c.Ingest.MaxDocumentBytes <= 0 {
		c.Ingest.MaxDocumentBytes = 50 * 1024 * 1024
	}
	if c.Ingest.ChunkTokens <= 0 {
		c.Ingest.ChunkTokens = 400
	}
	if c.Ingest.OverlapTokens < 0 || c.Ingest.OverlapTokens >= c.Ingest.ChunkTokens {
		c.Ingest.OverlapTokens = 80
	}
	if c.Ingest.EmbedConcurrency <= 0 {
		c.Ingest.EmbedConcurrency = 4
	}
	if c.Ingest.FetchTimeout <= 0 {
		c.Ingest.FetchTimeout = 60
	}
	if c.Ingest.Timeout <= 0 {
		c.Ingest.Timeout = 300
	}

	if c.Chat.ContextTokens <= 0 {
		c.Chat.ContextTokens = 128000
	}
	if c.Chat.TriggerFraction <= 0 || c.Chat.TriggerFraction > 1 {
		c.Chat.TriggerFraction = 0.5
	}
	// keep must stay below trigger or every turn would summarize again
	if c.Chat.KeepFraction <= 0 || c.Chat.KeepFraction >= c.Chat.TriggerFraction {
		c.Chat.KeepFraction = c.Chat.TriggerFraction * 0.4
	}
	if c.Chat.RetrievalK <= 0 {
		c.Chat.RetrievalK = 5
	}
	if c.Chat.MaxToolRounds <= 0 {
		c.Chat.MaxToolRounds = 3
	}
	if c.Chat.Temperature <= 0 {
		c.Chat.Temperature = 0.2
	}
	if c.Chat.Timeout <= 0 {
		c.Chat.Timeout = 120
	}

	if c.EmbedCache.LRUTTLSec <= 0 {
		c.EmbedCache.LRUTTLSec = 2 * 60 * 60
	}
	if c.EmbedCache.MaxAgeDays <= 0 {
		c.EmbedCache.MaxAgeDays = 30
	}

	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	switch c.FileStore.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}

	if c.Cron.EmbeddingCacheCleanup == "" {
		c.Cron.EmbeddingCacheCleanup = "30 3 * * *"
	}
	if c.Cron.SessionCleanup == "" {
		c.Cron.SessionCleanup = "0 4 * * *"
	}
	if c.SessionTTLDays <= 0 {
		c.SessionTTLDays = 14
	}
	return nil
}
