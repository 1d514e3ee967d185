package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is built once at start-up and handed to constructors by pointer.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Store     StoreConfig     `toml:"store"`
	Analyzer  AnalyzerConfig  `toml:"analyzer"`
	Feedback  FeedbackConfig  `toml:"feedback"`
}

type ServerConfig struct {
	Addr         string        `toml:"addr"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// LLMConfig describes the chat model and the call policy around it.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider      string        `toml:"provider"`
	APIKey        string        `toml:"api_key"`
	BaseURL       string        `toml:"base_url"`
	Model         string        `toml:"model"`
	DeepModel     string        `toml:"deep_model"`
	MaxTokens     int           `toml:"max_tokens"`
	DeepMaxTokens int           `toml:"deep_max_tokens"`
	Temperature   float32       `toml:"temperature"`
	Timeout       time.Duration `toml:"timeout"`
	// MaxRetries is how many times a failed call is retried (LLM_MAX_RETRIES).
	MaxRetries int           `toml:"max_retries"`
	Backoff    time.Duration `toml:"backoff"`
	// TokenLimit is the model context size used to budget chat history.
	TokenLimit           int `toml:"token_limit"`
	ReservedAnswerTokens int `toml:"reserved_answer_tokens"`
}

type EmbeddingConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	BatchSize int    `toml:"batch_size"`
}

type QdrantConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key"`
	UseTLS     bool   `toml:"use_tls"`
	Collection string `toml:"collection"`
	VectorSize int    `toml:"vector_size"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	// Driver is "memory", "file" or "postgres".
	Driver  string        `toml:"driver"`
	Dir     string        `toml:"dir"`
	DSN     string        `toml:"dsn"`
	Timeout time.Duration `toml:"timeout"`
}

// AnalyzerConfig points at the static-analysis service. An empty URL disables it.
type AnalyzerConfig struct {
	URL       string        `toml:"url"`
	FieldName string        `toml:"field_name"`
	Timeout   time.Duration `toml:"timeout"`
}

type FeedbackConfig struct {
	// DriftPolicy is "line_count" or "diff".
	DriftPolicy     string  `toml:"drift_policy"`
	DriftThreshold  int     `toml:"drift_threshold"`
	MaxChangedRatio float64 `toml:"max_changed_ratio"`
	// Tokenizer is "treesitter" or "lexical".
	Tokenizer string `toml:"tokenizer"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		LLM: LLMConfig{
			Provider:             "openai",
			Model:                "qwen-plus",
			DeepModel:            "qwen-max",
			MaxTokens:            1000,
			DeepMaxTokens:        4000,
			Temperature:          0.2,
			Timeout:              60 * time.Second,
			MaxRetries:           3,
			Backoff:              time.Second,
			TokenLimit:           32768,
			ReservedAnswerTokens: 1000,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			BatchSize: 100,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "profile_sections",
			VectorSize: 1536,
		},
		Store: StoreConfig{
			Driver:  "memory",
			Dir:     "data/sessions",
			Timeout: 5 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			FieldName: "code_file",
			Timeout:   30 * time.Second,
		},
		Feedback: FeedbackConfig{
			DriftPolicy:     "line_count",
			MaxChangedRatio: 0.3,
			Tokenizer:       "treesitter",
		},
	}
}

// Load reads configuration in increasing priority: defaults, the .env files, the
// optional TOML file at path, then environment variables.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env", ".env.local"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)

	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_DEEP_MODEL", &c.LLM.DeepModel)
	num("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	num("LLM_MAX_RETRIES", &c.LLM.MaxRetries)
	num("LLM_TOKEN_LIMIT", &c.LLM.TokenLimit)
	dur("LLM_TIMEOUT", &c.LLM.Timeout)
	str("LLM_API_KEY", &c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			str("ANTHROPIC_API_KEY", &c.LLM.APIKey)
		default:
			// The default endpoint is Qwen's; a Qwen key wins over an OpenAI one.
			str("QWEN_API_KEY", &c.LLM.APIKey)
			if c.LLM.APIKey == "" {
				str("OPENAI_API_KEY", &c.LLM.APIKey)
			}
		}
	}

	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	str("OPENAI_API_KEY", &c.Embedding.APIKey)

	str("QDRANT_HOST", &c.Qdrant.Host)
	num("QDRANT_PORT", &c.Qdrant.Port)
	str("QDRANT_API_KEY", &c.Qdrant.APIKey)
	str("QDRANT_COLLECTION", &c.Qdrant.Collection)

	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DIR", &c.Store.Dir)
	str("DATABASE_URL", &c.Store.DSN)
	dur("STORE_TIMEOUT", &c.Store.Timeout)

	str("ANALYZER_URL", &c.Analyzer.URL)

	str("DRIFT_POLICY", &c.Feedback.DriftPolicy)
	str("TOKENIZER", &c.Feedback.Tokenizer)

	return errors.Join(errs...)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("llm.max_retries must not be negative"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.TokenLimit <= c.LLM.ReservedAnswerTokens {
		errs = append(errs, errors.New("llm.token_limit must exceed llm.reserved_answer_tokens"))
	}
	switch c.Store.Driver {
	case "memory":
	case "file":
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file store"))
		}
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}
	switch c.Feedback.DriftPolicy {
	case "line_count", "diff":
	default:
		errs = append(errs, fmt.Errorf("feedback.drift_policy: unknown policy %q", c.Feedback.DriftPolicy))
	}
	if c.Feedback.DriftThreshold < 0 {
		errs = append(errs, errors.New("feedback.drift_threshold must not be negative"))
	}
	switch c.Feedback.Tokenizer {
	case "treesitter", "lexical":
	default:
		errs = append(errs, fmt.Errorf("feedback.tokenizer: unknown tokenizer %q", c.Feedback.Tokenizer))
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, errors.New("embedding.batch_size must be at least 1"))
	}
	return errors.Join(errs...)
}

// String summarises the configuration for logs without credentials.
func (c *Config) String() string {
	return fmt.Sprintf("llm=%s/%s store=%s analyzer=%t qdrant=%s:%d/%s drift=%s tokenizer=%s",
		c.LLM.Provider, c.LLM.Model, c.Store.Driver, strings.TrimSpace(c.Analyzer.URL) != "",
		c.Qdrant.Host, c.Qdrant.Port, c.Qdrant.Collection, c.Feedback.DriftPolicy, c.Feedback.Tokenizer)
}
