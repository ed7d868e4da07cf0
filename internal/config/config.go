// Package config loads the pipeline configuration from environment
// variables (optionally a .env file or a YAML config file) into one
// typed Config record.
package config

import (
	"fmt"
	"os"
	"strings"

	"newsward/internal/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete pipeline configuration.
type Config struct {
	Eedition Eedition `mapstructure:"eedition"`
	Proxy    Proxy    `mapstructure:"proxy"`
	Minio    Minio    `mapstructure:"minio"`
	Database Database `mapstructure:"database"`
	LLM      LLM      `mapstructure:"llm"`
	Ntfy     Ntfy     `mapstructure:"ntfy"`
	Scraper  Scraper  `mapstructure:"scraper"`
	Worker   Worker   `mapstructure:"worker"`
	Server   Server   `mapstructure:"server"`
	Logging  Logging  `mapstructure:"logging"`
}

// Eedition holds publisher site credentials and the edition entry URL.
type Eedition struct {
	BaseURL  string `mapstructure:"base_url"` // Landing URL of the e-edition site
	Username string `mapstructure:"username"` // Login email/username
	Password string `mapstructure:"password"` // Login password
	Slug     string `mapstructure:"slug"`     // Publication slug used in object keys
}

// Proxy configures the rotating residential proxy pool.
type Proxy struct {
	Host            string `mapstructure:"host"`             // Proxy gateway host
	RawPorts        string `mapstructure:"ports"`            // Comma-separated gateway ports
	Ports           []int  `mapstructure:"-"`                // Parsed from RawPorts
	Username        string `mapstructure:"username"`         // Proxy auth user
	Password        string `mapstructure:"password"`         // Proxy auth password
	RotationEnabled bool   `mapstructure:"rotation_enabled"` // Rotate endpoints per attempt
}

// Minio configures the raw-blob object store.
type Minio struct {
	Endpoint  string `mapstructure:"endpoint"`   // host:port or URL; https implies secure
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// Database holds the PostgreSQL DSN.
type Database struct {
	URL string `mapstructure:"url"`
}

// LLM configures the OpenAI-compatible summarization endpoint.
type LLM struct {
	APIBase        string `mapstructure:"api_base"`        // Base URL, e.g. http://ollama:11434/v1
	APIKey         string `mapstructure:"api_key"`         // Bearer key; some local backends accept anything
	Model          string `mapstructure:"model"`           // Chat model identifier
	EmbeddingModel string `mapstructure:"embedding_model"` // Embedding model; empty disables embeddings
	MaxTokens      int    `mapstructure:"max_tokens"`      // Completion cap per request
	InputCharCap   int    `mapstructure:"input_char_cap"`  // Article text truncation bound for prompts
}

// Ntfy configures digest push notifications.
type Ntfy struct {
	URL        string `mapstructure:"url"`         // ntfy server base URL
	Topic      string `mapstructure:"topic"`       // Topic to publish to
	Token      string `mapstructure:"token"`       // Optional bearer token
	ClickURL   string `mapstructure:"click_url"`   // Optional link opened on tap
	AttachFull bool   `mapstructure:"attach_full"` // Attach the full digest as a text file
}

// Scraper tunes discovery and download behavior.
type Scraper struct {
	Parallelism   int    `mapstructure:"parallelism"`    // Concurrent downloads
	RetentionDays int    `mapstructure:"retention_days"` // cleanup: delete raw blobs older than this
	Browser       string `mapstructure:"browser"`        // firefox / chromium / webkit
	Trace         bool   `mapstructure:"trace"`          // Save playwright traces
	StateDir      string `mapstructure:"state_dir"`      // Local dir for storage_state files
}

// Worker tunes the summarizer batch worker.
type Worker struct {
	BatchSize     int `mapstructure:"batch_size"`     // Articles fetched per batch
	MaxConcurrent int `mapstructure:"max_concurrent"` // In-flight LLM calls
}

// Server configures the HTTP API.
type Server struct {
	Addr      string `mapstructure:"addr"`       // Listen address, e.g. :8000
	StaticDir string `mapstructure:"static_dir"` // SPA asset directory
}

// Logging mirrors LOG_LEVEL for components that need it directly.
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from .env, an optional config file and
// the environment. The result is cached for the process lifetime.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsward")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, core.E(core.KindConfig, "error reading config file", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, core.E(core.KindConfig, "error unmarshaling config", err)
	}

	postProcessConfig(config)

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("eedition.slug", "local-news")

	viper.SetDefault("proxy.rotation_enabled", true)

	viper.SetDefault("minio.bucket", "eedition-raw")
	viper.SetDefault("minio.secure", false)

	viper.SetDefault("llm.api_base", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.input_char_cap", 6000)

	viper.SetDefault("ntfy.url", "https://ntfy.sh")

	viper.SetDefault("scraper.parallelism", 4)
	viper.SetDefault("scraper.retention_days", 7)
	viper.SetDefault("scraper.browser", "firefox")
	viper.SetDefault("scraper.trace", false)
	viper.SetDefault("scraper.state_dir", "storage")

	viper.SetDefault("worker.batch_size", 10)
	viper.SetDefault("worker.max_concurrent", 3)

	viper.SetDefault("server.addr", ":8000")
	viper.SetDefault("server.static_dir", "static/ui")

	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables sets up environment variable binding for the
// flat names the deployment uses.
func bindEnvironmentVariables() {
	bindEnvKeys("eedition.base_url", []string{"EEDITION_URL", "EEDITION_BASE_URL"})
	bindEnvKeys("eedition.username", []string{"EEDITION_USER", "EEDITION_USERNAME"})
	bindEnvKeys("eedition.password", []string{"EEDITION_PASS", "EEDITION_PASSWORD"})
	bindEnvKeys("eedition.slug", []string{"EEDITION_SLUG"})

	bindEnvKeys("proxy.host", []string{"SMARTPROXY_HOST", "PROXY_HOST"})
	bindEnvKeys("proxy.ports", []string{"SMARTPROXY_PORTS", "PROXY_PORTS"})
	bindEnvKeys("proxy.username", []string{"SMARTPROXY_USERNAME", "PROXY_USERNAME"})
	bindEnvKeys("proxy.password", []string{"SMARTPROXY_PASSWORD", "PROXY_PASSWORD"})
	bindEnvKeys("proxy.rotation_enabled", []string{"PROXY_ROTATION_ENABLED"})

	bindEnvKeys("minio.endpoint", []string{"MINIO_ENDPOINT"})
	bindEnvKeys("minio.access_key", []string{"MINIO_ACCESS_KEY"})
	bindEnvKeys("minio.secret_key", []string{"MINIO_SECRET_KEY"})
	bindEnvKeys("minio.bucket", []string{"MINIO_BUCKET"})
	bindEnvKeys("minio.secure", []string{"MINIO_SECURE"})

	bindEnvKeys("database.url", []string{"DATABASE_URL"})

	bindEnvKeys("llm.api_base", []string{"OPENAI_API_BASE", "OPENAI_BASE_URL"})
	bindEnvKeys("llm.api_key", []string{"OPENAI_API_KEY"})
	bindEnvKeys("llm.model", []string{"OPENAI_MODEL", "SUMMARY_MODEL"})
	bindEnvKeys("llm.embedding_model", []string{"OPENAI_EMBEDDING_MODEL", "EMBEDDING_MODEL"})
	bindEnvKeys("llm.max_tokens", []string{"OPENAI_MAX_TOKENS"})
	bindEnvKeys("llm.input_char_cap", []string{"SUMMARY_INPUT_CHAR_CAP"})

	bindEnvKeys("ntfy.url", []string{"NTFY_URL"})
	bindEnvKeys("ntfy.topic", []string{"NTFY_TOPIC"})
	bindEnvKeys("ntfy.token", []string{"NTFY_TOKEN"})
	bindEnvKeys("ntfy.click_url", []string{"NTFY_CLICK_URL"})
	bindEnvKeys("ntfy.attach_full", []string{"NTFY_ATTACH_FULL"})

	bindEnvKeys("scraper.parallelism", []string{"SCRAPER_PARALLELISM"})
	bindEnvKeys("scraper.retention_days", []string{"CACHE_RETENTION_DAYS"})
	bindEnvKeys("scraper.browser", []string{"PW_BROWSER"})
	bindEnvKeys("scraper.trace", []string{"PW_TRACE"})
	bindEnvKeys("scraper.state_dir", []string{"STORAGE_STATE_DIR"})

	bindEnvKeys("worker.batch_size", []string{"BATCH_SIZE"})
	bindEnvKeys("worker.max_concurrent", []string{"MAX_CONCURRENT_SUMMARIES"})

	bindEnvKeys("server.addr", []string{"API_ADDR", "SERVER_ADDR"})
	bindEnvKeys("server.static_dir", []string{"STATIC_DIR"})

	bindEnvKeys("logging.level", []string{"LOG_LEVEL"})
}

// bindEnvKeys binds multiple environment variable names to a config key.
func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if err := viper.BindEnv(configKey, envKey); err != nil {
			fmt.Printf("Warning: Failed to bind %s to %s: %v\n", envKey, configKey, err)
		}
	}
}

// postProcessConfig fills in values that need parsing beyond viper's
// unmarshal, like the comma-separated proxy port list.
func postProcessConfig(config *Config) {
	if config.Proxy.RawPorts != "" {
		config.Proxy.Ports = parsePorts(config.Proxy.RawPorts)
	}
	if strings.HasPrefix(config.Minio.Endpoint, "https://") {
		config.Minio.Secure = true
	}
}

func parsePorts(raw string) []int {
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var p int
		if _, err := fmt.Sscanf(part, "%d", &p); err == nil && p > 0 {
			ports = append(ports, p)
		}
	}
	return ports
}

// ValidateScraper checks the settings the scraper commands need.
func (c *Config) ValidateScraper() error {
	var missing []string
	if c.Eedition.BaseURL == "" {
		missing = append(missing, "EEDITION_URL")
	}
	if c.Eedition.Username == "" {
		missing = append(missing, "EEDITION_USER")
	}
	if c.Eedition.Password == "" {
		missing = append(missing, "EEDITION_PASS")
	}
	if err := c.ValidateBlobstore(); err != nil {
		return err
	}
	return missingErr(missing)
}

// ValidateBlobstore checks the object-store settings.
func (c *Config) ValidateBlobstore() error {
	var missing []string
	if c.Minio.Endpoint == "" {
		missing = append(missing, "MINIO_ENDPOINT")
	}
	if c.Minio.AccessKey == "" {
		missing = append(missing, "MINIO_ACCESS_KEY")
	}
	if c.Minio.SecretKey == "" {
		missing = append(missing, "MINIO_SECRET_KEY")
	}
	return missingErr(missing)
}

// ValidateDatabase checks the PostgreSQL DSN is present.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return missingErr([]string{"DATABASE_URL"})
	}
	return nil
}

// ValidateLLM checks the summarizer endpoint settings.
func (c *Config) ValidateLLM() error {
	var missing []string
	if c.LLM.APIBase == "" {
		missing = append(missing, "OPENAI_API_BASE")
	}
	if c.LLM.Model == "" {
		missing = append(missing, "OPENAI_MODEL")
	}
	return missingErr(missing)
}

// ValidateNtfy checks the notifier settings.
func (c *Config) ValidateNtfy() error {
	var missing []string
	if c.Ntfy.URL == "" {
		missing = append(missing, "NTFY_URL")
	}
	if c.Ntfy.Topic == "" {
		missing = append(missing, "NTFY_TOPIC")
	}
	return missingErr(missing)
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return core.E(core.KindConfig, "missing required configuration: %s", strings.Join(missing, ", "))
}

// Reset clears the cached configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}
