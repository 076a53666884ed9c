package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Council  CouncilConfig  `yaml:"council"`
	History  HistoryConfig  `yaml:"history"`
	Data     DataConfig     `yaml:"data"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai, eino
	APIURL      string        `yaml:"api_url"`
	APIKey      string        `yaml:"api_key"`
	MaxTokens   int           `yaml:"max_tokens"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	TitleModel  string        `yaml:"title_model"`
	Referer     string        `yaml:"referer"`
	AppTitle    string        `yaml:"app_title"`
	CatalogTTL  time.Duration `yaml:"catalog_ttl"`
}

// CouncilConfig 议会编排相关配置
type CouncilConfig struct {
	Models              []string                 `yaml:"models"`
	Chairman            string                   `yaml:"chairman"`
	DefaultSystemPrompt string                   `yaml:"default_system_prompt"`
	PoolSize            int                      `yaml:"pool_size"`
	MaxAttempts         int                      `yaml:"max_attempts"`
	BackoffBase         time.Duration            `yaml:"backoff_base"`
	BackoffMax          time.Duration            `yaml:"backoff_max"`
	TurnTimeoutBase     time.Duration            `yaml:"turn_timeout_base"`
	TurnTimeoutPerModel time.Duration            `yaml:"turn_timeout_per_model"`
	TurnTimeoutMax      time.Duration            `yaml:"turn_timeout_max"`
	PingInterval        time.Duration            `yaml:"ping_interval"`
	Pricing             map[string]PricingConfig `yaml:"pricing"`
}

// PricingConfig 单价覆盖，单位：美元 / 百万 token
type PricingConfig struct {
	Prompt     float64 `yaml:"prompt"`
	Completion float64 `yaml:"completion"`
}

// HistoryConfig 历史压缩默认策略
type HistoryConfig struct {
	MaxTurns  int `yaml:"max_turns" json:"max_turns"`
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8001",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/council.db",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			APIURL:      "https://openrouter.ai/api/v1",
			MaxTokens:   4096,
			CallTimeout: 45 * time.Second,
			TitleModel:  "google/gemini-2.5-flash",
			AppTitle:    "LLM Council",
			CatalogTTL:  10 * time.Minute,
		},
		Council: CouncilConfig{
			Models: []string{
				"openai/gpt-5.1-codex-mini",
				"openai/gpt-oss-20b:free",
				"kwaipilot/kat-coder-pro:free",
				"x-ai/grok-4.1-fast:free",
			},
			Chairman:            "tngtech/deepseek-r1t2-chimera:free",
			PoolSize:            4,
			MaxAttempts:         3,
			BackoffBase:         1500 * time.Millisecond,
			BackoffMax:          10 * time.Second,
			TurnTimeoutBase:     60 * time.Second,
			TurnTimeoutPerModel: 45 * time.Second,
			TurnTimeoutMax:      10 * time.Minute,
			PingInterval:        15 * time.Second,
		},
		History: HistoryConfig{
			MaxTurns:  6,
			MaxTokens: 4000,
		},
		Data: DataConfig{
			Dir: "./data",
		},
	}
}

func loadConfig() *Config {
	LoadDotEnv(".env")
	config := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	if err := loadFile(configPath, config); err != nil {
		klog.Warningf("config: ignore %s: %v", configPath, err)
	}

	applyEnv(config)
	return config
}

// loadFile 文件不存在时不做任何事；解析失败时 config 保持原样
func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	parsed := *config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*config = parsed
	return nil
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENROUTER_API_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if titleModel := os.Getenv("TITLE_MODEL"); titleModel != "" {
		config.LLM.TitleModel = titleModel
	}

	if models := os.Getenv("COUNCIL_MODELS"); models != "" {
		var list []string
		for _, m := range strings.Split(models, ",") {
			if m = strings.TrimSpace(m); m != "" {
				list = append(list, m)
			}
		}
		if len(list) > 0 {
			config.Council.Models = list
		}
	}
	if chairman := os.Getenv("CHAIRMAN_MODEL"); chairman != "" {
		config.Council.Chairman = chairman
	}
	if prompt := os.Getenv("DEFAULT_SYSTEM_PROMPT"); prompt != "" {
		config.Council.DefaultSystemPrompt = prompt
	}
	if n, ok := envInt("COUNCIL_POOL_SIZE"); ok && n > 0 {
		config.Council.PoolSize = n
	}

	if n, ok := envInt("HISTORY_MAX_TURNS"); ok {
		config.History.MaxTurns = n
	}
	if n, ok := envInt("HISTORY_MAX_TOKENS"); ok {
		config.History.MaxTokens = n
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
