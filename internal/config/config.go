package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/interview-coach/backend/internal/llm"
)

// 支持的模型供应商。
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderArk       = "ark"
)

// 会话存储后端。
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const (
	defaultMaxTokens      = 1024
	defaultRequestTimeout = 120 * time.Second
	defaultMaxUploadBytes = 10 << 20
)

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-6",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderGemini:    "gemini-2.5-flash",
}

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Store     StoreConfig
	Archive   ArchiveConfig
	Telemetry TelemetryConfig
	LogLevel  string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Store:     store,
		Archive:   loadArchiveConfig(),
		Telemetry: loadTelemetryConfig(),
		LogLevel:  os.Getenv("LOG_LEVEL"),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	MaxUploadBytes int64
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	maxUpload := int64(defaultMaxUploadBytes)
	if override, err := parseOptionalIntEnv("MAX_UPLOAD_BYTES"); err != nil {
		return ServerConfig{}, err
	} else if override != nil {
		if *override <= 0 {
			return ServerConfig{}, fmt.Errorf("invalid MAX_UPLOAD_BYTES value %d: must be positive", *override)
		}
		maxUpload = int64(*override)
	}

	return ServerConfig{
		Addr:           addr,
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		MaxUploadBytes: maxUpload,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	AccessKey      string
	SecretKey      string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      int
	StreamResponse bool
	RequestTimeout time.Duration
	HistoryLimit   int
}

// Validate 检查所选供应商的凭证是否齐全，缺失时启动即失败。
func (c AIConfig) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("%s provider requires an API key (%s)", c.Provider, apiKeyEnv(c.Provider))
		}
	case ProviderArk:
		if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
			return fmt.Errorf("ark provider requires ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("AI_MODEL is required for provider %s", c.Provider)
	}
	return nil
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	settings := llm.Settings{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: toFloat32(c.Temperature),
		TopP:        toFloat32(c.TopP),
	}

	switch c.Provider {
	case ProviderAnthropic:
		return llm.NewAnthropicChatModel(llm.AnthropicConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Settings: settings})
	case ProviderOpenAI:
		return llm.NewOpenAIChatModel(llm.OpenAIConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Settings: settings})
	case ProviderGemini:
		return llm.NewGeminiChatModel(ctx, llm.GeminiConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Settings: settings})
	default:
		maxTokens := c.MaxTokens
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   &maxTokens,
			Temperature: settings.Temperature,
			TopP:        settings.TopP,
		})
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderAnthropic))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := defaultMaxTokens
	if override, err := parseOptionalIntEnv("AI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid AI_MAX_TOKENS value %d: must be positive", *override)
		}
		maxTokens = *override
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_REQUEST_TIMEOUT", defaultRequestTimeout)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 0
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	cfg := AIConfig{
		Provider:       provider,
		Model:          getEnvOrDefault("AI_MODEL", defaultModels[provider]),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
		RequestTimeout: timeout,
		HistoryLimit:   historyLimit,
	}

	switch provider {
	case ProviderAnthropic:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		cfg.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	case ProviderGemini:
		cfg.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		cfg.BaseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	}

	return cfg, nil
}

// StoreConfig 描述会话存储后端。
type StoreConfig struct {
	Backend   string
	RedisURL  string
	KeyPrefix string
}

func loadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:   strings.ToLower(getEnvOrDefault("SESSION_STORE", StoreMemory)),
		RedisURL:  strings.TrimSpace(os.Getenv("REDIS_URL")),
		KeyPrefix: strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX")),
	}

	switch cfg.Backend {
	case StoreMemory:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return StoreConfig{}, fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
		}
	default:
		return StoreConfig{}, fmt.Errorf("unsupported SESSION_STORE %q", cfg.Backend)
	}
	return cfg, nil
}

// ArchiveConfig 描述上传简历的归档位置；Bucket 为空时不归档。
type ArchiveConfig struct {
	Bucket      string
	Prefix      string
	EndpointURL string
	Region      string
	AccessKey   string
	SecretKey   string
}

// Enabled reports whether uploads should be archived.
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Bucket:      strings.TrimSpace(os.Getenv("RESUME_ARCHIVE_BUCKET")),
		Prefix:      getEnvOrDefault("RESUME_ARCHIVE_PREFIX", "resumes"),
		EndpointURL: strings.TrimSpace(os.Getenv("S3_ENDPOINT_URL")),
		Region:      getEnvOrDefault("S3_REGION", "us-east-1"),
		AccessKey:   strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
	}
}

// TelemetryConfig 描述 OpenTelemetry 导出配置。
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

func loadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "interview-coach"),
		OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}
}

func apiKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	val := float32(*v)
	return &val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
