package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading API.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string
	CORSOrigins string

	GatewayURL     string
	GatewayTimeout time.Duration
	DefaultModel   string
	Temperature    float64
	MaxTokens      int

	FallbackGeminiAPIKey  string
	FallbackGeminiModel   string
	FallbackGeminiBaseURL string
	FallbackTimeout       time.Duration

	OCRServiceURL string
	OCRTimeout    time.Duration
	OCRMaxRetries int
	OCRRetryDelay time.Duration

	Storage         StorageConfig
	UploadMaxSizeMB int
	DriveBaseURL    string

	ProgressCacheTTL time.Duration
	BatchConcurrency int
	GradingRateLimit int
	GradingRateTTL   time.Duration
}

// StorageConfig selects and configures the file storage backend.
type StorageConfig struct {
	Driver    string
	LocalRoot string

	S3Region string
	S3Bucket string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// GatewayConfig holds runtime configuration values for the LLM gateway.
type GatewayConfig struct {
	AppName string
	AppEnv  string
	AppPort string

	OpenAIAPIKey       string
	AzureAPIKey        string
	AzureEndpoint      string
	AzureAPIVersion    string
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	GeminiAPIKey       string
	GeminiBaseURL      string
	ProviderTimeout    time.Duration
	ModelRegistryFile  string
	CORSAllowedOrigins []string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	return listenAddress(c.AppPort)
}

// HTTPAddress returns the address the gateway should listen on.
func (c GatewayConfig) HTTPAddress() string {
	return listenAddress(c.AppPort)
}

func listenAddress(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}

	return fmt.Sprintf(":%s", port)
}

func newViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AISENSEI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	v := newViper()

	v.SetDefault("app.name", "AI Sensei API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8000")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("gateway.url", "http://localhost:8002")
	v.SetDefault("gateway.timeout", "60s")
	v.SetDefault("grading.default_model", "gemini")
	v.SetDefault("grading.temperature", 0.3)
	v.SetDefault("grading.max_tokens", 2000)
	v.SetDefault("grading.progress_cache_ttl", "30s")
	v.SetDefault("grading.batch_concurrency", 1)
	v.SetDefault("grading.rate_limit", 30)
	v.SetDefault("grading.rate_window", "1m")
	v.SetDefault("fallback.gemini_model", "gemini-1.5-flash")
	v.SetDefault("fallback.gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("fallback.timeout", "60s")
	v.SetDefault("ocr.url", "http://localhost:8001")
	v.SetDefault("ocr.timeout", "300s")
	v.SetDefault("ocr.max_retries", 3)
	v.SetDefault("ocr.retry_delay", "60s")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_root", "./storage")
	v.SetDefault("storage.cloudinary_folder", "aisensei/submissions")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("drive.base_url", "https://www.googleapis.com")

	gatewayTimeout, err := parseDuration(v, "gateway.timeout")
	if err != nil {
		return Config{}, err
	}
	fallbackTimeout, err := parseDuration(v, "fallback.timeout")
	if err != nil {
		return Config{}, err
	}
	ocrTimeout, err := parseDuration(v, "ocr.timeout")
	if err != nil {
		return Config{}, err
	}
	ocrRetryDelay, err := parseDuration(v, "ocr.retry_delay")
	if err != nil {
		return Config{}, err
	}
	progressTTL, err := parseDuration(v, "grading.progress_cache_ttl")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "grading.rate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		JWTSecret:             v.GetString("jwt.secret"),
		CORSOrigins:           v.GetString("cors.allow_origins"),
		GatewayURL:            strings.TrimRight(v.GetString("gateway.url"), "/"),
		GatewayTimeout:        gatewayTimeout,
		DefaultModel:          strings.ToLower(v.GetString("grading.default_model")),
		Temperature:           v.GetFloat64("grading.temperature"),
		MaxTokens:             v.GetInt("grading.max_tokens"),
		FallbackGeminiAPIKey:  v.GetString("fallback.gemini_api_key"),
		FallbackGeminiModel:   v.GetString("fallback.gemini_model"),
		FallbackGeminiBaseURL: v.GetString("fallback.gemini_base_url"),
		FallbackTimeout:       fallbackTimeout,
		OCRServiceURL:         strings.TrimRight(v.GetString("ocr.url"), "/"),
		OCRTimeout:            ocrTimeout,
		OCRMaxRetries:         v.GetInt("ocr.max_retries"),
		OCRRetryDelay:         ocrRetryDelay,
		Storage: StorageConfig{
			Driver:              strings.ToLower(v.GetString("storage.driver")),
			LocalRoot:           v.GetString("storage.local_root"),
			S3Region:            v.GetString("storage.s3_region"),
			S3Bucket:            v.GetString("storage.s3_bucket"),
			MinIOEndpoint:       v.GetString("storage.minio_endpoint"),
			MinIOAccessKey:      v.GetString("storage.minio_access_key"),
			MinIOSecretKey:      v.GetString("storage.minio_secret_key"),
			MinIOBucket:         v.GetString("storage.minio_bucket"),
			MinIOUseSSL:         v.GetBool("storage.minio_use_ssl"),
			CloudinaryCloudName: v.GetString("storage.cloudinary_cloud_name"),
			CloudinaryAPIKey:    v.GetString("storage.cloudinary_api_key"),
			CloudinaryAPISecret: v.GetString("storage.cloudinary_api_secret"),
			CloudinaryFolder:    v.GetString("storage.cloudinary_folder"),
		},
		UploadMaxSizeMB:  v.GetInt("upload.max_size_mb"),
		DriveBaseURL:     strings.TrimRight(v.GetString("drive.base_url"), "/"),
		ProgressCacheTTL: progressTTL,
		BatchConcurrency: v.GetInt("grading.batch_concurrency"),
		GradingRateLimit: v.GetInt("grading.rate_limit"),
		GradingRateTTL:   rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}

	return cfg, nil
}

// LoadGateway reads the LLM gateway configuration.
func LoadGateway() (GatewayConfig, error) {
	v := newViper()

	v.SetDefault("gateway.name", "LLM Gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("gateway.port", "8002")
	v.SetDefault("azure.api_version", "2024-02-15-preview")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gateway.provider_timeout", "60s")
	v.SetDefault("gateway.cors_origins", "*")

	timeout, err := parseDuration(v, "gateway.provider_timeout")
	if err != nil {
		return GatewayConfig{}, err
	}

	origins := make([]string, 0)
	for _, origin := range strings.Split(v.GetString("gateway.cors_origins"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return GatewayConfig{
		AppName:            v.GetString("gateway.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("gateway.port"),
		OpenAIAPIKey:       v.GetString("openai.api_key"),
		AzureAPIKey:        v.GetString("azure.api_key"),
		AzureEndpoint:      v.GetString("azure.endpoint"),
		AzureAPIVersion:    v.GetString("azure.api_version"),
		AnthropicAPIKey:    v.GetString("anthropic.api_key"),
		AnthropicBaseURL:   strings.TrimRight(v.GetString("anthropic.base_url"), "/"),
		GeminiAPIKey:       v.GetString("gemini.api_key"),
		GeminiBaseURL:      strings.TrimRight(v.GetString("gemini.base_url"), "/"),
		ProviderTimeout:    timeout,
		ModelRegistryFile:  v.GetString("gateway.model_registry_file"),
		CORSAllowedOrigins: origins,
	}, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return duration, nil
}
