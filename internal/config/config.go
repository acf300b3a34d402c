package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	VerifyToken       string
	WhatsAppToken     string
	WhatsAppPhoneID   string
	WhatsAppAppSecret string
	WhatsAppGraphBase string

	// WooCommerce catalog
	WooCommerceURL            string
	WooCommerceConsumerKey    string
	WooCommerceConsumerSecret string
	CatalogPageSize           int
	CatalogCacheTTL           time.Duration

	// Completion service
	LLMProvider     string
	GPTAPIKey       string
	OpenAIModel     string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	GeminiModel     string
	BedrockModelID  string
	LLMSystemPrompt string

	// Conversation store bounds
	ConversationMaxTurns      int
	ConversationIdleTTL       time.Duration
	ConversationSweepInterval time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DedupTTL      time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VerifyToken:       getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:     getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID:   getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppAppSecret: getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppGraphBase: getEnv("WHATSAPP_GRAPH_BASE", "https://graph.facebook.com/v17.0"),

		WooCommerceURL:            getEnv("WOOCOMMERCE_URL", ""),
		WooCommerceConsumerKey:    getEnv("WOOCOMMERCE_CONSUMER_KEY", ""),
		WooCommerceConsumerSecret: getEnv("WOOCOMMERCE_CONSUMER_SECRET", ""),
		CatalogPageSize:           getEnvAsInt("CATALOG_PAGE_SIZE", 5),
		CatalogCacheTTL:           getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		GPTAPIKey:       getEnv("GPT_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		LLMSystemPrompt: getEnv("LLM_SYSTEM_PROMPT", ""),

		ConversationMaxTurns:      getEnvAsInt("CONVERSATION_MAX_TURNS", 0),
		ConversationIdleTTL:       getEnvAsDuration("CONVERSATION_IDLE_TTL", 0),
		ConversationSweepInterval: getEnvAsDuration("CONVERSATION_SWEEP_INTERVAL", 10*time.Minute),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DedupTTL:      getEnvAsDuration("WHATSAPP_DEDUP_TTL", 24*time.Hour),
	}
}

// Validate reports settings the bridge cannot run without. All problems are
// joined into a single error so operators see them at once.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"VERIFY_TOKEN", c.VerifyToken},
		{"WHATSAPP_TOKEN", c.WhatsAppToken},
		{"WHATSAPP_PHONE_ID", c.WhatsAppPhoneID},
		{"WOOCOMMERCE_URL", c.WooCommerceURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("config: %s is required", r.name))
		}
	}

	switch c.LLMProvider {
	case "openai":
		if c.GPTAPIKey == "" {
			errs = append(errs, errors.New("config: GPT_API_KEY is required for the openai provider"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("config: GEMINI_API_KEY is required for the gemini provider"))
		}
	case "bedrock":
		if c.BedrockModelID == "" {
			errs = append(errs, errors.New("config: BEDROCK_MODEL_ID is required for the bedrock provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unsupported LLM_PROVIDER %q", c.LLMProvider))
	}

	if c.ConversationMaxTurns < 0 {
		errs = append(errs, errors.New("config: CONVERSATION_MAX_TURNS must not be negative"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
