package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	JWT        JWTConfig
	Store      StoreConfig
	Moderation ModerationConfig
	Assistant  AssistantConfig
	Chat       ChatConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Log        LogConfig
}

type ServerConfig struct {
	Address string
}

type DBConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     int
	SSLMode  string `mapstructure:"ssl_mode"`
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// StoreConfig 控制對話儲存的超時
type StoreConfig struct {
	Timeout time.Duration
}

// ModerationConfig 內容審核服務的設定，APIKey 為空時只使用本地檢查
type ModerationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout time.Duration
	// 連續失敗多少次後熔斷
	MaxFailures  uint32        `mapstructure:"max_failures"`
	BreakerReset time.Duration `mapstructure:"breaker_reset"`
}

// AssistantConfig AI 回覆服務的設定
type AssistantConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64
	Timeout      time.Duration
	HistorySize  int           `mapstructure:"history_size"`
	MaxFailures  uint32        `mapstructure:"max_failures"`
	BreakerReset time.Duration `mapstructure:"breaker_reset"`
}

type ChatConfig struct {
	MaxContentLength int     `mapstructure:"max_content_length"`
	SendBuffer       int     `mapstructure:"send_buffer"`
	RatePerSecond    float64 `mapstructure:"rate_per_second"`
	RateBurst        int     `mapstructure:"rate_burst"`
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level       string
	Development bool
}

// Load 讀取 .env、config.yaml 與 CHAT_ 開頭的環境變數
func Load() (*Config, error) {
	// .env 不存在時直接忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./pkg/config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if config.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is required")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":5000")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "chat")
	v.SetDefault("db.name", "chat")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.ssl_mode", "disable")

	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("moderation.base_url", "https://api.openai.com/v1")
	v.SetDefault("moderation.timeout", 5*time.Second)
	v.SetDefault("moderation.max_failures", 5)
	v.SetDefault("moderation.breaker_reset", 30*time.Second)

	v.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistant.model", "gpt-3.5-turbo")
	v.SetDefault("assistant.max_tokens", 150)
	v.SetDefault("assistant.temperature", 0.7)
	v.SetDefault("assistant.timeout", 15*time.Second)
	v.SetDefault("assistant.history_size", 10)
	v.SetDefault("assistant.max_failures", 5)
	v.SetDefault("assistant.breaker_reset", 30*time.Second)

	v.SetDefault("chat.max_content_length", 4096)
	v.SetDefault("chat.send_buffer", 256)
	v.SetDefault("chat.rate_per_second", 5.0)
	v.SetDefault("chat.rate_burst", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "chat")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "chat.message.sent")

	v.SetDefault("log.level", "info")
}
