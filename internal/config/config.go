// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Scraper       ScraperConfig       `mapstructure:"scraper"`
	Adaptive      AdaptiveConfig      `mapstructure:"adaptive"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Session       SessionConfig       `mapstructure:"session"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Admin         AdminConfig         `mapstructure:"admin"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int64  `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint          string `mapstructure:"endpoint"`
	AccessKeyID       string `mapstructure:"access_key_id"`
	SecretAccessKey   string `mapstructure:"secret_access_key"`
	UseSSL            bool   `mapstructure:"use_ssl"`
	Region            string `mapstructure:"region"`
	BucketName        string `mapstructure:"bucket_name"`
	PresignExpiryMins int    `mapstructure:"presign_expiry_minutes"`
}

// PresignExpiry 返回预签名 URL 的有效期。
func (c MinIOConfig) PresignExpiry() time.Duration {
	return time.Duration(c.PresignExpiryMins) * time.Minute
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储主模型、备用模型以及生成参数。
type LLMConfig struct {
	Primary        LLMModelConfig `mapstructure:"primary"`
	Fallback       LLMModelConfig `mapstructure:"fallback"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	MaxTokens      int            `mapstructure:"max_tokens"`
	Temperature    float64        `mapstructure:"temperature"`
	Retry          LLMRetryConfig `mapstructure:"retry"`
}

// LLMModelConfig 描述一个具体的模型提供方。provider 取值 openai / ollama / anthropic / gemini。
type LLMModelConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
}

// LLMRetryConfig 配置瞬时错误的重试策略。
type LLMRetryConfig struct {
	MaxAttempts   int     `mapstructure:"max_attempts"`
	InitialWaitMS int     `mapstructure:"initial_wait_ms"`
	MaxWaitMS     int     `mapstructure:"max_wait_ms"`
	Multiplier    float64 `mapstructure:"multiplier"`
}

// Timeout 返回单次模型调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SpeechConfig 存储语音转写与语音合成的配置。
type SpeechConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	TTSModel           string `mapstructure:"tts_model"`
	Voice              string `mapstructure:"voice"`
	MaxChars           int    `mapstructure:"max_chars"`
}

// ScraperConfig 存储网页兜底检索的配置。
type ScraperConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	NCERTBaseURL   string `mapstructure:"ncert_base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AdaptiveConfig 存储难度分层的阈值。
type AdaptiveConfig struct {
	StepDownRatio             float64               `mapstructure:"step_down_ratio"`
	StepUpRatio               float64               `mapstructure:"step_up_ratio"`
	MinSuccessesForStepUp     int64                 `mapstructure:"min_successes_for_step_up"`
	MinQueriesBetweenChanges  int64                 `mapstructure:"min_queries_between_changes"`
	ResourceRelevanceFloor    float64               `mapstructure:"resource_relevance_floor"`
	ResourceStruggleThreshold int64                 `mapstructure:"resource_struggle_threshold"`
	Bounds                    map[string]TierBounds `mapstructure:"bounds"`
}

// TierBounds 表示某个年级段允许的最低与最高难度。
type TierBounds struct {
	Floor   string `mapstructure:"floor"`
	Ceiling string `mapstructure:"ceiling"`
}

// CacheConfig 存储问答缓存的淘汰策略。
type CacheConfig struct {
	TTLHours             int `mapstructure:"ttl_hours"`
	PurgeIntervalMinutes int `mapstructure:"purge_interval_minutes"`
}

// TTL 返回缓存条目的存活时间，0 表示永不过期。
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SessionConfig 存储会话超时配置。
type SessionConfig struct {
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	HistoryTurns   int `mapstructure:"history_turns"`
}

// Timeout 返回会话空闲超时时间。
func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// RetrievalConfig 存储检索相关参数。
type RetrievalConfig struct {
	TopK         int     `mapstructure:"top_k"`
	MinRelevance float64 `mapstructure:"min_relevance"`
}

// AdminConfig 存储管理员账号。password_hash 为 bcrypt 哈希。
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// setDefaults 为可调参数设置默认值，配置文件中未出现的键将使用这些值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("kafka.topic", "textbook-ingest")
	v.SetDefault("kafka.group_id", "ncert-tutor-ingest")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("elasticsearch.index_name", "ncert_passages")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.presign_expiry_minutes", 60)
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.retry.max_attempts", 2)
	v.SetDefault("llm.retry.initial_wait_ms", 500)
	v.SetDefault("llm.retry.max_wait_ms", 4000)
	v.SetDefault("llm.retry.multiplier", 2.0)
	v.SetDefault("speech.transcription_model", "whisper-1")
	v.SetDefault("speech.tts_model", "tts-1")
	v.SetDefault("speech.voice", "alloy")
	v.SetDefault("speech.max_chars", 500)
	v.SetDefault("scraper.enabled", true)
	v.SetDefault("scraper.ncert_base_url", "https://ncert.nic.in")
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("scraper.timeout_seconds", 10)
	v.SetDefault("adaptive.step_down_ratio", 0.4)
	v.SetDefault("adaptive.step_up_ratio", 0.1)
	v.SetDefault("adaptive.min_successes_for_step_up", 5)
	v.SetDefault("adaptive.min_queries_between_changes", 3)
	v.SetDefault("adaptive.resource_relevance_floor", 0.3)
	v.SetDefault("adaptive.resource_struggle_threshold", 2)
	v.SetDefault("cache.ttl_hours", 168)
	v.SetDefault("cache.purge_interval_minutes", 30)
	v.SetDefault("session.timeout_minutes", 30)
	v.SetDefault("session.history_turns", 3)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.min_relevance", 0.3)
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Load 读取并解析配置文件，不修改全局 Conf。
// 配置文件同目录下的 .env 会先载入环境变量（不覆盖已有变量），
// TUTOR_ 前缀的环境变量优先于 YAML，例如 TUTOR_LLM_PRIMARY_API_KEY。
func Load(configPath string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 %s 失败: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}
