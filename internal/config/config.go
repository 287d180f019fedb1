// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Chroma    ChromaConfig    `mapstructure:"chroma"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Rerank    RerankConfig    `mapstructure:"rerank"`
	Search    SearchConfig    `mapstructure:"search"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
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

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers      string `mapstructure:"brokers"`
	IndexTopic   string `mapstructure:"index_topic"`
	RefreshTopic string `mapstructure:"refresh_topic"`
}

// ChromaConfig 存储向量库后端的配置。
// DistanceMetric 取值 cosine / l2 / ip，与集合创建时的 hnsw:space 对应。
type ChromaConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	DistanceMetric string `mapstructure:"distance_metric"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RerankConfig 存储重排序服务相关的配置。Enabled 为 false 时完全跳过重排。
type RerankConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig 存储搜索融合相关的默认参数。
type SearchConfig struct {
	SemanticWeight  float64 `mapstructure:"semantic_weight"`
	KeywordWeight   float64 `mapstructure:"keyword_weight"`
	DefaultLimit    int     `mapstructure:"default_limit"`
	FallbackEnabled bool    `mapstructure:"fallback_enabled"`
}

// RefreshConfig 存储相关文章缓存刷新的参数。
type RefreshConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	TopN            int           `mapstructure:"top_n"`
	MinScore        float64       `mapstructure:"min_score"`
	RelatedPerEntry int           `mapstructure:"related_per_entry"`
	BatchLimit      int           `mapstructure:"batch_limit"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	Interval        time.Duration `mapstructure:"interval"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	ApplyDefaults(&Conf)
}

// ApplyDefaults 为未配置的搜索/刷新参数补齐默认值。
func ApplyDefaults(c *Config) {
	if c.Search.SemanticWeight == 0 && c.Search.KeywordWeight == 0 {
		c.Search.SemanticWeight = 0.7
		c.Search.KeywordWeight = 0.3
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = 3
	}
	if c.Refresh.TopN == 0 {
		c.Refresh.TopN = 10
	}
	if c.Refresh.MinScore == 0 {
		c.Refresh.MinScore = 0.5
	}
	if c.Refresh.RelatedPerEntry == 0 {
		c.Refresh.RelatedPerEntry = 5
	}
	if c.Refresh.BatchLimit == 0 {
		c.Refresh.BatchLimit = 50
	}
	if c.Refresh.StaleAfter == 0 {
		c.Refresh.StaleAfter = 7 * 24 * time.Hour
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = time.Hour
	}
	if c.Chroma.DistanceMetric == "" {
		c.Chroma.DistanceMetric = "cosine"
	}
}
