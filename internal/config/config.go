// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig          `mapstructure:"server"`
	Log           LogConfig             `mapstructure:"log"`
	Database      DatabaseConfig        `mapstructure:"database"`
	Redis         RedisConfig           `mapstructure:"redis"`
	JWT           JWTConfig             `mapstructure:"jwt"`
	Auth          AuthConfig            `mapstructure:"auth"`
	Roles         map[string]RoleConfig `mapstructure:"roles"`
	LLM           LLMConfig             `mapstructure:"llm"`
	Embedding     EmbeddingConfig       `mapstructure:"embedding"`
	Tika          TikaConfig            `mapstructure:"tika"`
	OCR           OCRConfig             `mapstructure:"ocr"`
	Elasticsearch ElasticsearchConfig   `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig           `mapstructure:"minio"`
	Kafka         KafkaConfig           `mapstructure:"kafka"`
	Retrieval     RetrievalConfig       `mapstructure:"retrieval"`
	Conversation  ConversationConfig    `mapstructure:"conversation"`
	Classifier    ClassifierConfig      `mapstructure:"classifier"`
	Formatter     FormatterConfig       `mapstructure:"formatter"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// UploadDir 为上传文件的临时落盘目录，为空时使用系统临时目录。
	UploadDir string `mapstructure:"upload_dir"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储目标 MySQL 数据库的连接默认值与超时设置。
// 密码不落配置，由用户在连接时提供。
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Name           string        `mapstructure:"name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时对话记录只保存在进程内存中。
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// AuthConfig 列出允许登录的用户。
type AuthConfig struct {
	Users []UserConfig `mapstructure:"users"`
}

// UserConfig 是一个可登录用户，密码以 bcrypt 哈希保存。
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// RoleConfig 定义某个角色不可查询的列。
type RoleConfig struct {
	RestrictedColumns []string `mapstructure:"restricted_columns"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	EventLogPath string        `mapstructure:"event_log_path"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
	// OCRStrategy 透传给 X-Tika-PDFOcrStrategy，例如 "auto"、"ocr_and_text"。
	OCRStrategy string        `mapstructure:"ocr_strategy"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// OCRConfig 配置 ocrmypdf 命令行。
type OCRConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Enabled 为 false 时使用内存向量索引。
type ElasticsearchConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// KafkaConfig 存储审计事件 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// RetrievalConfig 控制切块与 MMR 检索参数。
type RetrievalConfig struct {
	ChunkSize    int     `mapstructure:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap"`
	K            int     `mapstructure:"k"`
	FetchK       int     `mapstructure:"fetch_k"`
	Lambda       float64 `mapstructure:"lambda"`
	Temperature  float64 `mapstructure:"temperature"`
}

// ConversationConfig 控制对话窗口大小与存储上限。
type ConversationConfig struct {
	Window   int `mapstructure:"window"`
	MaxTurns int `mapstructure:"max_turns"`
}

// ClassifierConfig 控制问题分类。Fallback 为模型失败时采用的分类。
type ClassifierConfig struct {
	Fallback    string  `mapstructure:"fallback"`
	Temperature float64 `mapstructure:"temperature"`
}

// FormatterConfig 控制结果预览。
type FormatterConfig struct {
	PreviewLimit int `mapstructure:"preview_limit"`
}

// SplitBrokers 将逗号分隔的 broker 列表拆分为切片。
func (k KafkaConfig) SplitBrokers() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// setDefaults 注册所有默认值，配置文件与环境变量会覆盖它们。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.query_timeout", 30*time.Second)

	v.SetDefault("redis.ttl", 7*24*time.Hour)
	v.SetDefault("jwt.access_token_expire_hours", 12)

	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("tika.timeout", 120*time.Second)

	v.SetDefault("ocr.command", "ocrmypdf")
	v.SetDefault("ocr.args", []string{"--deskew", "--clean", "--skip-text", "--quiet"})
	v.SetDefault("ocr.timeout", 5*time.Minute)

	v.SetDefault("elasticsearch.index_prefix", "querybot-chunks")
	v.SetDefault("minio.bucket_name", "querybot")
	v.SetDefault("kafka.topic", "querybot-audit")

	v.SetDefault("retrieval.chunk_size", 512)
	v.SetDefault("retrieval.chunk_overlap", 128)
	v.SetDefault("retrieval.k", 5)
	v.SetDefault("retrieval.fetch_k", 20)
	v.SetDefault("retrieval.lambda", 0.5)
	v.SetDefault("retrieval.temperature", 0.1)

	v.SetDefault("conversation.window", 4)
	v.SetDefault("conversation.max_turns", 50)
	v.SetDefault("classifier.fallback", "unstructured")
	v.SetDefault("classifier.temperature", 0.0)
	v.SetDefault("formatter.preview_limit", 10)
}

// Load 从指定路径读取 YAML 配置，环境变量 QUERYBOT_* 可覆盖同名键。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUERYBOT")
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

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
