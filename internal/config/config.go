// Package config 负责加载和管理网关的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充。
var Conf Config

// Config 是整个网关的配置结构体，与 configs/config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Client   ClientConfig   `mapstructure:"client"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ServerConfig 存储 HTTP 服务相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RedisConfig 存储 Redis 的配置，Redis 充当每个浏览器的本地键值存储。
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ClientConfig 存储浏览器身份 cookie 的配置。
type ClientConfig struct {
	CookieName  string `mapstructure:"cookie_name"`
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Secure      bool   `mapstructure:"secure"`
}

// BackendConfig 存储后端 REST API 的配置。
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 返回单个后端请求的超时时间。
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// AnalysisConfig 控制症状分析的轮询行为。
type AnalysisConfig struct {
	PollIntervalMS    int `mapstructure:"poll_interval_ms"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	ServerWaitSeconds int `mapstructure:"server_wait_seconds"`
	IdleTTLMinutes    int `mapstructure:"idle_ttl_minutes"`
}

// PollInterval 返回两次轮询之间的间隔。
func (a AnalysisConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// IdleTTL 返回共享工作流空闲多久后被回收，0 表示不回收。
func (a AnalysisConfig) IdleTTL() time.Duration {
	return time.Duration(a.IdleTTLMinutes) * time.Minute
}

// KafkaConfig 存储 Kafka 相关的配置，Brokers 为空时不发布事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储报告归档用的对象存储配置，Endpoint 为空时不启用归档。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	URLExpireMinute int    `mapstructure:"url_expire_minutes"`
}

// ReportConfig 存储 PDF 报告相关的配置。
type ReportConfig struct {
	FileName string `mapstructure:"file_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "medifusion")
	v.SetDefault("client.cookie_name", "mf_client")
	v.SetDefault("client.secret", "")
	v.SetDefault("client.expire_hours", 24*30)
	v.SetDefault("client.secure", false)
	v.SetDefault("backend.base_url", "http://localhost/api")
	v.SetDefault("backend.timeout_seconds", 90)
	v.SetDefault("analysis.poll_interval_ms", 2000)
	v.SetDefault("analysis.max_attempts", 150)
	v.SetDefault("analysis.server_wait_seconds", 1)
	v.SetDefault("analysis.idle_ttl_minutes", 30)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "medifusion.analysis")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "medifusion-reports")
	v.SetDefault("minio.url_expire_minutes", 60)
	v.SetDefault("report.file_name", "MediFusion_Report.pdf")
}

// Load 读取 .env（如存在）与 YAML 配置文件，环境变量 MEDIFUSION_* 优先级最高。
// configPath 为空或文件不存在时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	// .env 只是补充环境变量，缺失不算错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MEDIFUSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否可以启动网关。
func (c *Config) Validate() error {
	if c.Client.Secret == "" {
		return errors.New("client.secret is required (MEDIFUSION_CLIENT_SECRET)")
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Analysis.PollIntervalMS <= 0 {
		return fmt.Errorf("analysis.poll_interval_ms must be positive, got %d", c.Analysis.PollIntervalMS)
	}
	if c.Analysis.MaxAttempts < 0 {
		return fmt.Errorf("analysis.max_attempts must not be negative, got %d", c.Analysis.MaxAttempts)
	}
	if c.Analysis.IdleTTLMinutes < 0 {
		return fmt.Errorf("analysis.idle_ttl_minutes must not be negative, got %d", c.Analysis.IdleTTLMinutes)
	}
	return nil
}

// Init 加载配置到全局 Conf，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
