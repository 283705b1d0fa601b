// Package config 提供 TOML 配置加载、环境变量覆盖与默认值填充
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 缓存 TTL 分层配置
	CacheTTL CacheTTLConfig `mapstructure:"cache_ttl"`
	// 通知发送配置（仅通知服务使用）
	Notification NotificationConfig `mapstructure:"notification"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// 监听端口
	Port int `mapstructure:"port" default:"8080"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"30"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"30"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql
	Driver string `mapstructure:"driver" default:"mysql"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns" default:"25"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"5"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// 是否启用日志
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host" default:"localhost"`
	// 端口
	Port int `mapstructure:"port" default:"6379"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db" default:"0"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size" default:"10"`
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout" default:"5"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"3"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"3"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// Consumer Group ID 前缀（每个订阅生成独立 group）
	GroupID string `mapstructure:"group_id"`
	// 消费者会话超时（秒）
	SessionTimeout int `mapstructure:"session_timeout" default:"10"`
	// 发送最大重试次数
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// 重试间隔（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff" default:"100"`
	// 重连间隔（秒），连接断开后固定间隔重连
	ReconnectInterval int `mapstructure:"reconnect_interval" default:"5"`
	// 处理失败策略：drop 或 dlq
	FailurePolicy string `mapstructure:"failure_policy" default:"drop"`
	// 处理失败重试次数（转入失败策略前）
	HandlerRetries int `mapstructure:"handler_retries" default:"0"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	// 日志级别
	Level string `mapstructure:"level" default:"info"`
	// 输出格式
	Format string `mapstructure:"format" default:"json"`
	// 输出目标
	Output string `mapstructure:"output" default:"stdout"`
	// 文件路径
	FilePath string `mapstructure:"file_path" default:"logs/app.log"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size" default:"100"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups" default:"10"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age" default:"30"`
	// 是否压缩
	Compress bool `mapstructure:"compress" default:"true"`
	// 是否输出调用者信息
	WithCaller bool `mapstructure:"with_caller" default:"true"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Prometheus 监听端口
	Port int `mapstructure:"port" default:"9090"`
	// 指标路径
	Path string `mapstructure:"path" default:"/metrics"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"false"`
	// 每周期允许请求数
	Rate int `mapstructure:"rate" default:"100"`
	// 周期（秒）
	Period int `mapstructure:"period" default:"1"`
	// 突发容量
	Burst int `mapstructure:"burst" default:"100"`
}

// CacheTTLConfig 缓存 TTL 分层配置（秒）
// 按数据陈旧容忍度分层：详情 1 小时、列表 5 分钟、统计 12 小时、可约时段 3 分钟
type CacheTTLConfig struct {
	// 详情视图 TTL
	DetailSeconds int `mapstructure:"detail_seconds" default:"3600"`
	// 列表视图 TTL
	ListSeconds int `mapstructure:"list_seconds" default:"300"`
	// 聚合统计 TTL
	StatsSeconds int `mapstructure:"stats_seconds" default:"43200"`
	// 可预约时段 TTL（刻意缩短，此缓存决定是否会二次预约）
	AvailabilitySeconds int `mapstructure:"availability_seconds" default:"180"`
}

// NotificationConfig 通知发送配置
type NotificationConfig struct {
	// 发送通道：mock, smtp, webhook
	Sender string `mapstructure:"sender" default:"mock"`
	// SMTP 主机
	SMTPHost string `mapstructure:"smtp_host"`
	// SMTP 端口
	SMTPPort int `mapstructure:"smtp_port" default:"587"`
	// SMTP 用户名
	SMTPUsername string `mapstructure:"smtp_username"`
	// SMTP 密码
	SMTPPassword string `mapstructure:"smtp_password"`
	// 发件人地址
	SMTPFrom string `mapstructure:"smtp_from"`
	// Webhook 请求超时（秒）
	WebhookTimeout int `mapstructure:"webhook_timeout" default:"10"`
	// 运营告警收件地址（低库存等面向运营的邮件通知）
	OpsEmail string `mapstructure:"ops_email" default:"ops@evservicecenter.local"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 环境变量覆盖，APP_ 前缀，_ 替代 .
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.session_timeout", 10)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.reconnect_interval", 5)
	v.SetDefault("kafka.failure_policy", "drop")
	v.SetDefault("kafka.handler_retries", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rate", 100)
	v.SetDefault("rate_limit.period", 1)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("cache_ttl.detail_seconds", 3600)
	v.SetDefault("cache_ttl.list_seconds", 300)
	v.SetDefault("cache_ttl.stats_seconds", 43200)
	v.SetDefault("cache_ttl.availability_seconds", 180)

	v.SetDefault("notification.sender", "mock")
	v.SetDefault("notification.smtp_port", 587)
	v.SetDefault("notification.webhook_timeout", 10)
	v.SetDefault("notification.ops_email", "ops@evservicecenter.local")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	switch c.Kafka.FailurePolicy {
	case "drop", "dlq":
	default:
		return fmt.Errorf("kafka.failure_policy must be drop or dlq, got %q", c.Kafka.FailurePolicy)
	}
	return nil
}
