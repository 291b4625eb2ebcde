package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        LogConfig         `mapstructure:"log"`
	Mirror     MirrorConfig      `mapstructure:"mirror"`
	Mongo      MongoConfig       `mapstructure:"mongo"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Relay      RelayConfig       `mapstructure:"relay"`
	Secrets    SecretsConfig     `mapstructure:"secrets"`
	Assistants []AssistantConfig `mapstructure:"assistants"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 流式接口需要为 0
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// 本地镜像存储驱动
const (
	MirrorDriverSQLite   = "sqlite"
	MirrorDriverPostgres = "postgres"
	MirrorDriverMongo    = "mongo"
	MirrorDriverNone     = "none"
)

// MirrorConfig 本地会话镜像配置
type MirrorConfig struct {
	Driver       string        `mapstructure:"driver"` // sqlite, postgres, mongo, none
	DSN          string        `mapstructure:"dsn"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 流结束后回写镜像的超时
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
// JWTSecret 为空时不校验 Bearer Token，用户标识取自请求体
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

// RelayConfig 转发与同步相关参数
type RelayConfig struct {
	UserMessageOffset time.Duration `mapstructure:"user_message_offset"` // 用户消息相对助手消息提前的时间
	LockTTL           time.Duration `mapstructure:"lock_ttl"`            // 重命名锁的过期时间
	RateLimit         float64       `mapstructure:"rate_limit"`          // 每个用户每秒对话请求数，0 表示不限制
	RateBurst         int           `mapstructure:"rate_burst"`
}

// SecretsConfig 凭证来源配置
type SecretsConfig struct {
	EnvFiles []string `mapstructure:"env_files"` // 额外读取的 .env 文件
}

// 助手协议方言
const (
	AssistantModeChat       = "chat"
	AssistantModeCompletion = "completion"
)

// AssistantConfig 助手配置（只读）
type AssistantConfig struct {
	ID        string         `mapstructure:"id"`
	Name      string         `mapstructure:"name"`
	BaseURL   string         `mapstructure:"base_url"`
	APIKey    string         `mapstructure:"api_key"`
	APIKeyEnv string         `mapstructure:"api_key_env"` // 优先从该环境变量读取凭证
	Mode      string         `mapstructure:"mode"`        // chat, completion
	Inputs    map[string]any `mapstructure:"inputs"`      // 默认生成参数
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	switch c.Mirror.Driver {
	case MirrorDriverSQLite, MirrorDriverPostgres:
		if c.Mirror.DSN == "" {
			return fmt.Errorf("mirror dsn is required for driver %s", c.Mirror.Driver)
		}
	case MirrorDriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo uri is required for mirror driver mongo")
		}
	case MirrorDriverNone:
	default:
		return fmt.Errorf("unsupported mirror driver: %s", c.Mirror.Driver)
	}

	if c.Relay.RateLimit < 0 {
		return errors.New("relay rate_limit must not be negative")
	}

	seen := make(map[string]bool, len(c.Assistants))
	for i, a := range c.Assistants {
		if a.ID == "" {
			return fmt.Errorf("assistants[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("assistants[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.BaseURL == "" {
			return fmt.Errorf("assistant %s: base_url is required", a.ID)
		}
		switch a.Mode {
		case "", AssistantModeChat, AssistantModeCompletion:
		default:
			return fmt.Errorf("assistant %s: invalid mode %q, must be chat/completion", a.ID, a.Mode)
		}
	}

	return nil
}
