package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Agent  AgentConfig  `mapstructure:"agent"`
	Remote RemoteConfig `mapstructure:"remote"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Notify NotifyConfig `mapstructure:"notify"`
	Parse  ParseConfig  `mapstructure:"parse"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Port           string `mapstructure:"port"`
	APIToken       string `mapstructure:"api_token"`       // 同步客户端共享密钥（空则不校验）
	SchedulerToken string `mapstructure:"scheduler_token"` // 外部调度器共享密钥
	BlobDir        string `mapstructure:"blob_dir"`        // 音频文件落盘目录
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AgentConfig 本地同步 Agent 配置
type AgentConfig struct {
	LocalDBPath          string        `mapstructure:"local_db_path"`          // 本地 SQLite 路径
	OrgID                string        `mapstructure:"org_id"`                 // 当前组织 ID
	DebounceDelay        time.Duration `mapstructure:"debounce_delay"`         // 解析防抖时长
	TypingDecay          time.Duration `mapstructure:"typing_decay"`           // 输入状态自动衰减时长
	SyncInterval         time.Duration `mapstructure:"sync_interval"`          // 周期性对账间隔
	MaxRecordingDuration time.Duration `mapstructure:"max_recording_duration"` // 单段录音时长上限
	MaxRecordingSize     int64         `mapstructure:"max_recording_size"`     // 单段录音体积上限（字节）
	RecordingRateLimit   int           `mapstructure:"recording_rate_limit"`   // 滚动一小时内的录音条数上限
}

// RemoteConfig 远端存储（apiserver）客户端配置
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueueConfig 命令队列 / 任务队列公共配置
type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // 最大尝试次数
	BaseDelay   time.Duration `mapstructure:"base_delay"`   // 退避基础延迟
	BatchLimit  int           `mapstructure:"batch_limit"`  // 批处理单次最多选取的任务数
	BufferSize  int           `mapstructure:"buffer_size"`  // 命令队列缓冲大小
}

// NotifyConfig 通知发送方（供应商邮件）配置
type NotifyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ParseConfig 解析/转写服务配置
type ParseConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults 填充缺省值
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Agent.DebounceDelay == 0 {
		c.Agent.DebounceDelay = 2500 * time.Millisecond
	}
	if c.Agent.TypingDecay == 0 {
		c.Agent.TypingDecay = time.Second
	}
	if c.Agent.SyncInterval == 0 {
		c.Agent.SyncInterval = 30 * time.Second
	}
	if c.Agent.MaxRecordingDuration == 0 {
		c.Agent.MaxRecordingDuration = 5 * time.Minute
	}
	if c.Agent.MaxRecordingSize == 0 {
		c.Agent.MaxRecordingSize = 25 * 1024 * 1024
	}
	if c.Agent.RecordingRateLimit == 0 {
		c.Agent.RecordingRateLimit = 10
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BaseDelay == 0 {
		c.Queue.BaseDelay = time.Second
	}
	if c.Queue.BatchLimit == 0 {
		c.Queue.BatchLimit = 50
	}
	if c.Queue.BufferSize == 0 {
		c.Queue.BufferSize = 64
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 10 * time.Second
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Parse.Timeout == 0 {
		c.Parse.Timeout = 60 * time.Second
	}
}

// ValidateServer 验证 apiserver 所需配置
func (c *Config) ValidateServer() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql dsn is required")
	}
	if c.Server.SchedulerToken == "" {
		return fmt.Errorf("server scheduler_token is required")
	}
	if c.Notify.BaseURL == "" {
		return fmt.Errorf("notify base_url is required")
	}
	return nil
}

// ValidateAgent 验证 agent 所需配置
func (c *Config) ValidateAgent() error {
	if c.Agent.LocalDBPath == "" {
		return fmt.Errorf("agent local_db_path is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote base_url is required")
	}
	if c.Parse.BaseURL == "" {
		return fmt.Errorf("parse base_url is required")
	}
	return nil
}
