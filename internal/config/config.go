package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`
	Sqlite  struct {
		Db string `yaml:"db"`
		// SessionDb 会话层数据库，位于临时目录，重启机器后失效
		SessionDb string `yaml:"sessionDb"`
		Prefix    string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
	} `yaml:"log"`
	Capture CaptureConfig `yaml:"capture"`
	HTTP    struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	// TrackingKey 采集开关在持久化存储中的键
	TrackingKey string `yaml:"trackingKey"`
}

// CaptureConfig 浏览器采集配置
type CaptureConfig struct {
	DevToolsURL    string        `yaml:"devToolsURL"`
	CaptureBodies  bool          `yaml:"captureBodies"`
	MaxBodyBytes   int           `yaml:"maxBodyBytes"`
	Concurrency    int           `yaml:"concurrency"`
	RescanInterval time.Duration `yaml:"rescanInterval"`
	OrphanTimeout  time.Duration `yaml:"orphanTimeout"`
	// IgnorePrefixes 命中前缀的 URL 不进入关联器
	IgnorePrefixes []string `yaml:"ignorePrefixes"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	defaults := GetDefaultSettings()
	cfg := &Config{Version: "0.1.0", TrackingKey: defaults.TrackingKey}
	cfg.Sqlite.Db = "backtrack.db"
	cfg.Sqlite.SessionDb = filepath.Join(os.TempDir(), "backtrack", "session.db")
	cfg.Sqlite.Prefix = "backtrack_"
	cfg.Log.Level = "info"
	// file需要在console之前，避免控制台不可写时影响文件日志
	cfg.Log.Writer = []string{"file", "console"}
	cfg.Capture = CaptureConfig{
		DevToolsURL:    defaults.DevToolsURL,
		CaptureBodies:  false,
		MaxBodyBytes:   1 << 20,
		Concurrency:    4,
		RescanInterval: 5 * time.Second,
		OrphanTimeout:  2 * time.Minute,
		IgnorePrefixes: []string{
			"chrome-extension://",
			"moz-extension://",
			"edge-extension://",
			"devtools://",
		},
	}
	cfg.HTTP.Addr = defaults.ListenAddr
	return cfg
}

// Load 从 YAML 文件加载配置，未设置的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
