package config

// DefaultSettings 定义所有设置的默认值
type DefaultSettings struct {
	TrackingEnabled bool
	TrackingKey     string
	DevToolsURL     string
	ListenAddr      string
}

// GetDefaultSettings 返回默认设置
func GetDefaultSettings() DefaultSettings {
	return DefaultSettings{
		TrackingEnabled: true, // 未设置时默认开启采集
		TrackingKey:     "backtrack-enabled",
		DevToolsURL:     "http://localhost:9222",
		ListenAddr:      "127.0.0.1:7420",
	}
}
