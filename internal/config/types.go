package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Config 是 TOML 文件映射的整体结构，所有字段都位于顶层。
type Config struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// PublisherConfigPath 指向 publisher.yml，包含 sketches_host、domain_mapping 等租户信息。
	PublisherConfigPath string `mapstructure:"PublisherConfigPath"`
	// ManifestPath/PublicDir 描述前端构建产物：manifest 在启动时加载一次，资源正文从 PublicDir 读取。
	ManifestPath string `mapstructure:"ManifestPath"`
	PublicDir    string `mapstructure:"PublicDir"`

	AppVersion               int      `mapstructure:"AppVersion"`
	MobileAPIEnabled         bool     `mapstructure:"MobileAPIEnabled"`
	MobileConfigPath         string   `mapstructure:"MobileConfigPath"`
	TemplateOptionsPath      string   `mapstructure:"TemplateOptionsPath"`
	RedirectRootLevelStories bool     `mapstructure:"RedirectRootLevelStories"`
	HandleNotFound           bool     `mapstructure:"HandleNotFound"`
	ForwardAmp               bool     `mapstructure:"ForwardAmp"`
	ForwardFavicon           bool     `mapstructure:"ForwardFavicon"`
	ExtraRoutes              []string `mapstructure:"ExtraRoutes"`
	MountAt                  string   `mapstructure:"MountAt"`
	MetricsEnabled           bool     `mapstructure:"MetricsEnabled"`

	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	ConfigTTL       Duration `mapstructure:"ConfigTTL"`
}

// Features 返回已开启的可选功能列表，供启动日志输出。
func (c Config) Features() []string {
	var features []string
	if c.MobileAPIEnabled {
		features = append(features, "mobile-data")
	}
	if c.RedirectRootLevelStories {
		features = append(features, "story-redirect")
	}
	if c.HandleNotFound {
		features = append(features, "not-found-page")
	}
	if c.TemplateOptionsPath != "" {
		features = append(features, "template-options")
	}
	if c.MetricsEnabled {
		features = append(features, "metrics")
	}
	if c.MountAt != "" {
		features = append(features, "mount:"+c.MountAt)
	}
	return features
}
