package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if c.AppVersion <= 0 {
		return newFieldError("AppVersion", "必须大于 0")
	}
	if strings.TrimSpace(c.PublisherConfigPath) == "" {
		return newFieldError("PublisherConfigPath", "不能为空")
	}
	if strings.TrimSpace(c.ManifestPath) == "" {
		return newFieldError("ManifestPath", "不能为空")
	}
	if c.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}
	if c.MobileConfigPath != "" && !c.MobileAPIEnabled {
		return newFieldError("MobileConfigPath", "需要同时开启 MobileAPIEnabled")
	}
	if c.MountAt != "" {
		if !strings.HasPrefix(c.MountAt, "/") {
			return newFieldError("MountAt", "必须以 / 开头")
		}
		if strings.HasSuffix(c.MountAt, "/") {
			return newFieldError("MountAt", "不能以 / 结尾")
		}
	}
	for _, route := range c.ExtraRoutes {
		if !strings.HasPrefix(route, "/") {
			return newFieldError("ExtraRoutes", "路由必须以 / 开头: "+route)
		}
	}
	return nil
}
