package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 request_id/host/domain/path 字段，供页面数据请求日志复用。
func RequestFields(requestID, host, domainSlug, path string) logrus.Fields {
	fields := logrus.Fields{
		"host":        host,
		"domain_slug": domainSlug,
		"path":        path,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
