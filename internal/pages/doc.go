// Package pages 提供默认的页面目录：基于 CMS sections 生成路由表，并按 pageType
// 注册对应的数据加载器（home/section/story）以及统一的 not-found 错误加载器。
package pages
