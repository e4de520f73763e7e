package pages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pageline/pageline/internal/pipeline"
)

// ErrDuplicateLoader indicates a page type already has a loader registered.
var ErrDuplicateLoader = errors.New("page loader already registered")

// Registry 按 pageType 分发数据加载请求，自身实现 pipeline.DataLoader。
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]pipeline.DataLoader
}

// NewRegistry 返回空注册表。
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]pipeline.DataLoader)}
}

// Register 为 pageType 注册加载器，重复键返回 ErrDuplicateLoader。
func (r *Registry) Register(pageType string, loader pipeline.DataLoader) error {
	key := normalizeKey(pageType)
	if key == "" {
		return fmt.Errorf("page type is required")
	}
	if loader == nil {
		return fmt.Errorf("loader for %s is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loaders[key]; exists {
		return ErrDuplicateLoader
	}
	r.loaders[key] = loader
	return nil
}

// MustRegister 在注册失败时 panic，适合启动阶段调用。
func (r *Registry) MustRegister(pageType string, loader pipeline.DataLoader) {
	if err := r.Register(pageType, loader); err != nil {
		panic(err)
	}
}

// Resolve 返回 pageType 对应的加载器。
func (r *Registry) Resolve(pageType string) (pipeline.DataLoader, bool) {
	key := normalizeKey(pageType)
	if key == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	loader, ok := r.loaders[key]
	return loader, ok
}

// Keys 返回按字典序排列的已注册 pageType，供诊断输出。
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.loaders))
	for key := range r.loaders {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// LoadData dispatches on the request's page type. Unknown page types pass.
func (r *Registry) LoadData(ctx context.Context, req pipeline.LoadRequest) (pipeline.Outcome, error) {
	loader, ok := r.Resolve(req.PageType)
	if !ok {
		return pipeline.Pass(), nil
	}
	return loader.LoadData(ctx, req)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
