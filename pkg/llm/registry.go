package llm

import (
	"fmt"
	"slices"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider 注册表
// ═══════════════════════════════════════════════════════════════════════════

// Factory Adapter 构造函数
//
// creds 已经过 CredentialSpec 补全与校验。
type Factory func(creds Credentials, settings AdapterSettings) (Adapter, error)

// ProviderSpec 注册项
type ProviderSpec struct {
	Name        string
	Credentials CredentialSpec
	Factory     Factory
}

// Registry Provider 名称到构造函数的映射
//
// 显式构造并传给 NewClient，不存在包级单例。Freeze 之后只读，可并发使用。
type Registry struct {
	specs  map[string]ProviderSpec
	frozen bool
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]ProviderSpec)}
}

// Register 注册 Provider，名称不区分大小写
func (r *Registry) Register(spec ProviderSpec) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", spec.Name)
	}
	name := strings.ToLower(strings.TrimSpace(spec.Name))
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	if spec.Factory == nil {
		return fmt.Errorf("provider %q: factory is required", name)
	}
	if _, ok := r.specs[name]; ok {
		return fmt.Errorf("provider %q already registered", name)
	}
	spec.Name = name
	r.specs[name] = spec
	return nil
}

// MustRegister 注册 Provider，失败时 panic
func (r *Registry) MustRegister(spec ProviderSpec) *Registry {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
	return r
}

// Freeze 冻结注册表，之后 Register 返回错误
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

// Frozen 是否已冻结
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Lookup 查找 Provider
func (r *Registry) Lookup(name string) (ProviderSpec, bool) {
	spec, ok := r.specs[strings.ToLower(strings.TrimSpace(name))]
	return spec, ok
}

// Providers 返回已注册的 Provider 名称（排序）
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
