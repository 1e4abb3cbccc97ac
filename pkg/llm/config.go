package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ═══════════════════════════════════════════════════════════════════════════
// 凭证
// ═══════════════════════════════════════════════════════════════════════════

// CredentialKey 凭证字段名
type CredentialKey string

const (
	CredAPIKey    CredentialKey = "api_key"
	CredSecretKey CredentialKey = "secret_key"
	CredGroupID   CredentialKey = "group_id"
	CredAPIURL    CredentialKey = "api_url"
)

// Credentials Provider 凭证
//
// 值类型，传入 Adapter 时被复制，创建后不再修改。
type Credentials struct {
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	GroupID   string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	APIURL    string `json:"api_url,omitempty" yaml:"api_url,omitempty"` // 覆盖默认 Base URL
}

// Get 按字段名读取
func (c Credentials) Get(key CredentialKey) string {
	switch key {
	case CredAPIKey:
		return c.APIKey
	case CredSecretKey:
		return c.SecretKey
	case CredGroupID:
		return c.GroupID
	case CredAPIURL:
		return c.APIURL
	default:
		return ""
	}
}

// With 返回设置了某字段的副本
func (c Credentials) With(key CredentialKey, value string) Credentials {
	switch key {
	case CredAPIKey:
		c.APIKey = value
	case CredSecretKey:
		c.SecretKey = value
	case CredGroupID:
		c.GroupID = value
	case CredAPIURL:
		c.APIURL = value
	}
	return c
}

// ═══════════════════════════════════════════════════════════════════════════
// 凭证规格
// ═══════════════════════════════════════════════════════════════════════════

// EnvLookup 环境变量查询函数，签名与 os.LookupEnv 一致
type EnvLookup func(key string) (string, bool)

// CredentialSpec Provider 识别的凭证字段及其环境变量回退
type CredentialSpec struct {
	// Required 必需字段
	Required []CredentialKey

	// Env 字段缺省时读取的环境变量
	Env map[CredentialKey]string
}

// Resolve 用环境变量补全缺失字段，并校验必需字段
//
// 已显式提供的字段不会被环境变量覆盖。lookup 为 nil 时使用 os.LookupEnv。
func (s CredentialSpec) Resolve(provider string, creds Credentials, lookup EnvLookup) (Credentials, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for key, env := range s.Env {
		if creds.Get(key) != "" || env == "" {
			continue
		}
		if v, ok := lookup(env); ok && strings.TrimSpace(v) != "" {
			creds = creds.With(key, strings.TrimSpace(v))
		}
	}

	var missing []string
	for _, key := range s.Required {
		if creds.Get(key) != "" {
			continue
		}
		if env := s.Env[key]; env != "" {
			missing = append(missing, fmt.Sprintf("%s (or env %s)", key, env))
		} else {
			missing = append(missing, string(key))
		}
	}
	if len(missing) > 0 {
		return creds, NewConfigError(provider, "missing credentials: "+strings.Join(missing, ", "))
	}
	return creds, nil
}

// DotEnvLookup 先查 .env 文件，再回退到进程环境变量
//
// 文件只被读取，不会写入进程环境。
func DotEnvLookup(paths ...string) (EnvLookup, error) {
	values, err := godotenv.Read(paths...)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return func(key string) (string, bool) {
		if v, ok := values[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Adapter 构造参数
// ═══════════════════════════════════════════════════════════════════════════

// AdapterSettings 传给 Adapter 工厂的非凭证参数
type AdapterSettings struct {
	// Logger 为空时使用 slog.Default()
	Logger *slog.Logger

	// Timeout 单次请求超时，0 表示使用 Provider 默认值
	Timeout time.Duration

	// Headers 附加请求头
	Headers map[string]string
}

// ═══════════════════════════════════════════════════════════════════════════
// 单次调用代理
// ═══════════════════════════════════════════════════════════════════════════

type proxyKey struct{}

// WithProxy 在 context 中设置本次调用使用的代理
func WithProxy(ctx context.Context, proxyURL string) context.Context {
	if proxyURL == "" {
		return ctx
	}
	return context.WithValue(ctx, proxyKey{}, proxyURL)
}

// ProxyFromContext 读取 context 中的代理地址
func ProxyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(proxyKey{}).(string)
	return v
}
