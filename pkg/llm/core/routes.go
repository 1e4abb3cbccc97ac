package core

import (
	"fmt"
	"strings"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 模型路由表
// ═══════════════════════════════════════════════════════════════════════════

// Route 单条模型路由
//
// Model 以 "*" 结尾时按前缀匹配，否则精确匹配。
type Route struct {
	Model      string
	Path       string
	StreamPath string // 为空时与 Path 相同
	Framing    Framing
	Shape      string // 请求/响应格式，由 Provider 自行解释
}

// Stream 返回流式请求的路径
func (r Route) Stream() string {
	if r.StreamPath != "" {
		return r.StreamPath
	}
	return r.Path
}

func (r Route) matches(model string) bool {
	if prefix, ok := strings.CutSuffix(r.Model, "*"); ok {
		return strings.HasPrefix(model, prefix)
	}
	return r.Model == model
}

// Routes 按顺序匹配的路由表，Fallback 为 nil 时未命中即报错
//
//	core.Routes{
//	    Table: []core.Route{
//	        {Model: "Baichuan2*", Path: "/chat/completions", Framing: core.FramingSSE},
//	    },
//	    Fallback: &core.Route{Path: "/chat", StreamPath: "/stream/chat", Framing: core.FramingNDJSON},
//	}
type Routes struct {
	Table    []Route
	Fallback *Route
}

// Resolve 解析模型对应的路由，op 用于未命中时的错误
func (r Routes) Resolve(provider string, op llm.Operation, model string) (Route, error) {
	for _, route := range r.Table {
		if route.matches(model) {
			return route, nil
		}
	}
	if r.Fallback != nil {
		return *r.Fallback, nil
	}
	return Route{}, &llm.Error{
		Kind:     llm.KindBadRequest,
		Provider: provider,
		Op:       op,
		Message:  fmt.Sprintf("unsupported model %q", model),
	}
}

// Models 路由表中精确登记的模型名
func (r Routes) Models() []string {
	var models []string
	for _, route := range r.Table {
		if !strings.HasSuffix(route.Model, "*") {
			models = append(models, route.Model)
		}
	}
	return models
}
