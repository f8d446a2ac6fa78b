// Package sources wires the built-in adapters into a registry. OpenAPI
// sources declared at runtime register through RegisterOpenAPI.
package sources

import (
	"github.com/wxkingstar/SpecFusion/internal/adapter"
	"github.com/wxkingstar/SpecFusion/internal/adapter/dingtalk"
	"github.com/wxkingstar/SpecFusion/internal/adapter/douyin"
	"github.com/wxkingstar/SpecFusion/internal/adapter/feishu"
	"github.com/wxkingstar/SpecFusion/internal/adapter/openapi"
	"github.com/wxkingstar/SpecFusion/internal/adapter/pinduoduo"
	"github.com/wxkingstar/SpecFusion/internal/adapter/taobao"
	"github.com/wxkingstar/SpecFusion/internal/adapter/wechat"
	"github.com/wxkingstar/SpecFusion/internal/adapter/wecom"
	"github.com/wxkingstar/SpecFusion/internal/adapter/xiaohongshu"
	"github.com/wxkingstar/SpecFusion/internal/adapter/youzan"
)

// Builtin returns a registry holding every compiled-in adapter.
func Builtin() *adapter.Registry {
	r := adapter.NewRegistry()
	r.Register("wecom", wecom.New)
	r.Register("feishu", feishu.New)
	r.Register("dingtalk", dingtalk.New)
	r.Register("taobao", taobao.New)
	r.Register("youzan", youzan.New)
	r.Register("xiaohongshu", xiaohongshu.New)
	r.Register("douyin", douyin.New)
	r.Register("wechat_miniprogram", wechat.NewMiniprogram)
	r.Register("wechat_shop", wechat.NewShop)
	r.Register("pinduoduo", pinduoduo.New)
	return r
}

// RegisterOpenAPI binds a dynamically declared OpenAPI source. The spec
// URL and display name arrive through the adapter options at build time.
func RegisterOpenAPI(r *adapter.Registry, id string) {
	r.Register(id, func(opts adapter.Options) (adapter.Adapter, error) {
		return openapi.New(id, opts)
	})
}
