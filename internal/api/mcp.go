package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wxkingstar/SpecFusion/internal/search"
	"github.com/wxkingstar/SpecFusion/internal/storage"
	"github.com/wxkingstar/SpecFusion/internal/summary"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Engine *search.Engine
}

// NewMCPServer exposes the search and retrieval surface as MCP tools, the
// assistant's native access path.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"specfusion",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("SpecFusion — 第三方开放平台 API 文档检索。支持关键词、接口路径和错误码查询。"),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("搜索已收录的开发者文档。支持中文关键词、API 路径（/cgi-bin/...）和错误码（60011）。"),
			mcp.WithString("query", mcp.Description("查询词"), mcp.Required()),
			mcp.WithString("source", mcp.Description("限定平台标识，如 wecom、feishu")),
			mcp.WithString("mode", mcp.Description("企业微信开发模式：internal / third_party / service_provider")),
			mcp.WithNumber("limit", mcp.Description("返回条数上限（默认 5，最大 20）")),
		),
		mcpSearchDocs(deps),
	)

	s.AddTool(
		mcp.NewTool("get_doc",
			mcp.WithDescription("按文档 ID 获取全文或结构化摘要。"),
			mcp.WithString("doc_id", mcp.Description("文档 ID，来自搜索结果"), mcp.Required()),
			mcp.WithBoolean("summary", mcp.Description("为 true 时返回约 1KB 的结构化摘要")),
		),
		mcpGetDoc(deps),
	)

	s.AddTool(
		mcp.NewTool("list_sources",
			mcp.WithDescription("列出已收录的平台及其文档数量。"),
		),
		mcpListSources(deps),
	)

	return s
}

func mcpSearchDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		resp, err := deps.Engine.Search(ctx, query, search.Options{
			Source: req.GetString("source", ""),
			Mode:   req.GetString("mode", ""),
			Limit:  req.GetInt("limit", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpText(search.FormatMarkdown(resp)), nil
	}
}

func mcpGetDoc(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docID, err := req.RequireString("doc_id")
		if err != nil {
			return mcpError("doc_id is required"), nil
		}

		doc, err := deps.Store.GetDocument(docID)
		if err == storage.ErrNotFound {
			return mcpError(fmt.Sprintf("document %s not found", docID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading document: %v", err)), nil
		}

		if req.GetBool("summary", false) {
			return mcpText(summary.Summarize(doc.Content, doc.ID)), nil
		}
		return mcpText(doc.Content), nil
	}
}

func mcpListSources(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sources, err := deps.Store.GetSources()
		if err != nil {
			return mcpError(fmt.Sprintf("listing sources: %v", err)), nil
		}

		type sourceInfo struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			DocCount int    `json:"doc_count"`
		}
		out := make([]sourceInfo, 0, len(sources))
		for _, src := range sources {
			out = append(out, sourceInfo{ID: src.ID, Name: src.Name, DocCount: src.DocCount})
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("marshalling sources: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
