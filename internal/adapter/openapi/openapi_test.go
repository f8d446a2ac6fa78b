package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
)

const sampleSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Demo", "version": "1.0"},
  "paths": {
    "/users/{id}": {
      "get": {
        "operationId": "getUser",
        "tags": ["用户"],
        "summary": "查询用户",
        "description": "按 id 查询单个用户。",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}, "description": "用户 id"},
          {"name": "verbose", "in": "query", "schema": {"type": "boolean"}, "description": "返回全部字段"}
        ],
        "responses": {
          "200": {
            "description": "成功",
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/User"}}}
          },
          "404": {"description": "用户不存在"}
        }
      },
      "post": {
        "deprecated": true,
        "summary": "更新用户",
        "requestBody": {
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/User"}}}
        },
        "responses": {"200": {"description": "成功"}}
      }
    }
  },
  "components": {
    "schemas": {
      "User": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "description": "用户 id"},
          "role": {"type": "string", "enum": ["admin", "member"]},
          "friends": {"type": "array", "items": {"$ref": "#/components/schemas/User"}}
        }
      }
    }
  }
}`

func newTestAdapter(t *testing.T, spec string) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(spec))
	}))
	t.Cleanup(srv.Close)

	raw, err := New("demo", adapter.Options{Client: srv.Client(), SpecURL: srv.URL, DisplayName: "Demo API"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return raw.(*Adapter)
}

func TestFetchCatalog(t *testing.T) {
	a := newTestAdapter(t, sampleSpec)

	entries, err := a.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	get := entries[0]
	if get.Path != "用户/GET /users/{id}" {
		t.Errorf("path = %q", get.Path)
	}
	if get.APIPath != "GET /users/{id}" {
		t.Errorf("api path = %q", get.APIPath)
	}
	if get.PlatformID != "getUser" {
		t.Errorf("platform id = %q", get.PlatformID)
	}

	post := entries[1]
	if post.PlatformID != "post-/users/{id}" {
		t.Errorf("fallback platform id = %q", post.PlatformID)
	}
	if post.Path != "default/POST /users/{id}" {
		t.Errorf("untagged path = %q", post.Path)
	}
}

func TestFetchContentRendersOperation(t *testing.T) {
	a := newTestAdapter(t, sampleSpec)

	got, err := a.FetchContent(context.Background(), adapter.DocEntry{APIPath: "GET /users/{id}"})
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}

	for _, want := range []string{
		"# 查询用户",
		"`GET /users/{id}`",
		"按 id 查询单个用户。",
		"## 路径参数",
		"| id | string | 是 | 用户 id |",
		"## 查询参数",
		"| verbose | boolean | 否 | 返回全部字段 |",
		"## 响应",
		"### 200",
		"`id` (string, 必填)",
		"可选值：`admin`, `member`",
		"[循环引用: User]",
	} {
		if !strings.Contains(got.Markdown, want) {
			t.Errorf("markdown missing %q:\n%s", want, got.Markdown)
		}
	}

	// 404 becomes an error-code entry; 200 does not.
	if len(got.ErrorCodes) != 1 || got.ErrorCodes[0].Code != "404" || got.ErrorCodes[0].Description != "用户不存在" {
		t.Errorf("error codes = %+v", got.ErrorCodes)
	}
}

func TestDeprecationBanner(t *testing.T) {
	a := newTestAdapter(t, sampleSpec)

	got, err := a.FetchContent(context.Background(), adapter.DocEntry{APIPath: "POST /users/{id}"})
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if !strings.Contains(got.Markdown, "已废弃") {
		t.Errorf("deprecation banner missing:\n%s", got.Markdown)
	}
}

func TestYAMLFallback(t *testing.T) {
	yamlSpec := `
openapi: "3.0.0"
info:
  title: Demo
paths:
  /ping:
    get:
      summary: Ping
      responses:
        "200":
          description: ok
`
	a := newTestAdapter(t, yamlSpec)
	entries, err := a.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(entries) != 1 || entries[0].APIPath != "GET /ping" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSwagger2Shim(t *testing.T) {
	swagger := `{
	  "swagger": "2.0",
	  "info": {"title": "Old"},
	  "paths": {
	    "/items": {
	      "post": {
	        "summary": "创建条目",
	        "parameters": [
	          {"name": "body", "in": "body", "schema": {"$ref": "#/definitions/Item"}},
	          {"name": "dry_run", "in": "query", "type": "boolean"}
	        ],
	        "responses": {
	          "200": {"description": "ok", "schema": {"$ref": "#/definitions/Item"}},
	          "400": {"description": "参数错误"}
	        }
	      }
	    }
	  },
	  "definitions": {
	    "Item": {
	      "type": "object",
	      "properties": {"name": {"type": "string", "description": "名称"}}
	    }
	  }
	}`
	a := newTestAdapter(t, swagger)

	got, err := a.FetchContent(context.Background(), adapter.DocEntry{APIPath: "POST /items"})
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if !strings.Contains(got.Markdown, "## 请求体") {
		t.Errorf("body parameter not lifted to request body:\n%s", got.Markdown)
	}
	if !strings.Contains(got.Markdown, "`name` (string)") {
		t.Errorf("definitions ref not resolved:\n%s", got.Markdown)
	}
	if !strings.Contains(got.Markdown, "| dry_run | boolean |") {
		t.Errorf("non-body parameter dropped:\n%s", got.Markdown)
	}
	if len(got.ErrorCodes) != 1 || got.ErrorCodes[0].Code != "400" {
		t.Errorf("error codes = %+v", got.ErrorCodes)
	}
}

func TestExternalRefSentinel(t *testing.T) {
	spec := `{
	  "openapi": "3.0.0",
	  "paths": {
	    "/x": {
	      "get": {
	        "responses": {
	          "200": {
	            "description": "ok",
	            "content": {"application/json": {"schema": {"$ref": "https://other.example/schema.json#/Thing"}}}
	          }
	        }
	      }
	    }
	  }
	}`
	a := newTestAdapter(t, spec)
	got, err := a.FetchContent(context.Background(), adapter.DocEntry{APIPath: "GET /x"})
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if !strings.Contains(got.Markdown, "[外部引用:") {
		t.Errorf("external ref sentinel missing:\n%s", got.Markdown)
	}
}

func TestAllOfMerge(t *testing.T) {
	spec := `{
	  "openapi": "3.0.0",
	  "paths": {
	    "/m": {
	      "get": {
	        "responses": {
	          "200": {
	            "description": "ok",
	            "content": {"application/json": {"schema": {
	              "allOf": [
	                {"type": "object", "properties": {"a": {"type": "string"}}, "required": ["a"]},
	                {"type": "object", "properties": {"b": {"type": "integer"}}}
	              ]
	            }}}
	          }
	        }
	      }
	    }
	  }
	}`
	a := newTestAdapter(t, spec)
	got, err := a.FetchContent(context.Background(), adapter.DocEntry{APIPath: "GET /m"})
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if !strings.Contains(got.Markdown, "`a` (string, 必填)") {
		t.Errorf("allOf required lost:\n%s", got.Markdown)
	}
	if !strings.Contains(got.Markdown, "`b` (integer)") {
		t.Errorf("allOf property lost:\n%s", got.Markdown)
	}
}

func TestOneOfVariants(t *testing.T) {
	spec := `{
	  "openapi": "3.0.0",
	  "paths": {
	    "/v": {
	      "post": {
	        "requestBody": {"content": {"application/json": {"schema": {
	          "oneOf": [
	            {"type": "object", "properties": {"text": {"type": "string"}}},
	            {"type": "object", "properties": {"image": {"type": "string"}}}
	          ]
	        }}}},
	        "responses": {"200": {"description": "ok"}}
	      }
	    }
	  }
	}`
	a := newTestAdapter(t, spec)
	got, err := a.FetchContent(context.Background(), adapter.DocEntry{APIPath: "POST /v"})
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if !strings.Contains(got.Markdown, "方式1：") || !strings.Contains(got.Markdown, "方式2：") {
		t.Errorf("oneOf variants not labeled:\n%s", got.Markdown)
	}
}
