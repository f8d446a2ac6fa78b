package openapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wxkingstar/SpecFusion/internal/adapter"
)

const maxSchemaDepth = 5

var paramLocations = []struct {
	in    string
	label string
}{
	{"path", "路径参数"},
	{"query", "查询参数"},
	{"header", "请求头参数"},
	{"cookie", "Cookie 参数"},
}

// renderOperation produces the Markdown document for one operation plus
// the error codes derived from its non-2xx responses.
func renderOperation(doc map[string]any, method, route string, op map[string]any) (string, []adapter.ErrorCodeEntry) {
	var b strings.Builder

	title, _ := op["summary"].(string)
	if title == "" {
		title = method + " " + route
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if deprecated, _ := op["deprecated"].(bool); deprecated {
		b.WriteString("> ⚠️ 该接口已废弃，请勿在新项目中使用。\n\n")
	}

	fmt.Fprintf(&b, "`%s %s`\n\n", method, route)

	if desc, _ := op["description"].(string); desc != "" {
		b.WriteString(strings.TrimSpace(desc) + "\n\n")
	}

	renderParameters(&b, doc, op)
	renderRequestBody(&b, doc, op)
	errorCodes := renderResponses(&b, doc, op)

	return b.String(), errorCodes
}

// renderParameters groups parameters by location and emits one table per
// non-empty group.
func renderParameters(b *strings.Builder, doc map[string]any, op map[string]any) {
	params, _ := op["parameters"].([]any)
	if len(params) == 0 {
		return
	}

	grouped := map[string][]map[string]any{}
	for _, raw := range params {
		p, _ := raw.(map[string]any)
		if p == nil {
			continue
		}
		if ref, _ := p["$ref"].(string); ref != "" {
			if resolved, ok := resolveRef(doc, ref); ok {
				p = resolved
			}
		}
		in, _ := p["in"].(string)
		grouped[in] = append(grouped[in], p)
	}

	for _, loc := range paramLocations {
		group := grouped[loc.in]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(b, "## %s\n\n", loc.label)
		b.WriteString("| 参数 | 类型 | 必填 | 说明 |\n|---|---|---|---|\n")
		for _, p := range group {
			name, _ := p["name"].(string)
			desc, _ := p["description"].(string)
			required, _ := p["required"].(bool)
			typ := paramType(p)
			req := "否"
			if required {
				req = "是"
			}
			fmt.Fprintf(b, "| %s | %s | %s | %s |\n", name, typ, req, tableCell(desc))
		}
		b.WriteString("\n")
	}
}

func paramType(p map[string]any) string {
	if schema, _ := p["schema"].(map[string]any); schema != nil {
		if t, _ := schema["type"].(string); t != "" {
			return t
		}
	}
	if t, _ := p["type"].(string); t != "" {
		return t
	}
	return "object"
}

func renderRequestBody(b *strings.Builder, doc map[string]any, op map[string]any) {
	body, _ := op["requestBody"].(map[string]any)
	if body == nil {
		return
	}
	schema := jsonMediaSchema(body)
	if schema == nil {
		return
	}
	b.WriteString("## 请求体\n\n")
	if desc, _ := body["description"].(string); desc != "" {
		b.WriteString(strings.TrimSpace(desc) + "\n\n")
	}
	renderSchemaBlock(b, doc, schema)
}

// renderResponses emits one section per status code and turns non-2xx,
// non-default codes into error-code entries.
func renderResponses(b *strings.Builder, doc map[string]any, op map[string]any) []adapter.ErrorCodeEntry {
	responses, _ := op["responses"].(map[string]any)
	if len(responses) == 0 {
		return nil
	}

	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	b.WriteString("## 响应\n\n")
	var errorCodes []adapter.ErrorCodeEntry
	for _, code := range codes {
		resp, _ := responses[code].(map[string]any)
		if resp == nil {
			continue
		}
		desc, _ := resp["description"].(string)
		fmt.Fprintf(b, "### %s\n\n", code)
		if desc != "" {
			b.WriteString(strings.TrimSpace(desc) + "\n\n")
		}
		if schema := jsonMediaSchema(resp); schema != nil {
			renderSchemaBlock(b, doc, schema)
		}

		if code != "default" && !strings.HasPrefix(code, "2") {
			errorCodes = append(errorCodes, adapter.ErrorCodeEntry{
				Code:        code,
				Description: desc,
			})
		}
	}
	return errorCodes
}

// jsonMediaSchema picks the schema of the JSON media type, falling back to
// the first media type present.
func jsonMediaSchema(holder map[string]any) map[string]any {
	content, _ := holder["content"].(map[string]any)
	if len(content) == 0 {
		return nil
	}
	if media, _ := content["application/json"].(map[string]any); media != nil {
		schema, _ := media["schema"].(map[string]any)
		return schema
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	media, _ := content[keys[0]].(map[string]any)
	if media == nil {
		return nil
	}
	schema, _ := media["schema"].(map[string]any)
	return schema
}

func renderSchemaBlock(b *strings.Builder, doc map[string]any, schema map[string]any) {
	var lines []string
	writeSchema(&lines, doc, schema, "", 0, map[string]bool{})
	if len(lines) == 0 {
		return
	}
	b.WriteString(strings.Join(lines, "\n") + "\n\n")
}

// writeSchema renders one schema as an indented bullet list. Refs resolve
// inside the document only; traversal carries an explicit visited set and
// depth counter, emitting sentinels on cycles and at the depth cap.
func writeSchema(lines *[]string, doc map[string]any, schema map[string]any, indent string, depth int, visited map[string]bool) {
	if schema == nil {
		return
	}
	if depth > maxSchemaDepth {
		*lines = append(*lines, indent+"- ...")
		return
	}

	if ref, _ := schema["$ref"].(string); ref != "" {
		if !strings.HasPrefix(ref, "#/") {
			*lines = append(*lines, fmt.Sprintf("%s- [外部引用: %s]", indent, ref))
			return
		}
		if visited[ref] {
			*lines = append(*lines, fmt.Sprintf("%s- [循环引用: %s]", indent, refName(ref)))
			return
		}
		resolved, ok := resolveRef(doc, ref)
		if !ok {
			*lines = append(*lines, fmt.Sprintf("%s- [未解析引用: %s]", indent, ref))
			return
		}
		visited[ref] = true
		writeSchema(lines, doc, resolved, indent, depth, visited)
		delete(visited, ref)
		return
	}

	if allOf, _ := schema["allOf"].([]any); len(allOf) > 0 {
		writeSchema(lines, doc, mergeAllOf(doc, allOf, visited), indent, depth, visited)
		return
	}

	for _, key := range []string{"oneOf", "anyOf"} {
		if variants, _ := schema[key].([]any); len(variants) > 0 {
			for i, raw := range variants {
				variant, _ := raw.(map[string]any)
				*lines = append(*lines, fmt.Sprintf("%s- 方式%d：", indent, i+1))
				writeSchema(lines, doc, variant, indent+"  ", depth+1, visited)
			}
			return
		}
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "array":
		items, _ := schema["items"].(map[string]any)
		*lines = append(*lines, indent+"- (数组) 元素：")
		writeSchema(lines, doc, items, indent+"  ", depth+1, visited)
	case "object", "":
		props, _ := schema["properties"].(map[string]any)
		required := requiredSet(schema)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			prop, _ := props[name].(map[string]any)
			*lines = append(*lines, indent+"- "+propertyLine(name, prop, required[name]))
			if isNested(prop) {
				writeSchema(lines, doc, prop, indent+"  ", depth+1, visited)
			}
		}
	default:
		*lines = append(*lines, indent+"- "+scalarLine(typ, schema))
	}
}

func isNested(schema map[string]any) bool {
	if schema == nil {
		return false
	}
	if _, ok := schema["$ref"]; ok {
		return true
	}
	typ, _ := schema["type"].(string)
	if typ == "array" {
		return true
	}
	if props, _ := schema["properties"].(map[string]any); len(props) > 0 {
		return true
	}
	_, hasAll := schema["allOf"]
	_, hasOne := schema["oneOf"]
	_, hasAny := schema["anyOf"]
	return hasAll || hasOne || hasAny
}

func propertyLine(name string, schema map[string]any, required bool) string {
	typ := "object"
	desc := ""
	var enum []any
	if schema != nil {
		if t, _ := schema["type"].(string); t != "" {
			typ = t
		} else if _, ok := schema["$ref"]; ok {
			typ = "object"
		}
		desc, _ = schema["description"].(string)
		enum, _ = schema["enum"].([]any)
	}

	line := fmt.Sprintf("`%s` (%s", name, typ)
	if required {
		line += ", 必填"
	}
	line += ")"
	if desc != "" {
		line += "：" + tableCell(desc)
	}
	if len(enum) > 0 {
		line += "，可选值：" + enumList(enum)
	}
	return line
}

func scalarLine(typ string, schema map[string]any) string {
	line := "(" + typ + ")"
	if desc, _ := schema["description"].(string); desc != "" {
		line += " " + tableCell(desc)
	}
	if enum, _ := schema["enum"].([]any); len(enum) > 0 {
		line += "，可选值：" + enumList(enum)
	}
	return line
}

func enumList(enum []any) string {
	vals := make([]string, 0, len(enum))
	for _, v := range enum {
		vals = append(vals, fmt.Sprintf("`%v`", v))
	}
	return strings.Join(vals, ", ")
}

func requiredSet(schema map[string]any) map[string]bool {
	out := map[string]bool{}
	reqs, _ := schema["required"].([]any)
	for _, r := range reqs {
		if name, _ := r.(string); name != "" {
			out[name] = true
		}
	}
	return out
}

// mergeAllOf combines allOf branches field-wise: properties are unioned
// and required lists concatenated. Refs inside branches resolve first.
func mergeAllOf(doc map[string]any, branches []any, visited map[string]bool) map[string]any {
	merged := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	mergedProps := merged["properties"].(map[string]any)
	var mergedRequired []any

	for _, raw := range branches {
		branch, _ := raw.(map[string]any)
		if branch == nil {
			continue
		}
		if ref, _ := branch["$ref"].(string); ref != "" && !visited[ref] {
			if resolved, ok := resolveRef(doc, ref); ok {
				branch = resolved
			}
		}
		if props, _ := branch["properties"].(map[string]any); props != nil {
			for name, p := range props {
				mergedProps[name] = p
			}
		}
		if reqs, _ := branch["required"].([]any); reqs != nil {
			mergedRequired = append(mergedRequired, reqs...)
		}
	}
	if len(mergedRequired) > 0 {
		merged["required"] = mergedRequired
	}
	return merged
}

// resolveRef walks a "#/a/b/c" pointer inside the document.
func resolveRef(doc map[string]any, ref string) (map[string]any, bool) {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	resolved, ok := cur.(map[string]any)
	return resolved, ok
}

func refName(ref string) string {
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}

func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(strings.ReplaceAll(s, "|", "\\|"))
}
