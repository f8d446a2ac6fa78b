package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestProtectedTokensSurviveVerbatim(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string // token that must appear exactly once, unsplit
	}{
		{"url", "参考 https://developer.work.weixin.qq.com/document 获取详情", "https://developer.work.weixin.qq.com/document"},
		{"api path", "调用 /cgi-bin/message/send 接口", "/cgi-bin/message/send"},
		{"scoped identifier", "需要 contact:user.base:readonly 权限", "contact:user.base:readonly"},
		{"snake identifier", "返回 access_token 字段", "access_token"},
		{"digit run", "错误码 60011 表示无权限", "60011"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := Tokenize(tc.input)
			count := 0
			for _, tok := range tokens {
				if tok == tc.want {
					count++
				}
			}
			if count != 1 {
				t.Errorf("Tokenize(%q) = %v, want exactly one %q", tc.input, tokens, tc.want)
			}
		})
	}
}

func TestStopWordsDropped(t *testing.T) {
	tokens := Tokenize("发送的消息和应用")
	for _, tok := range tokens {
		if tok == "的" || tok == "和" {
			t.Errorf("stop word %q leaked into %v", tok, tokens)
		}
	}
	if len(tokens) == 0 {
		t.Fatal("expected content tokens to remain")
	}
}

func TestPunctuationOnlyYieldsNothing(t *testing.T) {
	if tokens := Tokenize("，。！？、；："); len(tokens) != 0 {
		t.Errorf("punctuation-only input produced %v", tokens)
	}
}

func TestDeterministic(t *testing.T) {
	const input = "发送应用消息 access_token /cgi-bin/message/send 60011"
	a := Tokenize(input)
	b := Tokenize(input)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("tokenize not deterministic: %v vs %v", a, b)
	}
}

func TestQueryModeDeduplicates(t *testing.T) {
	tokens := TokenizeQuery("消息 消息 消息")
	seen := map[string]int{}
	for _, tok := range tokens {
		seen[tok]++
		if seen[tok] > 1 {
			t.Fatalf("duplicate token %q in query-mode output %v", tok, tokens)
		}
	}
}

func TestMalformedUTF8DoesNotPanic(t *testing.T) {
	input := "消息" + string([]byte{0xff, 0xfe}) + "发送"
	tokens := Tokenize(input)
	for _, tok := range tokens {
		if strings.ContainsRune(tok, 0xFFFD) {
			t.Errorf("replacement rune leaked into token %q", tok)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join([]string{"a", "b", "c"}); got != "a b c" {
		t.Errorf("Join = %q", got)
	}
}
