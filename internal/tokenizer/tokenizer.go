// Package tokenizer produces the whitespace-separated token streams the FTS
// index is built on. The same dictionary must be used at write time and at
// query time; otherwise indexed tokens and query tokens won't align.
package tokenizer

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
)

// protected substrings are emitted verbatim as single tokens, in priority
// order: absolute URLs, slash-delimited paths, identifiers (optionally with
// ':' or '.', e.g. contact:user.base:readonly), digit runs.
var protectRe = regexp.MustCompile(`https?://[^\s]+|/[A-Za-z0-9_./{}-]+|[A-Za-z_][A-Za-z0-9_]*(?:[:.][A-Za-z0-9_]+)*|\d+`)

var stopWords = map[string]struct{}{
	"的": {}, "了": {}, "是": {}, "在": {}, "有": {}, "和": {}, "与": {},
	"或": {}, "等": {}, "把": {}, "被": {}, "对": {}, "不": {}, "也": {},
	"都": {}, "而": {}, "及": {}, "到": {}, "从": {}, "以": {},
}

var (
	seg      gse.Segmenter
	initOnce sync.Once
	initErr  error
	dictPath string
)

// Init loads the segmenter dictionary, merging the user dictionary at path
// (one "word weight" pair per line) when non-empty. Safe to call once before
// serving; Tokenize falls back to lazy initialization otherwise.
func Init(path string) error {
	dictPath = path
	initOnce.Do(load)
	return initErr
}

func load() {
	if err := seg.LoadDict(); err != nil {
		initErr = err
		return
	}
	if dictPath == "" {
		initErr = loadUserDict(strings.NewReader(embeddedUserDict))
		return
	}
	f, err := os.Open(dictPath)
	if err != nil {
		initErr = err
		return
	}
	defer f.Close()
	initErr = loadUserDict(f)
}

func loadUserDict(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		word := fields[0]
		freq := 100.0
		if len(fields) > 1 {
			if f, err := strconv.ParseFloat(fields[1], 64); err == nil {
				freq = f
			}
		}
		if err := seg.AddToken(word, freq); err != nil {
			return err
		}
	}
	return sc.Err()
}

func ensureInit() error {
	initOnce.Do(load)
	return initErr
}

// Tokenize segments text for indexing (write mode, standard cut).
func Tokenize(text string) []string {
	return tokenize(text, false)
}

// TokenizeQuery segments text for querying (search-optimized cut, which may
// emit both coarse and fine granularities) and deduplicates tokens while
// preserving first-seen order.
func TokenizeQuery(text string) []string {
	tokens := tokenize(text, true)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func tokenize(text string, query bool) []string {
	if err := ensureInit(); err != nil {
		// Dictionary unavailable; protected tokens still work, the rest is
		// split on whitespace so indexing never hard-fails.
		return fallbackTokenize(text)
	}

	text = strings.ToValidUTF8(text, "")

	var tokens []string
	last := 0
	for _, loc := range protectRe.FindAllStringIndex(text, -1) {
		tokens = appendSegments(tokens, text[last:loc[0]], query)
		tokens = append(tokens, text[loc[0]:loc[1]])
		last = loc[1]
	}
	tokens = appendSegments(tokens, text[last:], query)
	return tokens
}

func appendSegments(tokens []string, text string, query bool) []string {
	if strings.TrimSpace(text) == "" {
		return tokens
	}
	var segs []string
	if query {
		segs = seg.CutSearch(text, true)
	} else {
		segs = seg.Cut(text, true)
	}
	for _, s := range segs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, stop := stopWords[s]; stop {
			continue
		}
		if isPunct(s) {
			continue
		}
		tokens = append(tokens, s)
	}
	return tokens
}

func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func fallbackTokenize(text string) []string {
	text = strings.ToValidUTF8(text, "")
	var tokens []string
	last := 0
	for _, loc := range protectRe.FindAllStringIndex(text, -1) {
		tokens = append(tokens, strings.Fields(text[last:loc[0]])...)
		tokens = append(tokens, text[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(tokens, strings.Fields(text[last:])...)
}

// Join renders a token stream the way the FTS index stores it.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}
