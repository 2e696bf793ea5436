package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TruncationMarker is appended whenever content is hard-truncated, so the
// consumer can tell it was shortened.
const TruncationMarker = "... [truncated]"

// Hit is one relevant location inside a structured document.
type Hit struct {
	Path    string
	Content string
}

// QuestionTokens tokenizes a question for relevance search: lowercase, short
// tokens dropped, duplicates removed preserving first-seen order.
func QuestionTokens(question string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(question)) {
		token := strings.Trim(field, ".,;:!?\"'()[]{}")
		if len(token) < 3 || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}

// Truncate hard-caps s at maxChars runes, appending the truncation marker
// when anything was cut.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + TruncationMarker
}

// SearchStructured walks a decoded JSON value and records every object key or
// scalar whose lowercased string form contains one of the question tokens.
// Hits are capped in count and per-hit size. Maps are walked in sorted key
// order so paths come out deterministic.
func SearchStructured(data any, tokens []string, maxHits, maxChars int) []Hit {
	var hits []Hit
	walkStructured(data, "", tokens, maxHits, maxChars, &hits)
	return hits
}

func walkStructured(data any, path string, tokens []string, maxHits, maxChars int, hits *[]Hit) {
	if len(*hits) >= maxHits {
		return
	}

	switch value := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if len(*hits) >= maxHits {
				return
			}
			childPath := path + "/" + key
			if containsAny(strings.ToLower(key), tokens) {
				*hits = append(*hits, Hit{Path: childPath, Content: Truncate(renderValue(value[key]), maxChars)})
				continue
			}
			walkStructured(value[key], childPath, tokens, maxHits, maxChars, hits)
		}
	case []any:
		for i, item := range value {
			if len(*hits) >= maxHits {
				return
			}
			walkStructured(item, path+"/"+strconv.Itoa(i), tokens, maxHits, maxChars, hits)
		}
	default:
		rendered := renderValue(value)
		if containsAny(strings.ToLower(rendered), tokens) {
			*hits = append(*hits, Hit{Path: path, Content: Truncate(rendered, maxChars)})
		}
	}
}

// Preview renders a size-capped top-level view of a structured value, used
// when relevance search comes up empty.
func Preview(data any, maxChars int) string {
	return Truncate(renderValue(data), maxChars)
}

// RelevantText reports whether any token appears as a literal substring
// within the first wordWindow words of the content.
func RelevantText(content string, tokens []string, wordWindow int) bool {
	words := strings.Fields(content)
	if len(words) > wordWindow {
		words = words[:wordWindow]
	}
	window := strings.ToLower(strings.Join(words, " "))
	return containsAny(window, tokens)
}

func containsAny(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}

func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}
