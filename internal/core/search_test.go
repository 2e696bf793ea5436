package core_test

import (
	"encoding/json"
	"strings"
	"testing"

	"assistant-backend/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionTokens(t *testing.T) {
	tokens := core.QuestionTokens("What color is it? The COLOR, I mean!")
	assert.Equal(t, []string{"what", "color", "the", "mean"}, tokens)

	assert.Empty(t, core.QuestionTokens("is it a b c"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", core.Truncate("short", 10))

	cut := core.Truncate("abcdefghij", 4)
	assert.Equal(t, "abcd"+core.TruncationMarker, cut)

	// Rune-safe: must not split a multibyte character.
	cut = core.Truncate("héllo wörld", 3)
	assert.Equal(t, "hél"+core.TruncationMarker, cut)
}

func TestSearchStructuredKeyMatch(t *testing.T) {
	var data any
	require.NoError(t, json.Unmarshal([]byte(`{"color":"blue","qty":7}`), &data))

	hits := core.SearchStructured(data, core.QuestionTokens("what color is it"), 6, 800)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Path, "/color")
	assert.Contains(t, hits[0].Content, "blue")
}

func TestSearchStructuredValueMatch(t *testing.T) {
	var data any
	require.NoError(t, json.Unmarshal([]byte(`{"items":[{"label":"widget"},{"label":"gadget"}]}`), &data))

	hits := core.SearchStructured(data, []string{"gadget"}, 6, 800)
	require.Len(t, hits, 1)
	assert.Equal(t, "/items/1/label", hits[0].Path)
	assert.Equal(t, "gadget", hits[0].Content)
}

func TestSearchStructuredKeyMatchSkipsSubtree(t *testing.T) {
	var data any
	require.NoError(t, json.Unmarshal([]byte(`{"config":{"config":{"x":1}}}`), &data))

	hits := core.SearchStructured(data, []string{"config"}, 6, 800)
	require.Len(t, hits, 1)
	assert.Equal(t, "/config", hits[0].Path)
}

func TestSearchStructuredCapsHits(t *testing.T) {
	doc := make(map[string]any)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		doc[key] = "target"
	}

	hits := core.SearchStructured(doc, []string{"target"}, 3, 800)
	assert.Len(t, hits, 3)
}

func TestSearchStructuredNoMatch(t *testing.T) {
	var data any
	require.NoError(t, json.Unmarshal([]byte(`{"color":"blue"}`), &data))

	hits := core.SearchStructured(data, []string{"weather"}, 6, 800)
	assert.Empty(t, hits)

	preview := core.Preview(data, 800)
	assert.NotEmpty(t, preview)
	assert.Contains(t, preview, "blue")
}

func TestSearchStructuredCapsHitSize(t *testing.T) {
	data := map[string]any{"notes": strings.Repeat("x", 100)}

	hits := core.SearchStructured(data, []string{"notes"}, 6, 10)
	require.Len(t, hits, 1)
	assert.True(t, strings.HasSuffix(hits[0].Content, core.TruncationMarker))
}

func TestRelevantText(t *testing.T) {
	assert.True(t, core.RelevantText("The sky is Blue today", []string{"blue"}, 300))
	assert.False(t, core.RelevantText("nothing to see here", []string{"blue"}, 300))

	// Token beyond the word window does not count.
	content := strings.Repeat("filler ", 300) + "blue"
	assert.False(t, core.RelevantText(content, []string{"blue"}, 300))
}
