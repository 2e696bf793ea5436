package core_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"assistant-backend/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleEmptyMemory(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	prompt := assembler.Assemble("hello there", map[string]json.RawMessage{}, nil)
	assert.Empty(t, prompt.System)
	assert.Empty(t, prompt.Turns)
	assert.Equal(t, "hello there", prompt.User)
}

func TestAssembleEveryFileContributes(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	files := map[string]map[string]string{
		"inventory.json": {"type": "json", "content": `{"color":"blue","qty":7}`},
		"notes.txt":      {"type": "text", "content": "meeting moved to Tuesday"},
	}
	raw, err := json.Marshal(files)
	require.NoError(t, err)

	prompt := assembler.Assemble("what color is the widget", map[string]json.RawMessage{core.KeyFiles: raw}, nil)
	assert.Contains(t, prompt.System, `File "inventory.json"`)
	assert.Contains(t, prompt.System, "blue")
	assert.Contains(t, prompt.System, `File "notes.txt"`)
	assert.Contains(t, prompt.System, "meeting moved to Tuesday")
}

func TestAssembleStructuredHitPaths(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	files := map[string]map[string]string{
		"inventory.json": {"type": "json", "content": `{"color":"blue","qty":7}`},
	}
	raw, err := json.Marshal(files)
	require.NoError(t, err)

	prompt := assembler.Assemble("what color is it", map[string]json.RawMessage{core.KeyFiles: raw}, nil)
	assert.Contains(t, prompt.System, "/color: blue")
}

func TestAssembleAPIContext(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	apis := map[string]map[string]any{
		"api_1": {"url": "https://example.com/data", "payload": map[string]any{"status": "healthy"}},
	}
	raw, err := json.Marshal(apis)
	require.NoError(t, err)

	prompt := assembler.Assemble("what is the status", map[string]json.RawMessage{core.KeyAPIs: raw}, nil)
	assert.Contains(t, prompt.System, "API data from https://example.com/data")
	assert.Contains(t, prompt.System, "healthy")
}

func TestAssemblePersistentFacts(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	mem := map[string]json.RawMessage{core.KeyName: json.RawMessage(`"Ada"`)}
	prompt := assembler.Assemble("hello", mem, nil)
	assert.Contains(t, prompt.System, "name: Ada")
}

func TestAssembleOversizedPersistentDropped(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	big, err := json.Marshal(strings.Repeat("x", 1500))
	require.NoError(t, err)

	prompt := assembler.Assemble("hello", map[string]json.RawMessage{core.KeyName: big}, nil)
	assert.Empty(t, prompt.System)
}

func TestAssembleRecentWindow(t *testing.T) {
	opts := core.DefaultOptions()
	opts.RecentExchanges = 5
	assembler := core.NewAssembler(opts)

	var history []core.Turn
	for i := 0; i < 7; i++ {
		history = append(history,
			core.Turn{Role: "user", Content: fmt.Sprintf("question %d", i)},
			core.Turn{Role: "assistant", Content: fmt.Sprintf("answer %d", i)},
		)
	}

	prompt := assembler.Assemble("next question", map[string]json.RawMessage{}, history)
	require.Len(t, prompt.Turns, 10)
	assert.Equal(t, "question 2", prompt.Turns[0].Content)
	assert.Equal(t, "answer 6", prompt.Turns[9].Content)
}

func TestAssembleMalformedFilesEntry(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	mem := map[string]json.RawMessage{core.KeyFiles: json.RawMessage(`"not a map"`)}
	prompt := assembler.Assemble("hello", mem, nil)
	assert.Empty(t, prompt.System)
}

func TestAssembleDirectivePresentWithContext(t *testing.T) {
	assembler := core.NewAssembler(core.DefaultOptions())

	mem := map[string]json.RawMessage{core.KeyName: json.RawMessage(`"Ada"`)}
	prompt := assembler.Assemble("hello", mem, nil)
	assert.Contains(t, prompt.System, "prefer it over your general knowledge")
}
