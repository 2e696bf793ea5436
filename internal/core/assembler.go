package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Turn is one prior exchange message fed back into the prompt.
type Turn struct {
	Role    string
	Content string
}

// Prompt is the bounded payload handed to the model gateway. An empty System
// section means no contextual data was worth including.
type Prompt struct {
	System string
	Turns  []Turn
	User   string
}

const contextDirective = "When the context information above is relevant to the question, prefer it over your general knowledge."

type Options struct {
	// PersistentBudget is the size above which persistent-fact context is
	// considered noise and dropped outright rather than truncated.
	PersistentBudget int
	PersistentKeys   []string

	MaxHits      int
	HitChars     int
	PreviewChars int

	// Text slices for plain files: relevant files get the larger cut, the
	// rest still contribute the smaller one.
	RelevantSlice int
	FallbackSlice int
	WordWindow    int

	// RecentExchanges bounds how many prior user/assistant exchanges are
	// replayed.
	RecentExchanges int

	// TokenLimit caps the encoded prompt; 0 disables the guard.
	TokenLimit int
}

func DefaultOptions() Options {
	return Options{
		PersistentBudget: 1000,
		PersistentKeys:   []string{KeyName},
		MaxHits:          6,
		HitChars:         800,
		PreviewChars:     800,
		RelevantSlice:    3000,
		FallbackSlice:    1500,
		WordWindow:       300,
		RecentExchanges:  5,
		TokenLimit:       4000,
	}
}

// Assembler selects and truncates the most relevant memory entries and recent
// conversation turns for a new question. All of its work is pure in-memory
// computation; malformed stored data degrades to weaker matching, never to an
// error.
type Assembler struct {
	opts Options
	enc  *tiktoken.Tiktoken
}

func NewAssembler(opts Options) *Assembler {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("token encoding unavailable, prompt token guard disabled", "error", err)
		enc = nil
	}
	return &Assembler{opts: opts, enc: enc}
}

type fileEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type apiEntry struct {
	URL     string          `json:"url"`
	Payload json.RawMessage `json:"payload"`
}

// Assemble builds the bounded prompt for a question given the chat's merged
// memory and its prior turns (the just-appended current message excluded).
func (a *Assembler) Assemble(question string, mem map[string]json.RawMessage, history []Turn) Prompt {
	tokens := QuestionTokens(question)

	var sections []string
	if s := a.fileContext(tokens, mem[KeyFiles]); s != "" {
		sections = append(sections, s)
	}
	if s := a.apiContext(tokens, mem[KeyAPIs]); s != "" {
		sections = append(sections, s)
	}
	if s := a.persistentContext(mem); s != "" {
		sections = append(sections, s)
	}

	system := ""
	if len(sections) > 0 {
		system = strings.Join(sections, "\n\n") + "\n\n" + contextDirective
	}

	turns := history
	if window := 2 * a.opts.RecentExchanges; len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	prompt := Prompt{System: system, Turns: turns, User: question}
	return a.bound(prompt)
}

const (
	KeyFiles = "files"
	KeyAPIs  = "apis"
	KeyName  = "name"
)

// fileContext gives every stored file a slice of the prompt, ranked by
// relevance rather than filtered: omitting a file silently is worse than
// including it noisily.
func (a *Assembler) fileContext(tokens []string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var files map[string]fileEntry
	if err := json.Unmarshal(raw, &files); err != nil || len(files) == 0 {
		return ""
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		parts = append(parts, a.describeContent(fmt.Sprintf("File %q", name), files[name].Content, tokens))
	}
	return strings.Join(parts, "\n")
}

func (a *Assembler) apiContext(tokens []string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var apis map[string]apiEntry
	if err := json.Unmarshal(raw, &apis); err != nil || len(apis) == 0 {
		return ""
	}

	keys := make([]string, 0, len(apis))
	for key := range apis {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		entry := apis[key]
		label := fmt.Sprintf("API data from %s", entry.URL)
		parts = append(parts, a.describeContent(label, string(entry.Payload), tokens))
	}
	return strings.Join(parts, "\n")
}

// describeContent tries the content as structured JSON first, falling back to
// plain-text classification when parsing fails.
func (a *Assembler) describeContent(label, content string, tokens []string) string {
	var structured any
	if err := json.Unmarshal([]byte(content), &structured); err == nil {
		switch structured.(type) {
		case map[string]any, []any:
			hits := SearchStructured(structured, tokens, a.opts.MaxHits, a.opts.HitChars)
			if len(hits) > 0 {
				lines := make([]string, 0, len(hits)+1)
				lines = append(lines, label+":")
				for _, hit := range hits {
					lines = append(lines, fmt.Sprintf("  %s: %s", hit.Path, hit.Content))
				}
				return strings.Join(lines, "\n")
			}
			return fmt.Sprintf("%s (preview): %s", label, Preview(structured, a.opts.PreviewChars))
		}
	}

	slice := a.opts.FallbackSlice
	if RelevantText(content, tokens, a.opts.WordWindow) {
		slice = a.opts.RelevantSlice
	}
	return fmt.Sprintf("%s: %s", label, Truncate(content, slice))
}

// persistentContext serializes the small set of persistent facts. Oversized
// persistent context is treated as noise and excluded entirely, not trimmed.
func (a *Assembler) persistentContext(mem map[string]json.RawMessage) string {
	var lines []string
	for _, key := range a.opts.PersistentKeys {
		raw, ok := mem[key]
		if !ok {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", key, renderValue(value)))
	}
	if len(lines) == 0 {
		return ""
	}

	section := "Known facts about the user:\n" + strings.Join(lines, "\n")
	if len(section) > a.opts.PersistentBudget {
		return ""
	}
	return section
}

// bound enforces the token ceiling: oldest turns go first, then the system
// context is cut from the tail.
func (a *Assembler) bound(prompt Prompt) Prompt {
	if a.enc == nil || a.opts.TokenLimit <= 0 {
		return prompt
	}

	for a.countTokens(prompt) > a.opts.TokenLimit && len(prompt.Turns) > 0 {
		prompt.Turns = prompt.Turns[1:]
	}

	for a.countTokens(prompt) > a.opts.TokenLimit && prompt.System != "" {
		runes := []rune(prompt.System)
		if len(runes) < 64 {
			prompt.System = ""
			break
		}
		prompt.System = string(runes[:len(runes)/2]) + TruncationMarker
	}
	return prompt
}

func (a *Assembler) countTokens(prompt Prompt) int {
	count := len(a.enc.Encode(prompt.System, nil, nil)) + len(a.enc.Encode(prompt.User, nil, nil))
	for _, turn := range prompt.Turns {
		count += len(a.enc.Encode(turn.Content, nil, nil))
	}
	return count
}
