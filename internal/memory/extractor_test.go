package memory_test

import (
	"testing"

	"assistant-backend/internal/memory"

	"github.com/stretchr/testify/assert"
)

func TestPhraseExtractor(t *testing.T) {
	tests := []struct {
		message string
		kind    string
		payload string
		found   bool
	}{
		{"my name is Alice", memory.FactName, "Alice", true},
		{"Hi, My Name Is Grace Hopper.", memory.FactName, "Grace Hopper", true},
		{"call me Ishmael", memory.FactName, "Ishmael", true},
		{"remember that I prefer short answers.", memory.FactLesson, "I prefer short answers", true},
		{"remember: the meeting moved to Tuesday", memory.FactLesson, "the meeting moved to Tuesday", true},
		{"what is the weather today", "", "", false},
		{"I can't remember", "", "", false},
	}

	var extractor memory.PhraseExtractor
	for _, tt := range tests {
		fact, ok := extractor.Extract(tt.message)
		assert.Equal(t, tt.found, ok, "message %q", tt.message)
		if tt.found {
			assert.Equal(t, tt.kind, fact.Kind, "message %q", tt.message)
			assert.Equal(t, tt.payload, fact.Payload, "message %q", tt.message)
		}
	}
}
