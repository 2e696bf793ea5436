package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Fact kinds produced by extractors.
const (
	FactName   = "name"
	FactLesson = "lesson"
)

type Fact struct {
	Kind    string
	Payload string
}

// Extractor is a pluggable pre-processing step that scans a user message for
// something worth remembering. It is best-effort and fully decoupled from
// context assembly.
type Extractor interface {
	Extract(message string) (Fact, bool)
}

var (
	namePattern   = regexp.MustCompile(`(?i)\b(?:my name is|call me)\s+([A-Za-z][\w'-]*(?:\s+[A-Za-z][\w'-]*)?)`)
	lessonPattern = regexp.MustCompile(`(?i)\bremember(?: that|:)\s+(.+)`)
)

// PhraseExtractor matches a handful of literal phrases. Crude on purpose; a
// smarter extractor can be swapped in behind the same interface.
type PhraseExtractor struct{}

func (PhraseExtractor) Extract(message string) (Fact, bool) {
	if m := namePattern.FindStringSubmatch(message); m != nil {
		return Fact{Kind: FactName, Payload: strings.TrimSpace(m[1])}, true
	}
	if m := lessonPattern.FindStringSubmatch(message); m != nil {
		payload := strings.TrimRight(strings.TrimSpace(m[1]), ".!")
		if payload != "" {
			return Fact{Kind: FactLesson, Payload: payload}, true
		}
	}
	return Fact{}, false
}

// Apply writes an extracted fact into the chat's memory: names replace the
// persistent "name" entry, lessons append to the "lessons" list.
func (s *Store) Apply(ctx context.Context, chatId uuid.UUID, fact Fact) error {
	switch fact.Kind {
	case FactName:
		return s.Update(ctx, chatId, KeyName, fact.Payload)
	case FactLesson:
		return s.AppendToList(ctx, chatId, KeyLessons, fact.Payload)
	default:
		return nil
	}
}
