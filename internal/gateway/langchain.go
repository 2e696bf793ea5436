package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"assistant-backend/internal/core"
	"assistant-backend/internal/database"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultTimeout = 60 * time.Second

// LLM adapts a langchaingo model to the Gateway contract.
type LLM struct {
	model   llms.Model
	timeout time.Duration
}

func NewLLM(model llms.Model, timeout time.Duration) *LLM {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LLM{model: model, timeout: timeout}
}

func NewOpenAI(apiKey, model string, timeout time.Duration) (*LLM, error) {
	client, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("could not create OpenAI client: %w", err)
	}
	return NewLLM(client, timeout), nil
}

func NewOllama(serverURL, model string, timeout time.Duration) (*LLM, error) {
	client, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("could not create Ollama client: %w", err)
	}
	return NewLLM(client, timeout), nil
}

func (l *LLM) Generate(ctx context.Context, prompt core.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.model.GenerateContent(ctx, messagesFor(prompt))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Message: "backend returned no choices"}
	}
	return resp.Choices[0].Content, nil
}

func (l *LLM) GenerateStream(ctx context.Context, prompt core.Prompt, onDelta func(string) error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// A chunk counts as accumulated only once onDelta delivered it: the text
	// persisted after a disconnect is exactly the fragments the client saw.
	var accumulated strings.Builder
	_, err := l.model.GenerateContent(ctx, messagesFor(prompt),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if err := onDelta(string(chunk)); err != nil {
				return err
			}
			accumulated.Write(chunk)
			return nil
		}))
	if err != nil {
		return accumulated.String(), classify(err)
	}
	return accumulated.String(), nil
}

const titleInstruction = "Generate a very short title (at most five words) summarizing this conversation. Reply with the title only."

func (l *LLM) SummarizeTitle(ctx context.Context, turns []core.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var transcript strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", turn.Role, turn.Content)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, titleInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, transcript.String()),
	}

	resp, err := l.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Message: "backend returned no choices"}
	}
	return CleanTitle(resp.Choices[0].Content), nil
}

func messagesFor(prompt core.Prompt) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(prompt.Turns)+2)
	if prompt.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	for _, turn := range prompt.Turns {
		role := llms.ChatMessageTypeHuman
		if turn.Role == database.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt.User))
	return messages
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &BackendError{Message: err.Error()}
}
