package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"assistant-backend/internal/core"
	"assistant-backend/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel scripts a langchaingo model: fixed reply text, optional error, and
// optional fragments emitted through the streaming callback before returning.
type fakeModel struct {
	reply     string
	err       error
	fragments []string

	seen []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.seen = messages

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, fragment := range m.fragments {
			if err := opts.StreamingFunc(ctx, []byte(fragment)); err != nil {
				return nil, err
			}
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.reply}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.reply, m.err
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{reply: "hello back"}
	llm := gateway.NewLLM(model, time.Minute)

	reply, err := llm.Generate(context.Background(), core.Prompt{User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)
}

func TestGenerateMessageOrder(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	llm := gateway.NewLLM(model, time.Minute)

	prompt := core.Prompt{
		System: "context here",
		Turns: []core.Turn{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
		},
		User: "third",
	}
	_, err := llm.Generate(context.Background(), prompt)
	require.NoError(t, err)

	require.Len(t, model.seen, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.seen[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.seen[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.seen[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.seen[3].Role)
}

func TestGenerateBackendError(t *testing.T) {
	model := &fakeModel{err: errors.New("model exploded")}
	llm := gateway.NewLLM(model, time.Minute)

	_, err := llm.Generate(context.Background(), core.Prompt{User: "hello"})
	var backendErr *gateway.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Contains(t, backendErr.Message, "model exploded")
}

func TestGenerateUnavailable(t *testing.T) {
	model := &fakeModel{err: context.DeadlineExceeded}
	llm := gateway.NewLLM(model, time.Minute)

	_, err := llm.Generate(context.Background(), core.Prompt{User: "hello"})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestGenerateStream(t *testing.T) {
	model := &fakeModel{reply: "he llo", fragments: []string{"he", " llo"}}
	llm := gateway.NewLLM(model, time.Minute)

	var deltas []string
	accumulated, err := llm.GenerateStream(context.Background(), core.Prompt{User: "hello"}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"he", " llo"}, deltas)
	assert.Equal(t, "he llo", accumulated)
}

func TestGenerateStreamPartialOnError(t *testing.T) {
	model := &fakeModel{fragments: []string{"partial ", "answer"}, err: context.Canceled}
	llm := gateway.NewLLM(model, time.Minute)

	accumulated, err := llm.GenerateStream(context.Background(), core.Prompt{User: "hello"}, func(string) error { return nil })
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Equal(t, "partial answer", accumulated)
}

func TestGenerateStreamCallbackAborts(t *testing.T) {
	model := &fakeModel{fragments: []string{"one ", "two ", "three ", "four ", "five"}}
	llm := gateway.NewLLM(model, time.Minute)

	abort := errors.New("client went away")
	count := 0
	accumulated, err := llm.GenerateStream(context.Background(), core.Prompt{User: "hello"}, func(string) error {
		count++
		if count == 3 {
			return abort
		}
		return nil
	})
	require.Error(t, err)

	// The third fragment was never delivered, so it is not part of the reply.
	assert.Equal(t, "one two ", accumulated)
}

func TestSummarizeTitle(t *testing.T) {
	model := &fakeModel{reply: "**Title: Trip Planning**"}
	llm := gateway.NewLLM(model, time.Minute)

	title, err := llm.SummarizeTitle(context.Background(), []core.Turn{
		{Role: "user", Content: "help me plan a trip"},
		{Role: "assistant", Content: "where to?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Trip Planning", title)
}
