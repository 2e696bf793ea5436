package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/core"
	"assistant-backend/internal/database"
	"assistant-backend/internal/gateway"
	"assistant-backend/internal/memory"
	"assistant-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ChatService struct {
	store     *chat.Store
	router    *chat.SessionRouter
	memory    *memory.Store
	assembler *core.Assembler
	gateway   gateway.Gateway
	extractor memory.Extractor
}

func NewChatService(store *chat.Store, router *chat.SessionRouter, mem *memory.Store, assembler *core.Assembler, gw gateway.Gateway) *ChatService {
	return &ChatService{
		store:     store,
		router:    router,
		memory:    mem,
		assembler: assembler,
		gateway:   gw,
		extractor: memory.PhraseExtractor{},
	}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Post("/chat", RestHandler(s.Chat))
	r.Post("/stream", SSEHandler(s.Stream))

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetChats))
		r.Post("/", RestHandler(s.NewChat))
		r.Post("/{chat_id}/activate", RestHandler(s.ActivateChat))
	})

	r.Route("/chat/{chat_id}", func(r chi.Router) {
		r.Post("/message", RestHandler(s.AppendMessage))
		r.Get("/history", RestHandler(s.GetHistory))
		r.Put("/", RestHandler(s.RenameChat))
		r.Delete("/", RestHandler(s.DeleteChat))
		r.Post("/clear", RestHandler(s.ClearHistory))
		r.Post("/generate_title", RestHandler(s.GenerateTitle))
	})
}

// prepareTurn resolves the caller's active chat, collects the prior turns,
// records the inbound user message, and assembles the bounded prompt.
func (s *ChatService) prepareTurn(r *http.Request, req api.ChatRequest) (uuid.UUID, core.Prompt, error) {
	userId := UserId(r)
	ctx := r.Context()

	chatId, err := s.router.Resolve(ctx, userId)
	if err != nil {
		return uuid.Nil, core.Prompt{}, storeError(err)
	}

	history, err := s.store.GetHistory(ctx, chatId)
	if err != nil {
		return uuid.Nil, core.Prompt{}, storeError(err)
	}

	if _, err := s.store.AppendMessage(ctx, chatId, database.RoleUser, req.Message, req.ImageURL); err != nil {
		return uuid.Nil, core.Prompt{}, storeError(err)
	}

	mem, err := s.memory.GetAll(ctx, chatId)
	if err != nil {
		// Degrade to an empty memory map rather than failing the turn.
		slog.Error("error reading chat memory", "chat_id", chatId, "error", err)
		mem = nil
	}

	prompt := s.assembler.Assemble(req.Message, mem, turnsOf(history))
	return chatId, prompt, nil
}

// finishTurn persists the assistant reply and runs best-effort fact
// extraction on the user message.
func (s *ChatService) finishTurn(ctx context.Context, chatId uuid.UUID, userMessage, reply string) error {
	if _, err := s.store.AppendMessage(ctx, chatId, database.RoleAssistant, reply, ""); err != nil {
		return storeError(err)
	}

	if fact, ok := s.extractor.Extract(userMessage); ok {
		if err := s.memory.Apply(ctx, chatId, fact); err != nil {
			slog.Error("error saving extracted fact", "chat_id", chatId, "kind", fact.Kind, "error", err)
		}
	}
	return nil
}

func (s *ChatService) Chat(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Message == "" && req.ImageURL == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "empty message")
	}

	chatId, prompt, err := s.prepareTurn(r, req)
	if err != nil {
		return nil, err
	}

	reply, err := s.gateway.Generate(r.Context(), prompt)
	if err != nil {
		// The conversation must keep going: backend failures become an
		// explanatory assistant turn, not a hard error.
		slog.Error("model backend failure", "chat_id", chatId, "error", err)
		reply = degradedReply(err)
	}

	if err := s.finishTurn(r.Context(), chatId, req.Message, reply); err != nil {
		return nil, err
	}

	return api.ChatResponse{ChatId: chatId, Reply: reply}, nil
}

func (s *ChatService) Stream(r *http.Request) (EventStream, error) {
	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Message == "" && req.ImageURL == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "empty message")
	}

	chatId, prompt, err := s.prepareTurn(r, req)
	if err != nil {
		return nil, err
	}

	return func(yield func(frame api.StreamFrame) bool) {
		disconnected := false
		reply, genErr := s.gateway.GenerateStream(r.Context(), prompt, func(delta string) error {
			if !yield(api.StreamFrame{Delta: delta}) {
				disconnected = true
				return errors.New("client disconnected")
			}
			return nil
		})

		if genErr != nil && reply == "" && !disconnected {
			slog.Error("model backend failure", "chat_id", chatId, "error", genErr)
			reply = degradedReply(genErr)
			yield(api.StreamFrame{Delta: reply})
		}

		// Whatever accumulated up to a disconnect or failure is still the
		// assistant's turn; persist it detached from the request context.
		if reply != "" {
			ctx := context.WithoutCancel(r.Context())
			if err := s.finishTurn(ctx, chatId, req.Message, reply); err != nil {
				slog.Error("error persisting streamed reply", "chat_id", chatId, "error", err)
				return
			}
		}

		yield(api.StreamFrame{Done: true})
	}, nil
}

func degradedReply(err error) string {
	if errors.Is(err, gateway.ErrUnavailable) {
		return "The assistant is temporarily unavailable. Please try again in a moment."
	}
	return fmt.Sprintf("AI service error: %v", err)
}

func (s *ChatService) GetChats(r *http.Request) (any, error) {
	userId := UserId(r)

	chats, err := s.store.ListChats(r.Context(), userId)
	if err != nil {
		return nil, storeError(err)
	}

	resp := api.GetChatsResponse{Chats: make([]api.ChatSummary, 0, len(chats))}
	for _, c := range chats {
		resp.Chats = append(resp.Chats, api.ChatSummary{
			Id:      c.Id,
			Name:    c.Name,
			Created: c.Created,
			Updated: c.Updated,
		})
	}

	if active, ok, err := s.router.Active(r.Context(), userId); err == nil && ok {
		resp.ActiveChatId = &active
	}
	return resp, nil
}

func (s *ChatService) NewChat(r *http.Request) (any, error) {
	req, err := ParseRequest[api.NewChatRequest](r)
	if err != nil {
		return nil, err
	}

	userId := UserId(r)
	created, err := s.store.CreateChat(r.Context(), userId, req.Name)
	if err != nil {
		return nil, storeError(err)
	}
	if err := s.router.Activate(r.Context(), userId, created.Id); err != nil {
		return nil, storeError(err)
	}

	return api.NewChatResponse{ChatId: created.Id, Name: created.Name}, nil
}

func (s *ChatService) ActivateChat(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}
	if err := s.router.Activate(r.Context(), UserId(r), chatId); err != nil {
		return nil, storeError(err)
	}
	return nil, nil
}

func (s *ChatService) AppendMessage(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.AppendMessageRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Role == "" || req.Content == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "role and content required")
	}

	if err := s.store.ValidateOwnership(r.Context(), chatId, UserId(r)); err != nil {
		return nil, storeError(err)
	}

	messageId, err := s.store.AppendMessage(r.Context(), chatId, req.Role, req.Content, req.ImageURL)
	if err != nil {
		return nil, storeError(err)
	}
	return api.AppendMessageResponse{MessageId: messageId}, nil
}

type historyQuery struct {
	Limit int `schema:"limit"`
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}
	query, err := ParseRequestQueryParams[historyQuery](r)
	if err != nil {
		return nil, err
	}

	if err := s.store.ValidateOwnership(r.Context(), chatId, UserId(r)); err != nil {
		return nil, storeError(err)
	}

	history, err := s.store.GetHistory(r.Context(), chatId)
	if err != nil {
		return nil, storeError(err)
	}
	if query.Limit > 0 && len(history) > query.Limit {
		history = history[len(history)-query.Limit:]
	}

	resp := api.GetHistoryResponse{ChatId: chatId, History: make([]api.HistoryItem, 0, len(history))}
	for _, msg := range history {
		resp.History = append(resp.History, api.HistoryItem{
			Id:        msg.Id,
			Role:      msg.Role,
			Content:   msg.Content,
			ImageURL:  msg.ImageURL.String,
			Timestamp: msg.Timestamp,
		})
	}
	return resp, nil
}

func (s *ChatService) RenameChat(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.RenameChatRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "name required")
	}

	if err := s.store.RenameChat(r.Context(), chatId, UserId(r), req.Name); err != nil {
		return nil, storeError(err)
	}
	return nil, nil
}

func (s *ChatService) DeleteChat(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteChat(r.Context(), chatId, UserId(r)); err != nil {
		return nil, storeError(err)
	}

	// The relational rows cascade with the chat; a flat-file memory tier
	// needs the explicit wipe.
	if err := s.memory.Clear(r.Context(), chatId); err != nil {
		slog.Error("error wiping memory for deleted chat", "chat_id", chatId, "error", err)
	}
	return nil, nil
}

func (s *ChatService) ClearHistory(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	// Clears messages only; memory survives unless wiped explicitly via the
	// memory endpoints.
	if err := s.store.ClearMessages(r.Context(), chatId, UserId(r)); err != nil {
		return nil, storeError(err)
	}
	return nil, nil
}

func (s *ChatService) GenerateTitle(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	if err := s.store.ValidateOwnership(r.Context(), chatId, UserId(r)); err != nil {
		return nil, storeError(err)
	}

	history, err := s.store.GetHistory(r.Context(), chatId)
	if err != nil {
		return nil, storeError(err)
	}
	if len(history) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "no messages to generate title from")
	}

	title, err := s.gateway.SummarizeTitle(r.Context(), turnsOf(history))
	if err != nil {
		slog.Error("error generating title", "chat_id", chatId, "error", err)
		return nil, CodedErrorf(http.StatusBadGateway, "could not generate title")
	}

	if err := s.store.RenameChat(r.Context(), chatId, UserId(r), title); err != nil {
		return nil, storeError(err)
	}
	return api.GenerateTitleResponse{Title: title}, nil
}

func turnsOf(history []database.Message) []core.Turn {
	turns := make([]core.Turn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, core.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
