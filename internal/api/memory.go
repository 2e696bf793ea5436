package api

import (
	"encoding/json"
	"net/http"
	"time"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/memory"
	"assistant-backend/pkg/api"

	"github.com/go-chi/chi/v5"
)

type MemoryService struct {
	router  *chat.SessionRouter
	memory  *memory.Store
	fetcher *memory.Fetcher
}

func NewMemoryService(router *chat.SessionRouter, mem *memory.Store, fetcher *memory.Fetcher) *MemoryService {
	return &MemoryService{router: router, memory: mem, fetcher: fetcher}
}

func (s *MemoryService) AddRoutes(r chi.Router) {
	r.Route("/memory", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetMemory))
		r.Post("/", RestHandler(s.UpdateMemory))
		r.Post("/clear", RestHandler(s.ClearMemory))
		r.Post("/fetch", RestHandler(s.FetchAPI))
		r.Post("/file", RestHandler(s.AddFile))
	})
}

// GetMemory dumps the active chat's merged memory map. A caller with no
// active chat gets an empty map, not an error.
func (s *MemoryService) GetMemory(r *http.Request) (any, error) {
	chatId, ok, err := s.router.Active(r.Context(), UserId(r))
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return api.MemoryResponse{Memory: map[string]json.RawMessage{}}, nil
	}

	values, err := s.memory.GetAll(r.Context(), chatId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return api.MemoryResponse{ChatId: chatId, Memory: values}, nil
}

func (s *MemoryService) UpdateMemory(r *http.Request) (any, error) {
	req, err := ParseRequest[api.UpdateMemoryRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Key == "" || !json.Valid(req.Value) {
		return nil, CodedErrorf(http.StatusBadRequest, "key and a valid JSON value are required")
	}

	chatId, err := s.router.Resolve(r.Context(), UserId(r))
	if err != nil {
		return nil, storeError(err)
	}

	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid JSON value")
	}
	if err := s.memory.Update(r.Context(), chatId, req.Key, value); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}

// ClearMemory wipes the active chat's memory. It is deliberately separate
// from clearing chat history.
func (s *MemoryService) ClearMemory(r *http.Request) (any, error) {
	chatId, ok, err := s.router.Active(r.Context(), UserId(r))
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, nil
	}

	if err := s.memory.Clear(r.Context(), chatId); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}

func (s *MemoryService) FetchAPI(r *http.Request) (any, error) {
	req, err := ParseRequest[api.FetchAPIRequest](r)
	if err != nil {
		return nil, err
	}
	if req.URL == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "url required")
	}

	chatId, err := s.router.Resolve(r.Context(), UserId(r))
	if err != nil {
		return nil, storeError(err)
	}

	key, err := s.fetcher.FetchAPI(r.Context(), chatId, req.URL)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadGateway, "could not fetch %s: %v", req.URL, err)
	}
	return api.FetchAPIResponse{Key: key}, nil
}

type addFileRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AddFile records extracted file content in the active chat's memory. Upload
// transport and content extraction live outside the core; this endpoint
// receives the already-extracted text.
func (s *MemoryService) AddFile(r *http.Request) (any, error) {
	req, err := ParseRequest[addFileRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Name == "" || req.Content == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "name and content required")
	}

	chatId, err := s.router.Resolve(r.Context(), UserId(r))
	if err != nil {
		return nil, storeError(err)
	}

	record := memory.FileRecord{Type: req.Type, Content: req.Content, UploadedAt: time.Now().UTC()}
	if err := s.memory.AddFile(r.Context(), chatId, req.Name, record); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}
