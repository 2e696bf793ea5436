package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChatRequest struct {
	Message  string `json:"message"`
	ImageURL string `json:"image_url,omitempty"`
}

type ChatResponse struct {
	ChatId uuid.UUID `json:"chat_id"`
	Reply  string    `json:"reply"`
}

// StreamFrame is one server-sent event of the /stream endpoint.
type StreamFrame struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

type ChatSummary struct {
	Id      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

type GetChatsResponse struct {
	Chats        []ChatSummary `json:"chats"`
	ActiveChatId *uuid.UUID    `json:"active_chat_id,omitempty"`
}

type NewChatRequest struct {
	Name string `json:"name,omitempty"`
}

type NewChatResponse struct {
	ChatId uuid.UUID `json:"chat_id"`
	Name   string    `json:"name"`
}

type AppendMessageRequest struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

type AppendMessageResponse struct {
	MessageId uint `json:"message_id"`
}

type HistoryItem struct {
	Id        uint      `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type GetHistoryResponse struct {
	ChatId  uuid.UUID     `json:"chat_id"`
	History []HistoryItem `json:"history"`
}

type RenameChatRequest struct {
	Name string `json:"name"`
}

type GenerateTitleResponse struct {
	Title string `json:"title"`
}

type MemoryResponse struct {
	ChatId uuid.UUID                  `json:"chat_id"`
	Memory map[string]json.RawMessage `json:"memory"`
}

type UpdateMemoryRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type FetchAPIRequest struct {
	URL string `json:"url"`
}

type FetchAPIResponse struct {
	Key string `json:"key"`
}
