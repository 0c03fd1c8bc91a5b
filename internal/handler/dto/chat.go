// Package dto contains request/response types for the HTTP API.
package dto

import (
	"time"

	"github.com/tokenledger/tokenledger/internal/model"
)

// ErrorResponse is the shape of all error responses.
type ErrorResponse struct {
	Message string `json:"message"`
}

// SubmitPromptRequest is the request body for POST /api/chat.
type SubmitPromptRequest struct {
	Message string  `json:"message"`
	ChatID  *string `json:"chatId"`
}

// SubmitPromptResponse is the success body for POST /api/chat.
type SubmitPromptResponse struct {
	Content    string `json:"content"`
	MessageID  string `json:"messageId"`
	ChatID     string `json:"chatId"`
	TokensUsed int64  `json:"tokensUsed"`
}

// ChatSummaryResponse is one entry of GET /api/chats.
type ChatSummaryResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	TokensUsed   int64     `json:"tokensUsed"`
	MessageCount int64     `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChatListResponse is the success body for GET /api/chats.
type ChatListResponse struct {
	Chats []ChatSummaryResponse `json:"chats"`
}

// UsageStatsResponse is the success body for GET /api/user/stats.
type UsageStatsResponse struct {
	TokensUsed  int64  `json:"tokensUsed"`
	TokensLimit int64  `json:"tokensLimit"`
	PlanType    string `json:"planType"`
	ChatCount   int64  `json:"chatCount"`
}

// WebhookAckResponse is the success body for POST /api/billing/webhook.
type WebhookAckResponse struct {
	Received bool `json:"received"`
}

// ToChatSummaryResponse converts a domain chat summary to its API shape.
func ToChatSummaryResponse(s *model.ChatSummary) ChatSummaryResponse {
	return ChatSummaryResponse{
		ID:           s.ID,
		Title:        s.Title,
		TokensUsed:   s.TokensUsed,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// ToChatListResponse converts a list of domain summaries to the API shape.
func ToChatListResponse(summaries []*model.ChatSummary) ChatListResponse {
	out := make([]ChatSummaryResponse, len(summaries))
	for i, s := range summaries {
		out[i] = ToChatSummaryResponse(s)
	}
	return ChatListResponse{Chats: out}
}
