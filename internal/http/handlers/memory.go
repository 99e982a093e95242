package handlers

import (
	"context"

	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/memory"
)

// MemoryStore records and recalls conversational memory for travellers.
type MemoryStore interface {
	Add(ctx context.Context, userID string, messages []memory.Message, metadata map[string]any) ([]memory.Item, error)
	Search(ctx context.Context, userID, query string, limit int) ([]memory.Item, error)
	All(ctx context.Context, userID string) ([]memory.Item, error)
	Delete(ctx context.Context, memoryID string) error
}

// MemoryHandler handles conversational memory endpoints.
type MemoryHandler struct {
	store MemoryStore
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(store MemoryStore) *MemoryHandler {
	return &MemoryHandler{store: store}
}

// MemoryMessageInput is one conversation turn submitted for extraction.
type MemoryMessageInput struct {
	Role    string `json:"role" enum:"user,assistant" doc:"Who produced the turn"`
	Content string `json:"content" minLength:"1" doc:"Turn text"`
}

// AddMemoryInput represents a memory add request.
type AddMemoryInput struct {
	Body struct {
		UserID   string               `json:"user_id" minLength:"1" doc:"Tenant key owning the memories"`
		Messages []MemoryMessageInput `json:"messages" minItems:"1" doc:"Conversation turns to extract memories from"`
		Metadata map[string]any       `json:"metadata,omitempty" doc:"Attached to every extracted memory"`
	}
}

// AddMemoryOutput represents a memory add response.
type AddMemoryOutput struct {
	Body MemoryListResponseBody
}

// MemoryListResponseBody carries memory items plus their count.
type MemoryListResponseBody struct {
	Results []memory.Item `json:"results"`
	Count   int           `json:"count"`
}

// AddMemory submits conversation turns to the memory provider, which
// extracts and stores durable facts about the traveller.
func (h *MemoryHandler) AddMemory(ctx context.Context, input *AddMemoryInput) (*AddMemoryOutput, error) {
	if h.store == nil {
		return nil, errServiceUnavailable("memory")
	}

	messages := make([]memory.Message, len(input.Body.Messages))
	for i, m := range input.Body.Messages {
		messages[i] = memory.Message{Role: m.Role, Content: m.Content}
	}

	items, err := h.store.Add(ctx, input.Body.UserID, messages, input.Body.Metadata)
	if err != nil {
		return nil, NewAPIError(err)
	}
	if items == nil {
		items = []memory.Item{}
	}

	return &AddMemoryOutput{Body: MemoryListResponseBody{Results: items, Count: len(items)}}, nil
}

// SearchMemoryInput represents a memory search request.
type SearchMemoryInput struct {
	Body struct {
		UserID string `json:"user_id" minLength:"1" doc:"Tenant key owning the memories"`
		Query  string `json:"query" minLength:"1" doc:"What to recall"`
		Limit  int    `json:"limit,omitempty" minimum:"1" maximum:"100" default:"10" doc:"Maximum memories to return"`
	}
}

// SearchMemoryOutput represents a memory search response.
type SearchMemoryOutput struct {
	Body MemoryListResponseBody
}

// SearchMemory recalls memories relevant to the query, best match first.
func (h *MemoryHandler) SearchMemory(ctx context.Context, input *SearchMemoryInput) (*SearchMemoryOutput, error) {
	if h.store == nil {
		return nil, errServiceUnavailable("memory")
	}

	limit := input.Body.Limit
	if limit == 0 {
		limit = constants.DefaultListLimit
	}

	items, err := h.store.Search(ctx, input.Body.UserID, input.Body.Query, limit)
	if err != nil {
		return nil, NewAPIError(err)
	}
	if items == nil {
		items = []memory.Item{}
	}

	return &SearchMemoryOutput{Body: MemoryListResponseBody{Results: items, Count: len(items)}}, nil
}

// ListMemoriesInput represents a request for every memory of one user.
type ListMemoriesInput struct {
	UserID string `path:"user_id" doc:"Tenant key owning the memories"`
}

// ListMemoriesOutput represents the full memory listing.
type ListMemoriesOutput struct {
	Body MemoryListResponseBody
}

// ListMemories returns every stored memory for the user.
func (h *MemoryHandler) ListMemories(ctx context.Context, input *ListMemoriesInput) (*ListMemoriesOutput, error) {
	if h.store == nil {
		return nil, errServiceUnavailable("memory")
	}

	items, err := h.store.All(ctx, input.UserID)
	if err != nil {
		return nil, NewAPIError(err)
	}
	if items == nil {
		items = []memory.Item{}
	}

	return &ListMemoriesOutput{Body: MemoryListResponseBody{Results: items, Count: len(items)}}, nil
}

// DeleteMemoryInput represents a memory delete request.
type DeleteMemoryInput struct {
	MemoryID string `path:"memory_id" doc:"ID of the memory to remove"`
}

// DeleteMemoryOutput represents a memory delete response.
type DeleteMemoryOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// DeleteMemory removes a single memory by ID.
func (h *MemoryHandler) DeleteMemory(ctx context.Context, input *DeleteMemoryInput) (*DeleteMemoryOutput, error) {
	if h.store == nil {
		return nil, errServiceUnavailable("memory")
	}

	if err := h.store.Delete(ctx, input.MemoryID); err != nil {
		return nil, NewAPIError(err)
	}

	out := &DeleteMemoryOutput{}
	out.Body.Status = "deleted"
	return out, nil
}
