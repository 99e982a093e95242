package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wandersure/wandersure-api/internal/constants"
	"github.com/wandersure/wandersure-api/internal/memory"
)

type memoryMessage struct {
	Role    string `json:"role" jsonschema:"message author, user or assistant"`
	Content string `json:"content" jsonschema:"message text"`
}

type memoryAddArgs struct {
	UserID   string         `json:"user_id" jsonschema:"tenant key owning the memories"`
	Messages []memoryMessage `json:"messages" jsonschema:"conversation turns to distil into memories"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"optional metadata stored with the extracted memories"`
}

type memorySearchArgs struct {
	UserID string `json:"user_id" jsonschema:"tenant key owning the memories"`
	Query  string `json:"query" jsonschema:"what to look for in the user's memories"`
	Limit  *int   `json:"limit,omitempty" jsonschema:"maximum results, defaults to 10"`
}

type memoryGetAllArgs struct {
	UserID string `json:"user_id" jsonschema:"tenant key owning the memories"`
}

type memoryDeleteArgs struct {
	MemoryID string `json:"memory_id" jsonschema:"ID of the memory to remove"`
}

type memoryListResult struct {
	Results []memory.Item `json:"results"`
	Count   int           `json:"count"`
}

type memoryDeleteResult struct {
	Status string `json:"status"`
}

func (s *Server) registerMemoryTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "memory_add",
		Description: "Store conversation turns in the user's long-term memory. The memory provider extracts durable facts from the messages.",
	}, s.memoryAdd)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "memory_search",
		Description: "Search the user's memories by relevance to a query.",
	}, s.memorySearch)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "memory_get_all",
		Description: "List everything remembered about a user.",
	}, s.memoryGetAll)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "memory_delete",
		Description: "Delete a single memory by its ID.",
	}, s.memoryDelete)
}

func (s *Server) memoryAdd(ctx context.Context, req *mcpsdk.CallToolRequest, args memoryAddArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Memory == nil {
		return notConfigured("memory"), nil, nil
	}

	messages := make([]memory.Message, 0, len(args.Messages))
	for _, m := range args.Messages {
		messages = append(messages, memory.Message{Role: m.Role, Content: m.Content})
	}

	items, err := s.deps.Memory.Add(ctx, args.UserID, messages, args.Metadata)
	if err != nil {
		return toolError(err), nil, nil
	}
	if items == nil {
		items = []memory.Item{}
	}

	return jsonResult(memoryListResult{Results: items, Count: len(items)}), nil, nil
}

func (s *Server) memorySearch(ctx context.Context, req *mcpsdk.CallToolRequest, args memorySearchArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Memory == nil {
		return notConfigured("memory"), nil, nil
	}

	limit := constants.DefaultListLimit
	if args.Limit != nil {
		limit = *args.Limit
	}

	items, err := s.deps.Memory.Search(ctx, args.UserID, args.Query, limit)
	if err != nil {
		return toolError(err), nil, nil
	}
	if items == nil {
		items = []memory.Item{}
	}

	return jsonResult(memoryListResult{Results: items, Count: len(items)}), nil, nil
}

func (s *Server) memoryGetAll(ctx context.Context, req *mcpsdk.CallToolRequest, args memoryGetAllArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Memory == nil {
		return notConfigured("memory"), nil, nil
	}

	items, err := s.deps.Memory.All(ctx, args.UserID)
	if err != nil {
		return toolError(err), nil, nil
	}
	if items == nil {
		items = []memory.Item{}
	}

	return jsonResult(memoryListResult{Results: items, Count: len(items)}), nil, nil
}

func (s *Server) memoryDelete(ctx context.Context, req *mcpsdk.CallToolRequest, args memoryDeleteArgs) (*mcpsdk.CallToolResult, any, error) {
	if s.deps.Memory == nil {
		return notConfigured("memory"), nil, nil
	}

	if err := s.deps.Memory.Delete(ctx, args.MemoryID); err != nil {
		return toolError(err), nil, nil
	}

	return jsonResult(memoryDeleteResult{Status: "deleted"}), nil, nil
}
