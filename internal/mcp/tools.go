package mcp

import "github.com/Aman-CERP/roomdex/internal/gateway"

// Tool names.
const (
	ToolSearchMessages = "search_messages"
	ToolListRooms      = "list_rooms"
)

// SearchMessagesInput defines the input schema for the search_messages tool.
type SearchMessagesInput struct {
	Index  string `json:"index" jsonschema:"name of the index to search, see list_rooms"`
	Query  string `json:"query,omitempty" jsonschema:"keywords to match; empty matches every message"`
	Before *int64 `json:"before,omitempty" jsonschema:"only return messages older than this millisecond timestamp"`
}

// SearchMessagesOutput is one page of matches, newest first.
type SearchMessagesOutput struct {
	Messages   []gateway.Message `json:"messages"`
	HasMore    bool              `json:"has_more"`
	NextBefore *int64            `json:"next_before,omitempty" jsonschema:"pass as before to fetch the next page"`
}

// ListRoomsInput defines the input schema for the list_rooms tool (no parameters).
type ListRoomsInput struct{}

// ListRoomsOutput lists the searchable indexes.
type ListRoomsOutput struct {
	Rooms []gateway.Group `json:"rooms"`
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearchMessages,
		Description: "Search archived chat messages in one index. Results are newest first; matched keywords are wrapped in <span class=\"keyword\"> tags. Use next_before to page back in time.",
	},
	{
		Name:        ToolListRooms,
		Description: "List the searchable indexes and the chat room each one archives.",
	},
}
