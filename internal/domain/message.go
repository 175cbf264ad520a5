// Package domain contains core domain types for the needle chat server.
package domain

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks a message typed by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the reply backend.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Metadata holds optional display information attached to a message.
type Metadata struct {
	Title *string `json:"title"`
}

// Message is one entry of a conversation. Messages are never edited after
// they are appended; their identity is their position in the log.
type Message struct {
	Role     Role     `json:"role"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// UserMessage builds a plain user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message without a title.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// HasTitle returns true if the message carries a non-empty title.
func (m Message) HasTitle() bool {
	return m.Metadata.Title != nil && *m.Metadata.Title != ""
}
