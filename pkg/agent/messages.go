package agent

import (
	"bytes"
	"encoding/json"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/model"
)

// Roles a client may send.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one client-supplied conversation turn. Content is either a
// JSON string or a structured payload and is forwarded unchanged.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ValidateMessages rejects histories the upstream API cannot accept. It runs
// before any stream is opened so failures can still be plain HTTP errors.
func ValidateMessages(messages []ChatMessage) error {
	if len(messages) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "messages must not be empty")
	}
	for i, m := range messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			return errors.New(errors.ErrCodeInvalidInput, "unsupported message role").
				WithContext("index", i).
				WithContext("role", m.Role).
				WithUserMessage("unsupported message role: " + m.Role)
		}
		content := bytes.TrimSpace(m.Content)
		if len(content) == 0 || bytes.Equal(content, []byte("null")) {
			return errors.New(errors.ErrCodeInvalidInput, "message content is required").
				WithContext("index", i)
		}
	}
	return nil
}

// toModelMessages maps client turns onto the upstream shape. Tool output is
// carried in user turns there.
func toModelMessages(messages []ChatMessage) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == RoleTool {
			role = RoleUser
		}
		out = append(out, model.Message{Role: role, Content: m.Content})
	}
	return out
}
