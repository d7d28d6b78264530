package ai

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	// Name is the tool name for RoleTool messages.
	Name string
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON object produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolParam struct {
	Name        string
	Type        string // "string" or "integer"
	Description string
	Required    bool
}

type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

type ChatRequest struct {
	Messages    []ChatMessage
	Tools       []ToolSpec
	Temperature float32
	// JSONMode asks the model for a single JSON object as its reply.
	JSONMode bool
}

type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

func (s ToolSpec) jsonSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		props[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
