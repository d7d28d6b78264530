package model

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatTurn struct {
	ID        int64    `json:"id"`
	SessionID string   `json:"session_id"`
	Role      ChatRole `json:"role"`
	Content   string   `json:"content"`
	Ctime     int64    `json:"ctime"`
}

// ChatSummary compacts every turn of a session with ID <= CoveredUntil.
type ChatSummary struct {
	SessionID    string `json:"session_id"`
	Summary      string `json:"summary"`
	CoveredUntil int64  `json:"covered_until"`
	Mtime        int64  `json:"mtime"`
}
