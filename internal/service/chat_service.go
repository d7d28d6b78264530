package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/pkg/keylock"
)

const chatSystemPrompt = `You are a helpful research assistant specialized in clarifying and explaining academic papers.
You have access to a tool named retrieve_context that searches the paper loaded in this session.
ALWAYS call retrieve_context first to fetch the relevant parts of the paper before answering.
Base your answer on the retrieved content, explain technical ideas clearly and cite the sections you used.
If the retrieved content does not contain enough information to answer, say so plainly instead of guessing.`

type ChatConfig struct {
	RetrievalK    int
	MaxToolRounds int
	Temperature   float32
	Timeout       time.Duration
}

type ChatResult struct {
	Answer           string
	RetrievedContent string
}

type ChatService struct {
	model     ai.IChatModel
	retriever *Retriever
	window    *HistoryWindow
	history   IChatHistory
	locks     *keylock.KeyLock
	cfg       ChatConfig
}

func NewChatService(m ai.IChatModel, retriever *Retriever, window *HistoryWindow, history IChatHistory, locks *keylock.KeyLock, cfg ChatConfig) *ChatService {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 3
	}
	return &ChatService{model: m, retriever: retriever, window: window, history: history, locks: locks, cfg: cfg}
}

func (s *ChatService) Chat(ctx context.Context, sessionID, query string) (res *ChatResult, err error) {
	sessionID = strings.TrimSpace(sessionID)
	query = strings.TrimSpace(query)
	if sessionID == "" {
		return nil, appErr.Wrapf(appErr.ErrInvalid, "session_id is required")
	}
	if query == "" {
		return nil, appErr.Wrapf(appErr.ErrInvalid, "query is required")
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	defer func() {
		metrics.ChatTurns.WithLabelValues(metrics.Status(err)).Inc()
	}()
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))

	unlock := s.locks.Lock("chat:" + sessionID)
	defer unlock()

	summary, turns, err := s.window.Load(ctx, sessionID)
	if err != nil {
		logger.Error("load chat history failed", zap.Error(err))
		return nil, appErr.Wrap(appErr.ErrChat, err)
	}
	messages := buildMessages(summary, turns, query)
	tool := NewRetrievalTool(s.retriever, sessionID, s.cfg.RetrievalK)

	answer, err := s.runAgent(ctx, tool, messages)
	if err != nil {
		logger.Error("chat agent failed", zap.Error(err))
		return nil, err
	}

	now := time.Now().UnixMilli()
	if err := s.history.Append(ctx, sessionID,
		model.ChatTurn{SessionID: sessionID, Role: model.ChatRoleUser, Content: query, Ctime: now},
		model.ChatTurn{SessionID: sessionID, Role: model.ChatRoleAssistant, Content: answer, Ctime: now},
	); err != nil {
		logger.Error("append chat history failed", zap.Error(err))
		return nil, appErr.Wrap(appErr.ErrChat, err)
	}
	logger.Info("chat answered", zap.Int("history_turns", len(turns)), zap.Int("answer_len", len(answer)))
	return &ChatResult{Answer: answer, RetrievedContent: tool.LastResult()}, nil
}

func (s *ChatService) runAgent(ctx context.Context, tool *RetrievalTool, messages []ai.ChatMessage) (string, error) {
	spec := tool.Spec()
	for round := 0; round <= s.cfg.MaxToolRounds; round++ {
		req := &ai.ChatRequest{Messages: messages, Temperature: s.cfg.Temperature}
		// the last round forces a textual reply
		if round < s.cfg.MaxToolRounds {
			req.Tools = []ai.ToolSpec{spec}
		}
		resp, err := s.model.Chat(ctx, req)
		if err != nil {
			return "", appErr.Wrap(appErr.ErrChat, err)
		}
		if len(resp.ToolCalls) == 0 {
			answer := strings.TrimSpace(resp.Content)
			if answer == "" {
				return "", appErr.Wrapf(appErr.ErrChat, "model returned an empty answer")
			}
			return answer, nil
		}
		messages = append(messages, ai.ChatMessage{
			Role:      ai.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			output := "unknown tool: " + call.Name
			if call.Name == spec.Name {
				output, err = tool.Call(ctx, call.Arguments)
				if err != nil {
					return "", appErr.Wrap(appErr.ErrChat, err)
				}
			}
			messages = append(messages, ai.ChatMessage{
				Role:       ai.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}
	return "", appErr.Wrapf(appErr.ErrChat, "no answer after %d tool rounds", s.cfg.MaxToolRounds)
}

func buildMessages(summary string, turns []model.ChatTurn, query string) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(turns)+3)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: chatSystemPrompt})
	if summary != "" {
		messages = append(messages, ai.ChatMessage{
			Role:    ai.RoleSystem,
			Content: "Summary of the earlier conversation:\n" + summary,
		})
	}
	for _, t := range turns {
		role := ai.RoleUser
		if t.Role == model.ChatRoleAssistant {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: t.Content})
	}
	return append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: query})
}

// History returns the full stored transcript of a session.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, appErr.Wrapf(appErr.ErrInvalid, "session_id is required")
	}
	turns, err := s.history.ListAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []model.ChatTurn{}
	}
	return turns, nil
}
