package app

import (
	"context"
	"strings"

	"papercompanion/internal/ai"
	"papercompanion/internal/cache"
	"papercompanion/internal/model"
	"papercompanion/internal/repository"
)

const (
	// How much paper text goes into the system prompt.
	paperTextPromptLimit = 12000
	defaultMaxContext    = 20
)

// QueryService answers questions about a paper inside a session: it
// builds the prompt from the paper text plus recent history, calls the
// LLM, and persists the resulting exchange.
type QueryService struct {
	papers   *repository.PaperRepository
	sessions *repository.SessionRepository
	history  *cache.RecentHistoryCache // optional, nil disables caching
	llm      *ai.OpenAICompatibleClient
	chatCfg  ai.ChatConfig
	maxCtx   int
}

func NewQueryService(
	papers *repository.PaperRepository,
	sessions *repository.SessionRepository,
	history *cache.RecentHistoryCache,
	llm *ai.OpenAICompatibleClient,
	chatCfg ai.ChatConfig,
	maxContext int,
) *QueryService {
	if maxContext <= 0 {
		maxContext = defaultMaxContext
	}
	return &QueryService{
		papers:   papers,
		sessions: sessions,
		history:  history,
		llm:      llm,
		chatCfg:  chatCfg,
		maxCtx:   maxContext,
	}
}

type QueryResult struct {
	UserMessage      *model.Message `json:"user_message"`
	AssistantMessage *model.Message `json:"assistant_message"`
	Usage            ai.Usage       `json:"usage"`
}

// Ask runs one exchange. The user message is persisted only after the
// LLM call succeeds, so an abandoned request leaves no half-exchange
// behind.
func (s *QueryService) Ask(ctx context.Context, sessionID, question string) (*QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrMessageEmpty
	}
	if s.chatCfg.BaseURL == "" || s.chatCfg.Model == "" {
		return nil, ErrLLMConfig
	}

	prompt, err := s.buildPrompt(ctx, sessionID, question)
	if err != nil {
		return nil, err
	}

	answer, usage, err := s.llm.Complete(ctx, s.chatCfg, prompt)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	return s.persistExchange(ctx, sessionID, question, answer, usage)
}

// AskStream is Ask with incremental delivery; chunks stream through
// onChunk and the full exchange is persisted at the end.
func (s *QueryService) AskStream(ctx context.Context, sessionID, question string, onChunk func(chunk string) error) (*QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrMessageEmpty
	}
	if s.chatCfg.BaseURL == "" || s.chatCfg.Model == "" {
		return nil, ErrLLMConfig
	}

	prompt, err := s.buildPrompt(ctx, sessionID, question)
	if err != nil {
		return nil, err
	}

	answer, err := s.llm.StreamComplete(ctx, s.chatCfg, prompt, onChunk)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	return s.persistExchange(ctx, sessionID, question, answer, ai.Usage{})
}

func (s *QueryService) buildPrompt(ctx context.Context, sessionID, question string) ([]ai.ChatMessage, error) {
	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	paper, err := s.papers.FindByID(session.PaperID)
	if err != nil {
		return nil, err
	}

	history, err := s.recentHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    model.RoleSystem,
		Content: systemPrompt(paper),
	})
	for _, msg := range history {
		if msg.Role == model.RoleSystem {
			continue
		}
		messages = append(messages, ai.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: model.RoleUser, Content: question})
	return messages, nil
}

// recentHistory reads from redis when available, falling back to the
// store and repopulating the cache on a miss.
func (s *QueryService) recentHistory(ctx context.Context, sessionID string) ([]model.Message, error) {
	if s.history != nil {
		cached, ok, err := s.history.GetHistory(ctx, sessionID)
		if err == nil && ok {
			return cached, nil
		}
	}

	messages, err := s.sessions.GetRecentMessages(sessionID, s.maxCtx)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		_ = s.history.SetHistory(ctx, sessionID, messages)
	}
	return messages, nil
}

func (s *QueryService) persistExchange(ctx context.Context, sessionID, question, answer string, usage ai.Usage) (*QueryResult, error) {
	userMsg, err := s.sessions.AddMessage(repository.AddMessageInput{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   question,
	})
	if err != nil {
		return nil, err
	}

	var tokens *int
	if usage.TotalTokens > 0 {
		t := usage.TotalTokens
		tokens = &t
	}
	assistantMsg, err := s.sessions.AddMessage(repository.AddMessageInput{
		SessionID:  sessionID,
		Role:       model.RoleAssistant,
		Content:    answer,
		TokensUsed: tokens,
	})
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		_ = s.history.DeleteHistory(ctx, sessionID)
	}

	return &QueryResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Usage:            usage,
	}, nil
}

func systemPrompt(paper *model.Paper) string {
	text := paper.FullText
	if len(text) > paperTextPromptLimit {
		text = text[:paperTextPromptLimit]
	}

	var b strings.Builder
	b.WriteString("You are helping a researcher read and critically appraise a paper.")
	if paper.Title != "" {
		b.WriteString("\nTitle: " + paper.Title)
	}
	if paper.Authors != "" {
		b.WriteString("\nAuthors: " + paper.Authors)
	}
	if text != "" {
		b.WriteString("\n\nPAPER TEXT (may be truncated):\n" + text)
	}
	return b.String()
}
