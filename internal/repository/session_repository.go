package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"papercompanion/internal/model"
	"papercompanion/internal/storage"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create starts a session on a paper. An explicit session id allows
// deterministic identifiers for resumption flows; an empty id gets a
// generated timestamp id.
func (r *SessionRepository) Create(paperID uint, sessionID, modelUsed string) (*model.Session, error) {
	if sessionID == "" {
		sessionID = time.Now().UTC().Format(time.RFC3339Nano)
	}

	session := &model.Session{
		ID:        sessionID,
		PaperID:   paperID,
		ModelUsed: modelUsed,
		Status:    model.SessionStatusActive,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Paper{}).Where("id = ?", paperID).Count(&count).Error; err != nil {
			return fmt.Errorf("check paper failed: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("paper %d: %w", paperID, storage.ErrNotFound)
		}
		if err := tx.Create(session).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("session %q: %w", sessionID, storage.ErrConstraint)
			}
			return fmt.Errorf("create session failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) GetByID(sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %q: %w", sessionID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// ListForPaper returns sessions most recent first, optionally filtered
// by status.
func (r *SessionRepository) ListForPaper(paperID uint, status string, limit int) ([]model.Session, error) {
	q := r.db.Where("paper_id = ?", paperID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var sessions []model.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// UpdateStatus transitions the session. Completing or interrupting
// stamps the end time; reactivating does not clear it.
func (r *SessionRepository) UpdateStatus(sessionID, status string) error {
	if !model.ValidSessionStatus(status) {
		return fmt.Errorf("invalid session status %q", status)
	}

	updates := map[string]interface{}{"status": status}
	if status == model.SessionStatusCompleted || status == model.SessionStatusInterrupted {
		updates["ended_at"] = time.Now().UTC()
	}

	res := r.db.Model(&model.Session{}).Where("id = ?", sessionID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session status failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, storage.ErrNotFound)
	}
	return nil
}

func (r *SessionRepository) Complete(sessionID string) error {
	return r.UpdateStatus(sessionID, model.SessionStatusCompleted)
}

// Delete removes the session and, through cascades, its messages,
// flags and insights.
func (r *SessionRepository) Delete(sessionID string) error {
	res := r.db.Where("id = ?", sessionID).Delete(&model.Session{})
	if res.Error != nil {
		return fmt.Errorf("delete session failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, storage.ErrNotFound)
	}
	return nil
}

type AddMessageInput struct {
	SessionID  string
	Role       string
	Content    string
	TokensUsed *int
	IsSummary  bool
}

// AddMessage inserts the message and, for non-summary user/assistant
// messages, recomputes total_exchanges from scratch in the same
// transaction. The counter is never incremented blindly.
func (r *SessionRepository) AddMessage(input AddMessageInput) (*model.Message, error) {
	if !model.ValidMessageRole(input.Role) {
		return nil, fmt.Errorf("invalid message role %q", input.Role)
	}

	message := &model.Message{
		SessionID:  input.SessionID,
		Role:       input.Role,
		Content:    input.Content,
		TokensUsed: input.TokensUsed,
		IsSummary:  input.IsSummary,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := sessionExists(tx, input.SessionID); err != nil {
			return err
		}
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("create message failed: %w", err)
		}
		if input.IsSummary || (input.Role != model.RoleUser && input.Role != model.RoleAssistant) {
			return nil
		}
		err := tx.Exec(`
			UPDATE sessions
			SET total_exchanges = (
				SELECT COUNT(*) / 2
				FROM messages
				WHERE session_id = ?
				  AND role IN ('user', 'assistant')
				  AND is_summary = 0
			)
			WHERE id = ?`, input.SessionID, input.SessionID).Error
		if err != nil {
			return fmt.Errorf("recompute exchanges failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// GetMessages returns messages in chronological order, optionally
// excluding summaries, with limit/offset paging.
func (r *SessionRepository) GetMessages(sessionID string, includeSummaries bool, limit, offset int) ([]model.Message, error) {
	if err := sessionExists(r.db, sessionID); err != nil {
		return nil, err
	}

	q := r.db.Where("session_id = ?", sessionID)
	if !includeSummaries {
		q = q.Where("is_summary = 0")
	}
	q = q.Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var messages []model.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// GetRecentMessages fetches the newest count non-summary messages and
// returns them re-sorted ascending, so callers always see
// chronological order.
func (r *SessionRepository) GetRecentMessages(sessionID string, count int) ([]model.Message, error) {
	if err := sessionExists(r.db, sessionID); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 10
	}

	var messages []model.Message
	err := r.db.
		Where("session_id = ? AND is_summary = 0", sessionID).
		Order("created_at DESC, id DESC").
		Limit(count).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AddFlag marks a (user, assistant) exchange as important. Both
// message ids must belong to the session with the matching roles, or
// the whole operation fails with storage.ErrReferential and nothing is
// written. Flagging the same pair again updates the note in place.
func (r *SessionRepository) AddFlag(sessionID string, userMessageID, assistantMessageID uint, note string) (*model.Flag, error) {
	var flag model.Flag

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := sessionExists(tx, sessionID); err != nil {
			return err
		}

		var pair []model.Message
		err := tx.Where("id IN ? AND session_id = ?",
			[]uint{userMessageID, assistantMessageID}, sessionID).Find(&pair).Error
		if err != nil {
			return fmt.Errorf("load flagged messages failed: %w", err)
		}
		roles := make(map[uint]string, len(pair))
		for _, msg := range pair {
			roles[msg.ID] = msg.Role
		}
		if roles[userMessageID] != model.RoleUser || roles[assistantMessageID] != model.RoleAssistant {
			return fmt.Errorf("flag (%d, %d) in session %q: %w",
				userMessageID, assistantMessageID, sessionID, storage.ErrReferential)
		}

		err = tx.Exec(`
			INSERT INTO flags (session_id, user_message_id, assistant_message_id, note, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (session_id, user_message_id, assistant_message_id)
			DO UPDATE SET note = excluded.note`,
			sessionID, userMessageID, assistantMessageID, note, time.Now().UTC()).Error
		if err != nil {
			return fmt.Errorf("upsert flag failed: %w", err)
		}

		err = tx.Exec("UPDATE messages SET is_flagged = 1 WHERE id IN (?, ?)",
			userMessageID, assistantMessageID).Error
		if err != nil {
			return fmt.Errorf("mark messages flagged failed: %w", err)
		}

		return tx.
			Where("session_id = ? AND user_message_id = ? AND assistant_message_id = ?",
				sessionID, userMessageID, assistantMessageID).
			First(&flag).Error
	})
	if err != nil {
		return nil, err
	}
	return &flag, nil
}

// GetFlags returns flags joined with the contents of both referenced
// messages, oldest first.
func (r *SessionRepository) GetFlags(sessionID string) ([]model.FlaggedExchange, error) {
	if err := sessionExists(r.db, sessionID); err != nil {
		return nil, err
	}

	var flags []model.FlaggedExchange
	err := r.db.Raw(`
		SELECT
			f.id AS flag_id,
			f.session_id,
			COALESCE(f.note, '') AS note,
			f.created_at,
			m1.id AS user_message_id,
			m1.content AS user_content,
			m2.id AS assistant_message_id,
			m2.content AS assistant_content
		FROM flags f
		JOIN messages m1 ON f.user_message_id = m1.id
		JOIN messages m2 ON f.assistant_message_id = m2.id
		WHERE f.session_id = ?
		ORDER BY f.created_at ASC, f.id ASC`, sessionID).Scan(&flags).Error
	if err != nil {
		return nil, fmt.Errorf("list flags failed: %w", err)
	}
	return flags, nil
}

func (r *SessionRepository) AddInsight(sessionID, category, content string, fromFlag bool) (*model.Insight, error) {
	insight := &model.Insight{
		SessionID: sessionID,
		Category:  category,
		Content:   content,
		FromFlag:  fromFlag,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := sessionExists(tx, sessionID); err != nil {
			return err
		}
		if err := tx.Create(insight).Error; err != nil {
			return fmt.Errorf("create insight failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return insight, nil
}

// AddInsightsBulk inserts every insight from the category map in one
// transaction and returns the number inserted.
func (r *SessionRepository) AddInsightsBulk(sessionID string, byCategory map[string][]string, fromFlag bool) (int, error) {
	count := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := sessionExists(tx, sessionID); err != nil {
			return err
		}
		for category, contents := range byCategory {
			for _, content := range contents {
				insight := model.Insight{
					SessionID: sessionID,
					Category:  category,
					Content:   content,
					FromFlag:  fromFlag,
				}
				if err := tx.Create(&insight).Error; err != nil {
					return fmt.Errorf("create insight failed: %w", err)
				}
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetInsights returns insights, optionally filtered by category.
// Without a filter they come back grouped by category, oldest first
// within each.
func (r *SessionRepository) GetInsights(sessionID, category string) ([]model.Insight, error) {
	if err := sessionExists(r.db, sessionID); err != nil {
		return nil, err
	}

	q := r.db.Where("session_id = ?", sessionID)
	if category != "" {
		q = q.Where("category = ?", category).Order("created_at ASC, id ASC")
	} else {
		q = q.Order("category ASC, created_at ASC, id ASC")
	}

	var insights []model.Insight
	if err := q.Find(&insights).Error; err != nil {
		return nil, fmt.Errorf("list insights failed: %w", err)
	}
	return insights, nil
}

func (r *SessionRepository) GetInsightsGrouped(sessionID string) (map[string][]string, error) {
	insights, err := r.GetInsights(sessionID, "")
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]string)
	for _, insight := range insights {
		grouped[insight.Category] = append(grouped[insight.Category], insight.Content)
	}
	return grouped, nil
}

type SessionStats struct {
	SessionID         string     `json:"session_id"`
	PaperID           uint       `json:"paper_id"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	TotalMessages     int        `json:"total_messages"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	SummaryMessages   int        `json:"summary_messages"`
	Exchanges         int        `json:"exchanges"`
	Flags             int        `json:"flags"`
	Insights          int        `json:"insights"`
	InsightCategories int        `json:"insight_categories"`
}

func (r *SessionRepository) Stats(sessionID string) (*SessionStats, error) {
	session, err := r.GetByID(sessionID)
	if err != nil {
		return nil, err
	}

	// Each aggregate query scans into its own struct; gorm resets the
	// destination on Scan, so sharing one would wipe earlier fields.
	var messageCounts struct {
		TotalMessages     int
		UserMessages      int
		AssistantMessages int
		SummaryMessages   int
	}
	err = r.db.Raw(`
		SELECT
			COUNT(*) AS total_messages,
			COALESCE(SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END), 0) AS user_messages,
			COALESCE(SUM(CASE WHEN role = 'assistant' THEN 1 ELSE 0 END), 0) AS assistant_messages,
			COALESCE(SUM(CASE WHEN is_summary = 1 THEN 1 ELSE 0 END), 0) AS summary_messages
		FROM messages
		WHERE session_id = ?`, sessionID).Scan(&messageCounts).Error
	if err != nil {
		return nil, fmt.Errorf("message stats failed: %w", err)
	}

	var annotationCounts struct {
		Flags             int
		Insights          int
		InsightCategories int
	}
	err = r.db.Raw(`
		SELECT
			(SELECT COUNT(*) FROM flags WHERE session_id = ?) AS flags,
			(SELECT COUNT(*) FROM insights WHERE session_id = ?) AS insights,
			(SELECT COUNT(DISTINCT category) FROM insights WHERE session_id = ?) AS insight_categories`,
		sessionID, sessionID, sessionID).Scan(&annotationCounts).Error
	if err != nil {
		return nil, fmt.Errorf("flag/insight stats failed: %w", err)
	}

	return &SessionStats{
		SessionID:         session.ID,
		PaperID:           session.PaperID,
		Status:            session.Status,
		StartedAt:         session.StartedAt,
		EndedAt:           session.EndedAt,
		Exchanges:         session.TotalExchanges,
		TotalMessages:     messageCounts.TotalMessages,
		UserMessages:      messageCounts.UserMessages,
		AssistantMessages: messageCounts.AssistantMessages,
		SummaryMessages:   messageCounts.SummaryMessages,
		Flags:             annotationCounts.Flags,
		Insights:          annotationCounts.Insights,
		InsightCategories: annotationCounts.InsightCategories,
	}, nil
}

func sessionExists(tx *gorm.DB, sessionID string) error {
	var count int64
	if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("check session failed: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("session %q: %w", sessionID, storage.ErrNotFound)
	}
	return nil
}
