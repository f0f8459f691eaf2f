package repository_test

import (
	"errors"
	"fmt"
	"testing"

	"papercompanion/internal/model"
	"papercompanion/internal/repository"
	"papercompanion/internal/storage"
)

func TestSessionCreateRequiresPaper(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)

	_, err := repo.Create(42, "", "model")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing paper, got %v", err)
	}
}

func TestSessionExplicitAndGeneratedIDs(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-ids")

	explicit, err := repo.Create(paper.ID, "my-session", "model")
	if err != nil {
		t.Fatalf("create with explicit id failed: %v", err)
	}
	if explicit.ID != "my-session" {
		t.Fatalf("expected explicit id, got %q", explicit.ID)
	}

	generated, err := repo.Create(paper.ID, "", "model")
	if err != nil {
		t.Fatalf("create with generated id failed: %v", err)
	}
	if generated.ID == "" {
		t.Fatal("expected generated session id")
	}

	_, err = repo.Create(paper.ID, "my-session", "model")
	if !errors.Is(err, storage.ErrConstraint) {
		t.Fatalf("expected ErrConstraint on duplicate session id, got %v", err)
	}
}

func TestTotalExchangesTracksPairs(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-exchanges")
	session := createTestSession(t, db, paper.ID)

	addTestMessage(t, repo, session.ID, model.RoleUser, "q1")
	got, _ := repo.GetByID(session.ID)
	if got.TotalExchanges != 0 {
		t.Fatalf("expected 0 exchanges after lone user message, got %d", got.TotalExchanges)
	}

	addTestMessage(t, repo, session.ID, model.RoleAssistant, "a1")
	got, _ = repo.GetByID(session.ID)
	if got.TotalExchanges != 1 {
		t.Fatalf("expected 1 exchange, got %d", got.TotalExchanges)
	}

	// Summary messages never count toward exchanges.
	if _, err := repo.AddMessage(repository.AddMessageInput{
		SessionID: session.ID,
		Role:      model.RoleAssistant,
		Content:   "summary of conversation so far",
		IsSummary: true,
	}); err != nil {
		t.Fatalf("add summary failed: %v", err)
	}
	got, _ = repo.GetByID(session.ID)
	if got.TotalExchanges != 1 {
		t.Fatalf("expected summary to be excluded, got %d exchanges", got.TotalExchanges)
	}

	addTestMessage(t, repo, session.ID, model.RoleUser, "q2")
	addTestMessage(t, repo, session.ID, model.RoleAssistant, "a2")
	got, _ = repo.GetByID(session.ID)
	if got.TotalExchanges != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got.TotalExchanges)
	}
}

func TestAddMessageRejectsInvalidRole(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-role")
	session := createTestSession(t, db, paper.ID)

	_, err := repo.AddMessage(repository.AddMessageInput{
		SessionID: session.ID,
		Role:      "narrator",
		Content:   "nope",
	})
	if err == nil {
		t.Fatal("expected invalid role to fail")
	}
}

func TestUpdateStatusStampsEndedAt(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-status")
	session := createTestSession(t, db, paper.ID)

	if err := repo.Complete(session.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	got, _ := repo.GetByID(session.ID)
	if got.Status != model.SessionStatusCompleted {
		t.Fatalf("expected completed status, got %q", got.Status)
	}
	if got.EndedAt == nil {
		t.Fatal("expected ended_at to be stamped on completion")
	}

	// Reactivating keeps the last end stamp around.
	if err := repo.UpdateStatus(session.ID, model.SessionStatusActive); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	got, _ = repo.GetByID(session.ID)
	if got.Status != model.SessionStatusActive {
		t.Fatalf("expected active status, got %q", got.Status)
	}
	if got.EndedAt == nil {
		t.Fatal("expected ended_at preserved on reactivation")
	}
}

func TestGetRecentMessagesChronological(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-recent")
	session := createTestSession(t, db, paper.ID)

	for i := 0; i < 4; i++ {
		addTestMessage(t, repo, session.ID, model.RoleUser, fmt.Sprintf("q%d", i))
		addTestMessage(t, repo, session.ID, model.RoleAssistant, fmt.Sprintf("a%d", i))
	}

	recent, err := repo.GetRecentMessages(session.ID, 4)
	if err != nil {
		t.Fatalf("recent messages failed: %v", err)
	}
	if len(recent) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(recent))
	}
	if recent[0].Content != "q2" || recent[3].Content != "a3" {
		t.Fatalf("expected newest window in chronological order, got %q..%q",
			recent[0].Content, recent[3].Content)
	}
}

func TestAddFlagValidatesMembership(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-flags")
	session := createTestSession(t, db, paper.ID)
	other := createTestSession(t, db, paper.ID)

	userMsg := addTestMessage(t, repo, session.ID, model.RoleUser, "q")
	assistantMsg := addTestMessage(t, repo, session.ID, model.RoleAssistant, "a")
	foreignUser := addTestMessage(t, repo, other.ID, model.RoleUser, "other q")

	// Wrong session membership: nothing must be written.
	_, err := repo.AddFlag(session.ID, foreignUser.ID, assistantMsg.ID, "")
	if !errors.Is(err, storage.ErrReferential) {
		t.Fatalf("expected ErrReferential, got %v", err)
	}
	flags, err := repo.GetFlags(session.ID)
	if err != nil {
		t.Fatalf("get flags failed: %v", err)
	}
	if len(flags) != 0 {
		t.Fatalf("expected no flags after failed add, got %d", len(flags))
	}

	// Role mismatch also fails referentially.
	_, err = repo.AddFlag(session.ID, assistantMsg.ID, userMsg.ID, "")
	if !errors.Is(err, storage.ErrReferential) {
		t.Fatalf("expected ErrReferential for swapped roles, got %v", err)
	}

	flag, err := repo.AddFlag(session.ID, userMsg.ID, assistantMsg.ID, "first note")
	if err != nil {
		t.Fatalf("add flag failed: %v", err)
	}
	if flag.Note != "first note" {
		t.Fatalf("unexpected note %q", flag.Note)
	}

	// Re-flagging the same pair updates the note in place.
	updated, err := repo.AddFlag(session.ID, userMsg.ID, assistantMsg.ID, "second note")
	if err != nil {
		t.Fatalf("re-flag failed: %v", err)
	}
	if updated.ID != flag.ID || updated.Note != "second note" {
		t.Fatalf("expected in-place note update, got %+v", updated)
	}

	flags, err = repo.GetFlags(session.ID)
	if err != nil {
		t.Fatalf("get flags failed: %v", err)
	}
	if len(flags) != 1 {
		t.Fatalf("expected exactly one flag, got %d", len(flags))
	}
	if flags[0].UserContent != "q" || flags[0].AssistantContent != "a" {
		t.Fatalf("unexpected flagged exchange content: %+v", flags[0])
	}
}

func TestInsightsGrouped(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-insights")
	session := createTestSession(t, db, paper.ID)

	count, err := repo.AddInsightsBulk(session.ID, map[string][]string{
		"methodology":  {"uses ablation studies", "small sample size"},
		"key_findings": {"outperforms baseline by 3%"},
	}, false)
	if err != nil {
		t.Fatalf("bulk insert failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 inserted insights, got %d", count)
	}

	grouped, err := repo.GetInsightsGrouped(session.ID)
	if err != nil {
		t.Fatalf("grouped insights failed: %v", err)
	}
	if len(grouped["methodology"]) != 2 || len(grouped["key_findings"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", grouped)
	}
}

func TestSessionStats(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-stats")
	session := createTestSession(t, db, paper.ID)

	userMsg := addTestMessage(t, repo, session.ID, model.RoleUser, "q")
	assistantMsg := addTestMessage(t, repo, session.ID, model.RoleAssistant, "a")
	if _, err := repo.AddFlag(session.ID, userMsg.ID, assistantMsg.ID, "note"); err != nil {
		t.Fatalf("add flag failed: %v", err)
	}
	if _, err := repo.AddInsight(session.ID, "methodology", "content", true); err != nil {
		t.Fatalf("add insight failed: %v", err)
	}

	stats, err := repo.Stats(session.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	// The session header fields and every aggregate must survive
	// together; no query may clobber another's results.
	if stats.SessionID != session.ID || stats.PaperID != paper.ID || stats.Status != model.SessionStatusActive {
		t.Fatalf("session fields lost in stats: %+v", stats)
	}
	if stats.StartedAt.IsZero() {
		t.Fatalf("expected started_at preserved, got %+v", stats)
	}
	if stats.TotalMessages != 2 || stats.UserMessages != 1 || stats.AssistantMessages != 1 || stats.SummaryMessages != 0 {
		t.Fatalf("unexpected message counts: %+v", stats)
	}
	if stats.Exchanges != 1 || stats.Flags != 1 || stats.Insights != 1 || stats.InsightCategories != 1 {
		t.Fatalf("unexpected aggregate counts: %+v", stats)
	}
}

func TestPaperDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	paperRepo := repository.NewPaperRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	paper := createTestPaper(t, db, "hash-cascade")
	session := createTestSession(t, db, paper.ID)

	userMsg := addTestMessage(t, sessionRepo, session.ID, model.RoleUser, "q")
	assistantMsg := addTestMessage(t, sessionRepo, session.ID, model.RoleAssistant, "a")
	if _, err := sessionRepo.AddFlag(session.ID, userMsg.ID, assistantMsg.ID, ""); err != nil {
		t.Fatalf("add flag failed: %v", err)
	}
	if _, err := sessionRepo.AddInsight(session.ID, "methodology", "content", false); err != nil {
		t.Fatalf("add insight failed: %v", err)
	}

	if err := paperRepo.Delete(paper.ID); err != nil {
		t.Fatalf("delete paper failed: %v", err)
	}

	for _, table := range []string{"sessions", "messages", "flags", "insights"} {
		var count int64
		if err := db.Raw("SELECT COUNT(*) FROM " + table).Scan(&count).Error; err != nil {
			t.Fatalf("count %s failed: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be empty after cascade, found %d rows", table, count)
		}
	}
}
