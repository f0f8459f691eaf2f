package repository_test

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"papercompanion/internal/migrate"
	"papercompanion/internal/model"
	"papercompanion/internal/platform/sqlite"
	"papercompanion/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := migrate.New(db, migrate.All()...).ApplyMigrations(0); err != nil {
		t.Fatalf("apply migrations failed: %v", err)
	}
	return db
}

func createTestPaper(t *testing.T, db *gorm.DB, hash string) *model.Paper {
	t.Helper()
	paper, err := repository.NewPaperRepository(db).Create(repository.CreatePaperInput{
		PDFHash: hash,
		Title:   "Attention Is All You Need",
	})
	if err != nil {
		t.Fatalf("create paper failed: %v", err)
	}
	return paper
}

func createTestSession(t *testing.T, db *gorm.DB, paperID uint) *model.Session {
	t.Helper()
	session, err := repository.NewSessionRepository(db).Create(paperID, "", "test-model")
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	return session
}

func addTestMessage(t *testing.T, repo *repository.SessionRepository, sessionID, role, content string) *model.Message {
	t.Helper()
	msg, err := repo.AddMessage(repository.AddMessageInput{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("add %s message failed: %v", role, err)
	}
	return msg
}
