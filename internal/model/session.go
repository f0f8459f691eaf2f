package model

import "time"

const (
	SessionStatusActive      = "active"
	SessionStatusCompleted   = "completed"
	SessionStatusInterrupted = "interrupted"
)

// Session is one resumable conversation over a Paper. TotalExchanges
// is derived: it always equals the number of non-summary
// user+assistant message pairs and is recomputed on every message
// insert, never trusted incrementally.
type Session struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	PaperID        uint       `gorm:"not null;index" json:"paper_id"`
	ModelUsed      string     `gorm:"size:128" json:"model_used"`
	Status         string     `gorm:"size:16;not null;default:active" json:"status"`
	TotalExchanges int        `gorm:"not null;default:0" json:"total_exchanges"`
	StartedAt      time.Time  `gorm:"autoCreateTime" json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

func (Session) TableName() string { return "sessions" }

func ValidSessionStatus(status string) bool {
	switch status {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusInterrupted:
		return true
	}
	return false
}
