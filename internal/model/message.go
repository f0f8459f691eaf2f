package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message rows are immutable after insert except for the IsFlagged
// bit. Summary messages hold compacted history and are excluded from
// normal retrieval and exchange counting.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"size:64;not null;index" json:"session_id"`
	Role       string    `gorm:"size:16;not null" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	TokensUsed *int      `gorm:"column:tokens_used" json:"tokens_used,omitempty"`
	IsSummary  bool      `gorm:"not null;default:false" json:"is_summary"`
	IsFlagged  bool      `gorm:"not null;default:false;index" json:"is_flagged"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

func ValidMessageRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
