package model

import "time"

// Flag marks one (user, assistant) exchange of a session as important.
// Both message ids must belong to the same session as the flag. A
// session holds at most one flag per pair; re-flagging updates the
// note.
type Flag struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	SessionID          string    `gorm:"size:64;not null;index" json:"session_id"`
	UserMessageID      uint      `gorm:"not null" json:"user_message_id"`
	AssistantMessageID uint      `gorm:"not null" json:"assistant_message_id"`
	Note               string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func (Flag) TableName() string { return "flags" }

// FlaggedExchange is the joined read model returned by flag listing:
// the flag plus the contents of both referenced messages.
type FlaggedExchange struct {
	FlagID             uint      `json:"flag_id"`
	SessionID          string    `json:"session_id"`
	Note               string    `json:"note,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UserMessageID      uint      `json:"user_message_id"`
	UserContent        string    `json:"user_content"`
	AssistantMessageID uint      `json:"assistant_message_id"`
	AssistantContent   string    `json:"assistant_content"`
}
