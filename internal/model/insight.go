package model

import "time"

// Insight is one extracted finding. Insights are append-only within a
// session; FromFlag records whether it originated from a flagged
// exchange.
type Insight struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;not null;index" json:"session_id"`
	Category  string    `gorm:"size:64;not null;index" json:"category"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	FromFlag  bool      `gorm:"not null;default:false" json:"from_flag"`
	CreatedAt time.Time `json:"created_at"`
}

func (Insight) TableName() string { return "insights" }
