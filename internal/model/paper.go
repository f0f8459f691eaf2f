package model

import "time"

// Paper is the content-hashed unit of work sessions attach to.
// PDFHash is the natural key: the same PDF ingested twice must resolve
// to the same row.
type Paper struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PDFHash   string    `gorm:"column:pdf_hash;size:64;not null;uniqueIndex" json:"pdf_hash"`
	PDFPath   string    `gorm:"column:pdf_path" json:"pdf_path,omitempty"`
	Title     string    `gorm:"size:512" json:"title,omitempty"`
	Authors   string    `gorm:"type:text" json:"authors,omitempty"` // JSON array of names
	DOI       string    `gorm:"column:doi;size:128" json:"doi,omitempty"`
	ArxivID   string    `gorm:"column:arxiv_id;size:64" json:"arxiv_id,omitempty"`
	ZoteroKey *string   `gorm:"column:zotero_key;size:64;uniqueIndex" json:"zotero_key,omitempty"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"` // free-form JSON blob
	FullText  string    `gorm:"column:full_text;type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Paper) TableName() string { return "papers" }
