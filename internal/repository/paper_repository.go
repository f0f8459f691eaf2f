package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"papercompanion/internal/model"
	"papercompanion/internal/storage"
)

type PaperRepository struct {
	db *gorm.DB
}

func NewPaperRepository(db *gorm.DB) *PaperRepository {
	return &PaperRepository{db: db}
}

type CreatePaperInput struct {
	PDFHash   string
	PDFPath   string
	Title     string
	Authors   string // JSON array
	DOI       string
	ArxivID   string
	ZoteroKey string
	Metadata  string // JSON blob
	FullText  string
}

// Create inserts a new paper. A duplicate content hash or zotero key
// fails with storage.ErrConstraint; callers should fetch the existing
// row instead.
func (r *PaperRepository) Create(input CreatePaperInput) (*model.Paper, error) {
	if input.PDFHash == "" {
		return nil, fmt.Errorf("pdf hash is required: %w", storage.ErrConstraint)
	}

	paper := &model.Paper{
		PDFHash:  input.PDFHash,
		PDFPath:  input.PDFPath,
		Title:    input.Title,
		Authors:  input.Authors,
		DOI:      input.DOI,
		ArxivID:  input.ArxivID,
		Metadata: input.Metadata,
		FullText: input.FullText,
	}
	if input.ZoteroKey != "" {
		key := input.ZoteroKey
		paper.ZoteroKey = &key
	}

	if err := r.db.Create(paper).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("paper with hash %q: %w", input.PDFHash, storage.ErrConstraint)
		}
		return nil, fmt.Errorf("create paper failed: %w", err)
	}
	return paper, nil
}

func (r *PaperRepository) FindByID(id uint) (*model.Paper, error) {
	return r.findOne("id = ?", id)
}

func (r *PaperRepository) FindByHash(pdfHash string) (*model.Paper, error) {
	return r.findOne("pdf_hash = ?", pdfHash)
}

func (r *PaperRepository) FindByZoteroKey(zoteroKey string) (*model.Paper, error) {
	return r.findOne("zotero_key = ?", zoteroKey)
}

func (r *PaperRepository) FindByDOI(doi string) (*model.Paper, error) {
	return r.findOne("doi = ?", doi)
}

func (r *PaperRepository) findOne(query string, arg interface{}) (*model.Paper, error) {
	var paper model.Paper
	if err := r.db.Where(query, arg).First(&paper).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("paper (%s %v): %w", query, arg, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get paper failed: %w", err)
	}
	return &paper, nil
}

// paperUpdateFields are the columns UpdateMetadata may touch.
var paperUpdateFields = map[string]bool{
	"pdf_path":   true,
	"title":      true,
	"authors":    true,
	"doi":        true,
	"arxiv_id":   true,
	"zotero_key": true,
	"metadata":   true,
	"full_text":  true,
}

// UpdateMetadata updates the whitelisted fields present in the map and
// stamps updated_at.
func (r *PaperRepository) UpdateMetadata(id uint, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for field, value := range fields {
		if paperUpdateFields[field] {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.Model(&model.Paper{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("update paper %d: %w", id, storage.ErrConstraint)
		}
		return fmt.Errorf("update paper failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("paper %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (r *PaperRepository) List(limit, offset int) ([]model.Paper, error) {
	q := r.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var papers []model.Paper
	if err := q.Find(&papers).Error; err != nil {
		return nil, fmt.Errorf("list papers failed: %w", err)
	}
	return papers, nil
}

// Search matches title, authors, DOI or arXiv id with a LIKE pattern.
func (r *PaperRepository) Search(query string, limit int) ([]model.Paper, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + query + "%"

	var papers []model.Paper
	err := r.db.
		Where("title LIKE ? OR authors LIKE ? OR doi LIKE ? OR arxiv_id LIKE ?",
			pattern, pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&papers).Error
	if err != nil {
		return nil, fmt.Errorf("search papers failed: %w", err)
	}
	return papers, nil
}

// Delete removes the paper; sessions, messages, flags and insights go
// with it through the schema's cascades, all in one statement.
func (r *PaperRepository) Delete(id uint) error {
	res := r.db.Delete(&model.Paper{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete paper failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("paper %d: %w", id, storage.ErrNotFound)
	}
	return nil
}
