package app

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"papercompanion/internal/model"
	"papercompanion/internal/pkg/pdfextract"
	"papercompanion/internal/repository"
	"papercompanion/internal/storage"
)

// PaperService sits at the ingestion boundary: it accepts raw PDF
// bytes, extracts the text, hashes the content and resolves the bytes
// to exactly one paper row.
type PaperService struct {
	papers *repository.PaperRepository
}

func NewPaperService(papers *repository.PaperRepository) *PaperService {
	return &PaperService{papers: papers}
}

type IngestPDFInput struct {
	FileName  string
	Data      []byte
	Title     string
	Authors   string
	DOI       string
	ArxivID   string
	ZoteroKey string
	Metadata  string
}

type IngestPDFResult struct {
	Paper   *model.Paper `json:"paper"`
	Created bool         `json:"created"`
}

// IngestPDF creates the paper for the given bytes, or returns the
// existing one when the same content was ingested before. A duplicate
// hash is the common resubmission path, not a failure.
func (s *PaperService) IngestPDF(input IngestPDFInput) (*IngestPDFResult, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("empty pdf payload: %w", ErrInvalidInput)
	}

	hash := pdfextract.ContentHash(input.Data)

	text, err := pdfextract.ExtractText(bytes.NewReader(input.Data))
	if err != nil {
		// Scanned or malformed PDFs still get a paper row; the text
		// stays empty and sessions run without paper context.
		log.Printf("extract text from %s failed: %v", input.FileName, err)
		text = ""
	}

	paper, err := s.papers.Create(repository.CreatePaperInput{
		PDFHash:   hash,
		PDFPath:   input.FileName,
		Title:     input.Title,
		Authors:   input.Authors,
		DOI:       input.DOI,
		ArxivID:   input.ArxivID,
		ZoteroKey: input.ZoteroKey,
		Metadata:  input.Metadata,
		FullText:  text,
	})
	if err == nil {
		return &IngestPDFResult{Paper: paper, Created: true}, nil
	}
	if !errors.Is(err, storage.ErrConstraint) {
		return nil, err
	}

	existing, findErr := s.papers.FindByHash(hash)
	if findErr != nil {
		return nil, findErr
	}
	return &IngestPDFResult{Paper: existing, Created: false}, nil
}
