package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"papercompanion/internal/platform/rabbitmq"
	"papercompanion/internal/repository"
)

// NoteWriter pushes a finished note to the reference manager.
type NoteWriter interface {
	CreateNote(ctx context.Context, itemKey, html string, tags []string) error
}

// NoteExportWorker drains the export queue: for each job it collects
// the session's insights and writes them as an HTML note attached to
// the paper's library item. Export is fire-and-forget from the API's
// point of view, which is why it lives behind the broker.
type NoteExportWorker struct {
	conn      *amqp.Connection
	sessions  *repository.SessionRepository
	papers    *repository.PaperRepository
	writer    NoteWriter
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNoteExportWorker(
	conn *amqp.Connection,
	sessions *repository.SessionRepository,
	papers *repository.PaperRepository,
	writer NoteWriter,
	queueName string,
) *NoteExportWorker {
	return &NoteExportWorker{
		conn:      conn,
		sessions:  sessions,
		papers:    papers,
		writer:    writer,
		queueName: queueName,
	}
}

func (w *NoteExportWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job rabbitmq.ExportJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("worker decode export job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.export(workerCtx, job); err != nil {
					log.Printf("worker export session %s failed: %v", job.SessionID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *NoteExportWorker) export(ctx context.Context, job rabbitmq.ExportJob) error {
	session, err := w.sessions.GetByID(job.SessionID)
	if err != nil {
		return fmt.Errorf("load session failed: %w", err)
	}
	paper, err := w.papers.FindByID(session.PaperID)
	if err != nil {
		return fmt.Errorf("load paper failed: %w", err)
	}
	if paper.ZoteroKey == nil || *paper.ZoteroKey == "" {
		return fmt.Errorf("paper %d has no zotero key", paper.ID)
	}

	grouped, err := w.sessions.GetInsightsGrouped(job.SessionID)
	if err != nil {
		return fmt.Errorf("load insights failed: %w", err)
	}
	if len(grouped) == 0 {
		return fmt.Errorf("session %s has no insights to export", job.SessionID)
	}

	note := FormatInsightsHTML(paper.Title, job.SessionID, grouped)
	if err := w.writer.CreateNote(ctx, *paper.ZoteroKey, note, []string{"paper-companion"}); err != nil {
		return fmt.Errorf("write note failed: %w", err)
	}
	return nil
}

func (w *NoteExportWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// FormatInsightsHTML renders grouped insights into the note body.
// Categories come out in sorted order so repeated exports are
// comparable.
func FormatInsightsHTML(title, sessionID string, grouped map[string][]string) string {
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	heading := "Reading session insights"
	if title != "" {
		heading += ": " + title
	}
	b.WriteString("<h1>" + html.EscapeString(heading) + "</h1>\n")
	b.WriteString("<p>Session " + html.EscapeString(sessionID) + "</p>\n")

	for _, category := range categories {
		items := grouped[category]
		if len(items) == 0 {
			continue
		}
		b.WriteString("<h2>" + html.EscapeString(categoryHeading(category)) + "</h2>\n<ul>\n")
		for _, item := range items {
			b.WriteString("<li>" + html.EscapeString(item) + "</li>\n")
		}
		b.WriteString("</ul>\n")
	}
	return b.String()
}

func categoryHeading(category string) string {
	words := strings.Split(strings.ReplaceAll(category, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
