package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExportJob asks the note-export worker to push a session's insight
// bundle to the reference manager.
type ExportJob struct {
	SessionID string `json:"session_id"`
}

type ExportPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewExportPublisher(conn *amqp.Connection, queueName string) *ExportPublisher {
	return &ExportPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *ExportPublisher) Publish(ctx context.Context, job ExportJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal export job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish export job failed: %w", err)
	}
	return nil
}
