// Package notify publishes and consumes scraper events over AMQP.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"housing-scraper/models"
)

const (
	MessageVersion = "1"

	EventRunCompleted = "scraper.run.completed"
	EventRunRequested = "scraper.run.requested"
)

// Message is the envelope of every event on the queue.
type Message struct {
	Version string
	Event   string
	Data    json.RawMessage
}

// CityResult is the per-city part of a run completed event.
type CityResult struct {
	City      string `json:"city"`
	Status    string `json:"status"`
	Pages     int    `json:"pages"`
	New       int    `json:"new"`
	Skipped   int    `json:"skipped"`
	Malformed int    `json:"malformed"`
	Error     string `json:"error,omitempty"`
}

// RunCompleted is the payload of EventRunCompleted.
type RunCompleted struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Cities     []CityResult `json:"cities"`
}

// NewRunCompletedMessage builds the event announcing a finished run.
func NewRunCompletedMessage(report *models.RunReport) (Message, error) {
	payload := RunCompleted{
		RunID:      report.ID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Cities:     make([]CityResult, 0, len(report.Cities)),
	}
	for _, c := range report.Cities {
		payload.Cities = append(payload.Cities, CityResult{
			City:      c.City,
			Status:    string(c.Status),
			Pages:     c.Pages,
			New:       c.New,
			Skipped:   c.Skipped,
			Malformed: c.Malformed,
			Error:     c.ErrText(),
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("notify: encode run completed: %w", err)
	}
	return Message{Version: MessageVersion, Event: EventRunCompleted, Data: data}, nil
}

// DecodeMessage parses a delivery body into a Message and checks its version.
func DecodeMessage(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("notify: decode message: %w", err)
	}
	if msg.Version != MessageVersion {
		return Message{}, fmt.Errorf("notify: unsupported message version %q", msg.Version)
	}
	return msg, nil
}

// Queue is a lazily connected AMQP client.
type Queue struct {
	ConnString string
	connection *amqp.Connection
	channel    *amqp.Channel
}

func (q *Queue) Publish(queueName string, message Message) error {
	if err := q.init(); err != nil {
		return err
	}
	amqpQueue, err := q.getQueue(queueName)
	if err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}

	err = q.channel.Publish(
		"",
		amqpQueue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("notify: publish to %s: %w", queueName, err)
	}
	return nil
}

// Consume returns the deliveries of queueName. Deliveries must be acked by
// the caller.
func (q *Queue) Consume(queueName string) (<-chan amqp.Delivery, error) {
	if err := q.init(); err != nil {
		return nil, err
	}
	amqpQueue, err := q.getQueue(queueName)
	if err != nil {
		return nil, err
	}

	// One unacked delivery at a time.
	if err := q.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("notify: set qos: %w", err)
	}

	messages, err := q.channel.Consume(
		amqpQueue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("notify: consume %s: %w", queueName, err)
	}
	return messages, nil
}

func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.connection != nil {
		return q.connection.Close()
	}
	return nil
}

func (q *Queue) getQueue(queueName string) (amqp.Queue, error) {
	amqpQueue, err := q.channel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("notify: declare %s: %w", queueName, err)
	}
	return amqpQueue, nil
}

func (q *Queue) init() error {
	if err := q.initConnection(); err != nil {
		return err
	}
	return q.initChannel()
}

func (q *Queue) initChannel() error {
	if q.channel != nil {
		return nil
	}

	ch, err := q.connection.Channel()
	if err != nil {
		return fmt.Errorf("notify: open channel: %w", err)
	}
	q.channel = ch
	return nil
}

func (q *Queue) initConnection() error {
	if q.connection != nil {
		return nil
	}

	conn, err := amqp.Dial(q.ConnString)
	if err != nil {
		return fmt.Errorf("notify: dial: %w", err)
	}
	q.connection = conn
	return nil
}
