package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fanfrenzy/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue receives challenge reports for moderation.
const DefaultQueue = "challenges"

// Publisher sends challenge reports to a durable RabbitMQ queue.
type Publisher struct {
	conn  *amqp.Connection
	queue string

	mu       sync.Mutex
	channel  *amqp.Channel
	declared bool
}

func NewPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &Publisher{conn: conn, channel: channel, queue: queue}, nil
}

// ChallengeEvent is the message body consumers receive.
type ChallengeEvent struct {
	Type      string           `json:"type"`
	Challenge domain.Challenge `json:"challenge"`
}

func (p *Publisher) PublishChallenge(ctx context.Context, c domain.Challenge) error {
	body, err := json.Marshal(ChallengeEvent{Type: "challenge.created", Challenge: c})
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.declared {
		_, err := p.channel.QueueDeclare(
			p.queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    c.ID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
