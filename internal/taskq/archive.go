// Package taskq publishes end-of-game archive tasks to a RabbitMQ queue.
// A separate consumer turns them into long-term match records; the game
// server only fires and forgets. When no broker is configured the
// publisher is a no-op, so game flow never depends on the queue.
package taskq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/game"
)

// ArchiveTask is the payload handed to the archive consumer.
type ArchiveTask struct {
	GameCode    string                      `json:"gameCode"`
	Winner      string                      `json:"winner"`
	Rounds      int                         `json:"rounds"`
	EndedAt     time.Time                   `json:"endedAt"`
	PlayerStats map[string]game.PlayerStats `json:"playerStats"`
	Trophies    []Trophy                    `json:"trophies,omitempty"`
}

// Trophy mirrors the trophy package's award shape for the archive record.
type Trophy struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// Publisher writes archive tasks to a durable queue.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	logger  *zap.Logger
	enabled bool
}

// NewPublisher connects to the broker and declares the queue. An empty
// URL returns a disabled publisher whose Publish is a no-op.
func NewPublisher(url, queue string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if url == "" {
		return &Publisher{queue: queue, logger: logger}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, logger: logger, enabled: true}, nil
}

// Publish enqueues one archive task. Errors are logged and returned but
// callers treat them as non-fatal.
func (p *Publisher) Publish(ctx context.Context, task ArchiveTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal archive task: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		p.logger.Error("archive publish failed",
			zap.String("game_code", task.GameCode),
			zap.Error(err))
		return fmt.Errorf("publish archive task: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil
	}
	p.enabled = false
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
