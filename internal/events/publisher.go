package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateHalfOpen
	StateOpen
)

const (
	maxFailures        = 5
	openTimeout        = 60 * time.Second
	maxConnectAttempts = 4
)

// Publisher sends mutation events to a direct exchange. A circuit breaker
// keeps a dead broker from slowing down mutations: after maxFailures
// connection errors publishing is skipped until openTimeout has passed.
type Publisher struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string

	failureCount int64
	lastFailure  time.Time
	state        int32
}

// NewPublisher connects to the broker, retrying with exponential backoff so
// the app survives a broker that is still starting up.
func NewPublisher(url, exchangeName, queueName string) (*Publisher, error) {
	p := &Publisher{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	var err error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		if attempt > 0 {
			wait := exponentialBackoff(attempt - 1)
			slog.Warn("AMQP connect failed, retrying", "attempt", attempt, "wait", wait, "error", err)
			time.Sleep(wait)
		}
		if err = p.connect(); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("connect to AMQP after %d attempts: %w", maxConnectAttempts, err)
}

func (p *Publisher) connect() error {
	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	p.conn = conn
	p.channel = channel

	if err := p.setup(); err != nil {
		p.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (p *Publisher) setup() error {
	// Declare exchange
	err := p.channel.ExchangeDeclare(
		p.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = p.channel.QueueDeclare(
		p.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Bind queue to exchange
	err = p.channel.QueueBind(
		p.queueName,    // queue name
		p.queueName,    // routing key (same as queue name for direct exchange)
		p.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishMutation publishes one mutation event.
func (p *Publisher) PublishMutation(ctx context.Context, entity, op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, skipping publish")
	}

	event := NewEvent(entity, op, id)
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		p.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent, // make message persistent
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			p.recordFailure()
		}
		return fmt.Errorf("publish event: %w", err)
	}

	p.recordSuccess()
	slog.InfoContext(ctx, "published mutation event",
		"entity", entity,
		"op", op,
		"id", id,
		"exchange", p.exchangeName,
		"queue", p.queueName)

	return nil
}

func (p *Publisher) isCircuitOpen() bool {
	state := atomic.LoadInt32(&p.state)
	if state != StateOpen {
		return false
	}
	if time.Since(p.lastFailure) > openTimeout {
		atomic.StoreInt32(&p.state, StateHalfOpen)
		return false
	}
	return true
}

func (p *Publisher) recordFailure() {
	count := atomic.AddInt64(&p.failureCount, 1)
	p.lastFailure = time.Now()
	if count >= maxFailures {
		atomic.StoreInt32(&p.state, StateOpen)
	}
}

func (p *Publisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	wait := time.Duration(1<<uint(attempt)) * time.Second
	if wait > 30*time.Second {
		return 30 * time.Second
	}
	return wait
}

// isConnectionError reports whether the error looks like a broken broker
// connection, as opposed to a bad message or channel misuse.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
