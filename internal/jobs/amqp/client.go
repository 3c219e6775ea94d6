// Package amqp carries import jobs over RabbitMQ so the API and the worker
// can run as separate processes.
package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/vault-ledger/internal/jobs"
	"github.com/dvloznov/vault-ledger/internal/logger"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	store        jobs.JobStore

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient dials url and declares a durable direct exchange bound to a
// durable queue. store is optional and receives job state changes.
func NewClient(url, exchangeName, queueName string, store jobs.JobStore) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewClient: dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewClient: open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		store:        store,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewClient: setup exchange and queue: %w", err)
	}
	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
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

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// one unacknowledged import per consumer
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// PublishImportStatement implements jobs.Publisher.
func (c *Client) PublishImportStatement(ctx context.Context, job *jobs.ImportStatementJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	body, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("PublishImportStatement: %w", err)
	}

	if c.store != nil {
		if err := c.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishImportStatement: save job: %w", err)
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		pubCtx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    job.JobID,
			Type:         string(jobs.JobTypeImportStatement),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("PublishImportStatement: publish message: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("job_id", job.JobID).
		Str("vault_id", job.VaultID).
		Str("exchange", c.exchangeName).
		Str("queue", c.queueName).
		Msg("Published import job")
	return nil
}

// Start implements jobs.Consumer. Deliveries are processed one at a time
// in a background goroutine until Stop or ctx cancellation.
func (c *Client) Start(ctx context.Context, handler jobs.JobHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return fmt.Errorf("Start: consumer already started")
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("Start: start consuming: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.consume(ctx, msgs, handler)

	log := logger.FromContext(ctx)
	log.Info().Str("queue", c.queueName).Msg("Started consuming import jobs")
	return nil
}

func (c *Client) consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler jobs.JobHandler) {
	defer close(c.done)
	log := logger.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Stopping message consumption")
			return
		case delivery, ok := <-msgs:
			if !ok {
				log.Warn().Msg("AMQP delivery channel closed")
				return
			}
			if process(ctx, delivery.Body, handler, c.store) == outcomeAck {
				delivery.Ack(false)
			} else {
				delivery.Nack(false, false)
			}
		}
	}
}

// Stop implements jobs.Consumer.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (c *Client) Close() error {
	_ = c.Stop(context.Background())
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var (
	_ jobs.Publisher = (*Client)(nil)
	_ jobs.Consumer  = (*Client)(nil)
)
