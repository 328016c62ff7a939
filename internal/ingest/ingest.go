// Package ingest moves click events from the beacon endpoint into the store
// without ever touching the redirect critical path: a bounded in-process
// queue feeds a RabbitMQ publisher, and a worker-side consumer appends each
// event to the owning record's click log.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/linklytics/linklytics/internal"
	"github.com/linklytics/linklytics/internal/apperr"
)

// Message is the wire shape of a click event on the queue.
type Message struct {
	Alias string              `json:"alias"`
	Event internal.ClickEvent `json:"event"`
}

// Publisher sends one encoded click message. Satisfied by AMQPPublisher.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type AMQPPublisher struct {
	ch    *amqp091.Channel
	queue string
}

func NewAMQPPublisher(ch *amqp091.Channel, queue string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue}
}

func (p *AMQPPublisher) Publish(ctx context.Context, body []byte) error {
	return p.ch.PublishWithContext(
		ctx,
		"", p.queue, false, false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Ingestor accepts click events fire-and-forget. Enqueue never blocks: when
// the buffer is full the newest event is dropped with a warning, bounding
// memory under backpressure. No caller is waiting, so publish failures are
// logged and the event is lost (acceptable, see the beacon contract).
type Ingestor struct {
	pub   Publisher
	queue chan Message
	wg    sync.WaitGroup
}

func NewIngestor(pub Publisher, size int) *Ingestor {
	if size <= 0 {
		size = 1024
	}
	return &Ingestor{
		pub:   pub,
		queue: make(chan Message, size),
	}
}

// Start launches the publishing loop. Call Close to drain and stop it.
func (i *Ingestor) Start() {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for msg := range i.queue {
			i.publish(msg)
		}
	}()
}

func (i *Ingestor) Enqueue(alias string, ev internal.ClickEvent) {
	select {
	case i.queue <- Message{Alias: alias, Event: ev}:
	default:
		slog.Warn("click queue full, dropping event", "alias", alias)
	}
}

// Close drains buffered events and stops the publishing loop.
func (i *Ingestor) Close() {
	close(i.queue)
	i.wg.Wait()
}

func (i *Ingestor) publish(msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		slog.Error("error marshalling click event", "alias", msg.Alias, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.pub.Publish(ctx, body); err != nil {
		slog.Error("error publishing click event", "alias", msg.Alias, "err", err)
	}
}

// ClickAppender is the slice of the store the consumer needs.
type ClickAppender interface {
	AppendClick(ctx context.Context, alias string, ev internal.ClickEvent) error
}

// Consumer appends queued click events to the store on the worker side.
type Consumer struct {
	store ClickAppender
}

func NewConsumer(store ClickAppender) *Consumer {
	return &Consumer{store: store}
}

// process decodes and appends one message body. The returned error tells
// Handle how to settle the delivery.
func (c *Consumer) process(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return err
	}
	return c.store.AppendClick(ctx, msg.Alias, msg.Event)
}

// Handle settles one delivery: malformed payloads and clicks for unknown
// aliases are rejected without requeue, store outages are requeued for a
// later attempt.
func (c *Consumer) Handle(ctx context.Context, d amqp091.Delivery) {
	err := c.process(ctx, d.Body)
	switch {
	case err == nil:
		d.Ack(false)
	case errors.Is(err, apperr.ErrNotFound):
		slog.Warn("click for unknown alias, rejecting", "err", err)
		d.Reject(false)
	case errors.Is(err, apperr.ErrUpstream):
		slog.Error("store unavailable, requeueing click", "err", err)
		d.Nack(false, true)
	default:
		slog.Error("error decoding click message, rejecting", "err", err)
		d.Reject(false)
	}
}

// Run consumes deliveries until the channel closes or ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, msgs <-chan amqp091.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				slog.Warn("RabbitMQ channel closed")
				return
			}
			c.Handle(ctx, d)
		}
	}
}
