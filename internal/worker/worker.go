package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"shop-sync-service/internal/broker"
	"shop-sync-service/internal/service"
	"shop-sync-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// verifiedHeader marks messages whose signature was checked upstream
const verifiedHeader = "x-webhook-verified"

// WebhookQueue accepts raw webhook bodies for the drain pass
type WebhookQueue interface {
	Enqueue(ctx context.Context, body []byte, verified bool) (int64, error)
}

// WebhookDrainer processes the queued webhook events
type WebhookDrainer interface {
	Drain(ctx context.Context) (*service.DrainResult, error)
}

// WebhookIngestWorker moves raw webhook events from Kafka into the store queue
type WebhookIngestWorker struct {
	consumer *broker.Consumer
	queue    WebhookQueue
	logger   *zap.Logger
}

// NewWebhookIngestWorker creates a new webhook ingest worker
func NewWebhookIngestWorker(consumer *broker.Consumer, queue WebhookQueue) *WebhookIngestWorker {
	return &WebhookIngestWorker{
		consumer: consumer,
		queue:    queue,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *WebhookIngestWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting webhook ingest worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage enqueues one message. Malformed bodies are dropped and
// committed so they are not redelivered.
func (w *WebhookIngestWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	verified := false
	for _, h := range msg.Headers {
		if h.Key == verifiedHeader && string(h.Value) == "true" {
			verified = true
		}
	}

	id, err := w.queue.Enqueue(ctx, msg.Value, verified)
	if errors.Is(err, service.ErrMalformedWebhook) {
		w.logger.Warn("Dropping malformed webhook message",
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition))
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Debug("Webhook event queued", zap.Int64("event_id", id), zap.Bool("verified", verified))
	return nil
}

// Stop stops the worker
func (w *WebhookIngestWorker) Stop() error {
	w.logger.Info("Stopping webhook ingest worker")
	return w.consumer.Close()
}

// DrainWorker runs the webhook drain pass on a fixed interval
type DrainWorker struct {
	drainer  WebhookDrainer
	interval time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewDrainWorker creates a new drain worker
func NewDrainWorker(drainer WebhookDrainer, interval time.Duration) *DrainWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DrainWorker{
		drainer:  drainer,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start starts the drain loop
func (d *DrainWorker) Start(ctx context.Context) {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return
	}
	d.isRunning = true
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.runLoop(ctx)

	d.logger.Info("Webhook drain worker started", zap.Duration("interval", d.interval))
}

// Stop stops the drain loop and waits for an in-flight pass or ctx
func (d *DrainWorker) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Webhook drain worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DrainWorker) runLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.drainer.Drain(ctx); err != nil {
				d.logger.Error("Webhook drain failed", zap.Error(err))
			}
		}
	}
}
