package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notifier dispatches out-of-band messages to account holders. The core only
// decides that something must be sent and to whom; rendering and transport
// live behind this interface.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error
	SendImpersonationConsent(ctx context.Context, email, adminEmail, confirmURL string) error
}

// notification is a queued outbound message.
type notification struct {
	send     func(ctx context.Context) error
	kind     string
	attempts int
}

// Dispatcher decouples notification delivery from the request/response
// lifecycle. Enqueue never blocks the caller and delivery failure never rolls
// back the state change that triggered it; failures are logged and retried
// with backoff up to maxAttempts.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger

	queue       chan notification
	maxAttempts int
	retryDelay  time.Duration
	sendTimeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier:    notifier,
		logger:      logger,
		queue:       make(chan notification, 256),
		maxAttempts: 3,
		retryDelay:  5 * time.Second,
		sendTimeout: 10 * time.Second,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the delivery worker until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.doneCh)

	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		case <-d.stopCh:
			d.logger.Info("notification dispatcher stopped")
			return
		case <-ctx.Done():
			d.logger.Info("notification dispatcher context cancelled")
			return
		}
	}
}

// Stop signals the worker to stop and waits for it to drain the in-flight send.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}

func (d *Dispatcher) deliver(ctx context.Context, n notification) {
	for n.attempts < d.maxAttempts {
		n.attempts++

		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := n.send(sendCtx)
		cancel()

		if err == nil {
			return
		}

		d.logger.Warn("notification delivery failed",
			slog.String("kind", n.kind),
			slog.Int("attempt", n.attempts),
			slog.Any("error", err))

		if n.attempts < d.maxAttempts {
			select {
			case <-time.After(d.retryDelay):
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}

	d.logger.Error("notification dropped after retries", slog.String("kind", n.kind))
}

// enqueue hands a message to the worker. A full queue drops the message with
// a log line rather than blocking the request path.
func (d *Dispatcher) enqueue(kind string, send func(ctx context.Context) error) {
	select {
	case d.queue <- notification{send: send, kind: kind}:
	default:
		d.logger.Error("notification queue full, dropping message", slog.String("kind", kind))
	}
}

// QueueVerificationCode schedules a code email for async delivery.
func (d *Dispatcher) QueueVerificationCode(email, code string, expiresAt time.Time) {
	d.enqueue("verification_code", func(ctx context.Context) error {
		return d.notifier.SendVerificationCode(ctx, email, code, expiresAt)
	})
}

// QueueImpersonationConsent schedules a consent-link email for async delivery.
func (d *Dispatcher) QueueImpersonationConsent(email, adminEmail, confirmURL string) {
	d.enqueue("impersonation_consent", func(ctx context.Context) error {
		return d.notifier.SendImpersonationConsent(ctx, email, adminEmail, confirmURL)
	})
}
