package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"StreamAccounts/internal/domain"
)

// Notifier accepts a notification for delivery without blocking the
// caller. Delivery failures are the notifier's problem, never the caller's.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type NotificationSender interface {
	Send(ctx context.Context, n domain.Notification) error
}

type DispatcherOptions struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

type notificationJob struct {
	ctx context.Context
	n   domain.Notification
}

// NotificationDispatcher delivers notifications on a small worker pool with
// retries. When the queue is full the notification is dropped and logged.
type NotificationDispatcher struct {
	sender NotificationSender
	opts   DispatcherOptions
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan notificationJob
	abort  chan struct{}
	halt   sync.Once
	wg     sync.WaitGroup
}

func NewNotificationDispatcher(sender NotificationSender, opts DispatcherOptions) *NotificationDispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &NotificationDispatcher{
		sender: sender,
		opts:   opts,
		logger: logger,
		queue:  make(chan notificationJob, opts.QueueSize),
		abort:  make(chan struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *NotificationDispatcher) Notify(ctx context.Context, n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notifications: dispatcher closed, dropping", "event", n.Event, "user_id", n.UserID)
		return
	}
	// The request context ends with the response; keep its values only.
	job := notificationJob{ctx: context.WithoutCancel(ctx), n: n}
	select {
	case d.queue <- job:
	default:
		d.logger.Error("notifications: queue full, dropping", "event", n.Event, "user_id", n.UserID)
	}
}

// Close stops accepting work and waits for queued notifications to drain.
// If ctx ends first, in-flight retries are abandoned.
func (d *NotificationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.halt.Do(func() { close(d.abort) })
		return ctx.Err()
	}
}

func (d *NotificationDispatcher) work() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *NotificationDispatcher) deliver(job notificationJob) {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(job.ctx, d.opts.AttemptTimeout)
		err := d.sender.Send(ctx, job.n)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.opts.MaxAttempts {
			d.logger.Error("notifications: send failed", "err", err, "event", job.n.Event, "user_id", job.n.UserID, "attempts", attempt)
			return
		}
		d.logger.Warn("notifications: send attempt failed", "err", err, "event", job.n.Event, "attempt", attempt)

		t := time.NewTimer(d.opts.Backoff * time.Duration(attempt))
		select {
		case <-t.C:
		case <-d.abort:
			t.Stop()
			d.logger.Error("notifications: abandoned on shutdown", "event", job.n.Event, "user_id", job.n.UserID)
			return
		}
	}
}

// LogNotificationSender writes notifications to the log instead of sending
// them. It is used outside prod when SMTP is not configured.
type LogNotificationSender struct {
	Logger *slog.Logger
}

func (s *LogNotificationSender) Send(_ context.Context, n domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.Email == "" {
		return errors.New("notification has no recipient")
	}
	logger.Info("notifications: delivered to log", "event", n.Event, "to", n.Email, "url", n.Data["url"])
	return nil
}
