package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"signalflow/internal/config"
	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/repository"
)

type DispatchSummary struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	// Skipped rows had nobody to mail once followers were resolved.
	Skipped int `json:"skipped"`
}

// Dispatcher drains due outbox rows through the Mailer. A failed send,
// including a failed follower lookup, is rescheduled with exponential backoff
// until MaxAttempts, then marked failed.
type Dispatcher struct {
	Repo        repository.OutboxRepository
	Mailer      Mailer
	Subscribers SubscriberResolver
	Config      config.NotifyConfig
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

var errNoResolver = errors.New("subscriber lookup unavailable")

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// RetryDelay is the wait after the given number of failed attempts.
func (d *Dispatcher) RetryDelay(attempts int) time.Duration {
	lo, hi := d.Config.RetryMin, d.Config.RetryMax
	if lo <= 0 {
		lo = 30 * time.Second
	}
	if hi < lo {
		hi = lo
	}
	b := &backoff.Backoff{Min: lo, Max: hi, Factor: 2}
	if attempts < 1 {
		attempts = 1
	}
	return b.ForAttempt(float64(attempts - 1))
}

func (d *Dispatcher) RunOnce(ctx context.Context) (DispatchSummary, error) {
	var sum DispatchSummary
	if d == nil || d.Repo == nil || d.Mailer == nil {
		return sum, nil
	}
	limit := d.Config.BatchSize
	if limit <= 0 {
		limit = 50
	}
	maxAttempts := d.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	items, err := d.Repo.ListDueNotifications(ctx, d.now(), limit)
	if err != nil {
		return sum, err
	}
	sum.Due = len(items)

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		sendErr := d.send(ctx, it)
		if sendErr == nil {
			if err := d.Repo.MarkNotificationSent(ctx, it.ID, d.now()); err != nil {
				return sum, err
			}
			sum.Sent++
			d.Metrics.Notification("sent")
			continue
		}

		attempts := it.Attempts + 1
		if errors.Is(sendErr, ErrNoRecipients) {
			if err := d.Repo.MarkNotificationRetry(ctx, it.ID, attempts, d.now(), sendErr.Error(), true); err != nil {
				return sum, err
			}
			sum.Skipped++
			d.Metrics.Notification("skipped")
			if d.Logger != nil {
				d.Logger.Debug("notification has no recipients", zap.Uint64("id", it.ID), zap.String("dedupe_key", it.DedupeKey))
			}
			continue
		}
		failed := attempts >= maxAttempts
		next := d.now().Add(d.RetryDelay(attempts))
		if err := d.Repo.MarkNotificationRetry(ctx, it.ID, attempts, next, sendErr.Error(), failed); err != nil {
			return sum, err
		}
		if failed {
			sum.Failed++
			d.Metrics.Notification("failed")
			if d.Logger != nil {
				d.Logger.Error("notification failed permanently",
					zap.Uint64("id", it.ID),
					zap.String("dedupe_key", it.DedupeKey),
					zap.Int("attempts", attempts),
					zap.Error(sendErr),
				)
			}
			continue
		}
		sum.Retried++
		d.Metrics.Notification("retry")
		if d.Logger != nil {
			d.Logger.Warn("notification send failed",
				zap.Uint64("id", it.ID),
				zap.String("dedupe_key", it.DedupeKey),
				zap.Int("attempts", attempts),
				zap.Time("next_attempt_at", next),
				zap.Error(sendErr),
			)
		}
	}

	if d.Logger != nil && sum.Due > 0 {
		d.Logger.Info("outbox dispatched",
			zap.Int("due", sum.Due),
			zap.Int("sent", sum.Sent),
			zap.Int("retried", sum.Retried),
			zap.Int("failed", sum.Failed),
			zap.Int("skipped", sum.Skipped),
		)
	}
	return sum, nil
}

func (d *Dispatcher) send(ctx context.Context, it models.NotificationOutbox) error {
	to, err := d.recipients(ctx, it)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}
	return d.Mailer.Send(ctx, Message{
		From:    d.Config.From,
		To:      to,
		Subject: it.Subject,
		Body:    it.Body,
	})
}

// recipients merges the stored addresses with the followers of the row's
// audience, if it has one.
func (d *Dispatcher) recipients(ctx context.Context, it models.NotificationOutbox) ([]string, error) {
	var to []string
	if len(it.Recipients) > 0 {
		if err := json.Unmarshal(it.Recipients, &to); err != nil {
			return nil, fmt.Errorf("decode recipients: %w", err)
		}
	}
	if it.Audience == "" {
		return normalizeRecipients(to), nil
	}
	if d.Subscribers == nil {
		return nil, errNoResolver
	}
	emails, err := d.Subscribers.NotifiableEmails(ctx, it.Audience)
	if err != nil {
		return nil, fmt.Errorf("resolve subscribers of %s: %w", it.Audience, err)
	}
	return normalizeRecipients(append(to, emails...)), nil
}
