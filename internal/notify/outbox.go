// Package notify queues, delivers and streams notifications about accepted
// signals and lead trader orders. Writers only enqueue; the Dispatcher is the
// sole sender.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/repository"
)

const (
	KindSignal    = "signal"
	KindCopyOrder = "copy_order"
)

var ErrNoRecipients = errors.New("no notification recipients")

// SubscriberResolver returns the addresses following a lead trader.
type SubscriberResolver interface {
	NotifiableEmails(ctx context.Context, traderID string) ([]string, error)
}

type Outbox struct {
	Repo             repository.OutboxRepository
	SignalRecipients []string
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

func (o *Outbox) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// EnqueueSignal queues the announcement of sig. It reports false when the
// signal was already queued.
func (o *Outbox) EnqueueSignal(ctx context.Context, sig models.Signal) (bool, error) {
	if o == nil || o.Repo == nil {
		return false, nil
	}
	recipients := normalizeRecipients(o.SignalRecipients)
	if len(recipients) == 0 {
		return false, ErrNoRecipients
	}
	subject, body, err := RenderSignal(sig)
	if err != nil {
		return false, fmt.Errorf("render signal %d: %w", sig.ID, err)
	}
	return o.enqueue(ctx, o.item(KindSignal, strconv.FormatUint(sig.ID, 10), recipients, subject, body))
}

// EnqueueCopyOrder queues the announcement of a newly ingested lead trader
// order. Followers are looked up by the Dispatcher when the row is sent.
func (o *Outbox) EnqueueCopyOrder(ctx context.Context, order models.CopyOrder, watch models.TraderWatch) (bool, error) {
	if o == nil || o.Repo == nil {
		return false, nil
	}
	if strings.TrimSpace(order.TraderID) == "" {
		return false, fmt.Errorf("copy order %d has no trader id", order.ID)
	}
	subject, body, err := RenderCopyOrder(order, watch)
	if err != nil {
		return false, fmt.Errorf("render copy order %d: %w", order.ID, err)
	}
	item := o.item(KindCopyOrder, strconv.FormatUint(order.ID, 10), nil, subject, body)
	item.Audience = order.TraderID
	return o.enqueue(ctx, item)
}

func (o *Outbox) item(kind, ref string, recipients []string, subject, body string) *models.NotificationOutbox {
	if recipients == nil {
		recipients = []string{}
	}
	raw, _ := json.Marshal(recipients)
	return &models.NotificationOutbox{
		Kind:          kind,
		RefID:         ref,
		DedupeKey:     kind + ":" + ref,
		Recipients:    datatypes.JSON(raw),
		Subject:       subject,
		Body:          body,
		Status:        models.NotificationPending,
		NextAttemptAt: o.now(),
	}
}

func (o *Outbox) enqueue(ctx context.Context, item *models.NotificationOutbox) (bool, error) {
	ok, err := o.Repo.EnqueueNotification(ctx, item)
	if err != nil {
		return false, err
	}
	if ok {
		o.Metrics.Notification("queued")
	} else {
		o.Metrics.Notification("duplicate")
		if o.Logger != nil {
			o.Logger.Debug("notification already queued", zap.String("dedupe_key", item.DedupeKey))
		}
	}
	return ok, nil
}

func normalizeRecipients(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
