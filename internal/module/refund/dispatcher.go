package refund

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/clinio/server/internal/utils/metrics"
)

// DispatcherConfig holds dispatch tuning.
type DispatcherConfig struct {
	MaxAttempts  int
	BatchSize    int
	RetryBackoff time.Duration
}

// Dispatcher delivers queued refund notifications. Runs are triggered by
// cron or manually; concurrent runs are safe because each notification is
// claimed with a conditional update before sending.
type Dispatcher struct {
	repo    Repository
	mailer  Mailer
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     DispatcherConfig
	now     func() time.Time
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(repo Repository, mailer Mailer, m *metrics.Metrics, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 15 * time.Minute
	}
	return &Dispatcher{
		repo:    repo,
		mailer:  mailer,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Dispatch processes one batch of due notifications. With DryRun set it only
// reports what would be sent, touching nothing. An explicit NotificationID
// restricts the run to that notification.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResult, error) {
	limit := req.Limit
	if limit <= 0 || limit > d.cfg.BatchSize {
		limit = d.cfg.BatchSize
	}

	var (
		batch []*Notification
		err   error
	)
	if req.NotificationID != nil {
		n, err := d.repo.GetNotification(ctx, *req.NotificationID)
		if err != nil {
			return nil, err
		}
		if n.Status == NotificationPending && n.Attempts < d.cfg.MaxAttempts {
			batch = []*Notification{n}
		}
	} else {
		batch, err = d.repo.ListDueNotifications(ctx, d.now(), d.cfg.MaxAttempts, limit)
		if err != nil {
			return nil, err
		}
	}

	result := &DispatchResult{}
	for _, n := range batch {
		result.Processed++
		if req.DryRun {
			result.DryRun++
			continue
		}
		d.dispatchOne(ctx, n, result)
	}

	d.logger.Info("notification dispatch finished",
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("retried", result.Retried),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Bool("dry_run", req.DryRun),
	)
	return result, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, n *Notification, result *DispatchResult) {
	claimed, err := d.repo.ClaimNotification(ctx, n.ID, n.Attempts)
	if err != nil {
		d.logger.Error("failed to claim notification",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
		result.Skipped++
		return
	}
	if !claimed {
		// Another dispatcher took it, or its state changed under us.
		result.Skipped++
		return
	}
	attempt := n.Attempts + 1

	sendErr := d.send(ctx, n)
	now := d.now()

	if sendErr == nil {
		if err := d.repo.MarkNotificationSent(ctx, n.ID, now); err != nil {
			d.logger.Error("sent notification but failed to record it",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
		}
		d.auditAttempt(ctx, n, "sent", attempt, "")
		d.metrics.RecordDispatch("sent")
		result.Sent++
		return
	}

	d.logger.Warn("notification send failed",
		zap.String("notification_id", n.ID.String()),
		zap.Int("attempt", attempt),
		zap.Error(sendErr),
	)

	if attempt >= d.cfg.MaxAttempts {
		if err := d.repo.MarkNotificationError(ctx, n.ID, sendErr.Error()); err != nil {
			d.logger.Error("failed to mark notification error",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
		}
		d.auditAttempt(ctx, n, "error", attempt, sendErr.Error())
		d.metrics.RecordDispatch("error")
		result.Failed++
		return
	}

	nextAt := now.Add(d.cfg.RetryBackoff * time.Duration(attempt))
	if err := d.repo.RescheduleNotification(ctx, n.ID, sendErr.Error(), nextAt); err != nil {
		d.logger.Error("failed to reschedule notification",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
	}
	d.auditAttempt(ctx, n, "retry_scheduled", attempt, sendErr.Error())
	d.metrics.RecordDispatch("retried")
	result.Retried++
}

func (d *Dispatcher) send(ctx context.Context, n *Notification) error {
	subject := n.Subject
	if subject == "" {
		subject = "Your refund has been processed"
	}

	body := n.Message
	if body == "" {
		refund, err := d.repo.GetRefund(ctx, n.RefundID)
		if err != nil {
			return err
		}
		body, err = RenderFallbackMessage(n.RecipientName, refund.Amount, refund.Currency)
		if err != nil {
			return err
		}
	}

	return d.mailer.Send(ctx, n.RecipientEmail, n.CCEmails, subject, body)
}

func (d *Dispatcher) auditAttempt(ctx context.Context, n *Notification, outcome string, attempt int, errMsg string) {
	detail := refundAuditDetail{
		Result:    outcome,
		Attempt:   attempt,
		Error:     errMsg,
		Timestamp: d.now(),
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		d.logger.Error("failed to encode audit detail", zap.Error(err))
		return
	}
	if err := d.repo.CreateAudit(ctx, nil, &AuditLog{
		RefundID: n.RefundID,
		Action:   AuditDispatchAttempt,
		Detail:   datatypes.JSON(raw),
	}); err != nil {
		d.logger.Error("failed to write dispatch audit entry",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
	}
}
