package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"TalentReach/internal/db"
	"TalentReach/internal/email"
	"TalentReach/internal/metrics"
	"TalentReach/internal/models"
	"TalentReach/internal/notify"
)

// Store is the slice of the message store the dispatcher needs. All
// mutation goes through single-row conditional updates; Claim is the
// only concurrency-control primitive in the engine.
type Store interface {
	SelectDue(ctx context.Context, now time.Time, limit int) ([]models.Message, error)
	Claim(ctx context.Context, id int64) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time, threadKey, threadReferences string) error
	MarkFailed(ctx context.Context, id int64, detail string) error
	MarkError(ctx context.Context, id int64, detail string) error
	RequeueStaleSending(ctx context.Context, olderThan time.Time) (int64, error)
}

// Planner creates the followup for a sent initial message.
type Planner interface {
	Plan(ctx context.Context, parent *models.Message) (*models.Message, error)
}

// Dispatcher runs the periodic delivery cycle. It tolerates overlapping
// cycles and horizontally scaled copies of itself: correctness rests
// entirely on the store's conditional claim.
type Dispatcher struct {
	Store     Store
	Sender    email.Sender
	Planner   Planner
	Publisher notify.Publisher
	Limiter   *rate.Limiter
	Log       *zap.Logger

	Interval      time.Duration
	BatchSize     int
	RetryAttempts int // total send attempts per claim
	RetryDelay    time.Duration

	// Sending window, local hours. End <= Start disables the window.
	WindowStartHour int
	WindowEndHour   int

	// StaleAfter re-arms rows stuck in sending; zero disables the sweep.
	StaleAfter time.Duration

	// Now is replaceable in tests.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run invokes the dispatch cycle on a fixed period until the context
// is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	d.Log.Info("dispatcher started",
		zap.Duration("interval", d.Interval),
		zap.Int("batch_size", d.BatchSize),
	)

	for {
		select {

		case <-ctx.Done():
			d.Log.Info("dispatcher shutting down")
			return

		case <-ticker.C:
			d.sweepStale(ctx)

			if err := d.RunCycle(ctx); err != nil {
				d.Log.Error("dispatch cycle failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) sweepStale(ctx context.Context) {
	if d.StaleAfter <= 0 {
		return
	}

	n, err := d.Store.RequeueStaleSending(ctx, d.now().Add(-d.StaleAfter))
	if err != nil {
		d.Log.Error("stale sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.StaleRequeued.Add(float64(n))
		d.Log.Warn("re-armed messages stuck in sending", zap.Int64("count", n))
	}
}

// RunCycle performs one dispatch pass: select due approved messages,
// claim each, send, record the terminal outcome. One message's failure
// never aborts the batch; the returned error covers only the candidate
// query itself.
func (d *Dispatcher) RunCycle(ctx context.Context) error {

	now := d.now()

	if !d.withinWindow(now) {
		return nil
	}

	batch, err := d.Store.SelectDue(ctx, now, d.BatchSize)
	if err != nil {
		return err
	}

	for i := range batch {
		if ctx.Err() != nil {
			return nil
		}
		d.process(ctx, &batch[i])
	}

	return nil
}

// withinWindow reports whether now falls inside the configured sending
// hours. Candidates outside the window simply wait for a later cycle.
func (d *Dispatcher) withinWindow(now time.Time) bool {
	if d.WindowEndHour <= d.WindowStartHour {
		return true
	}
	h := now.Hour()
	return h >= d.WindowStartHour && h < d.WindowEndHour
}

func (d *Dispatcher) process(ctx context.Context, msg *models.Message) {

	// ----------------------------
	// Claim
	// ----------------------------
	if err := d.Store.Claim(ctx, msg.ID); err != nil {
		if errors.Is(err, db.ErrClaimConflict) {
			metrics.ClaimConflicts.Inc()
			return
		}
		d.Log.Error("claim failed",
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	// ----------------------------
	// Resolve parent thread (followups only)
	// ----------------------------
	var replyTo *email.Thread

	if msg.Kind == models.KindFollowup {
		thread, err := d.parentThread(ctx, msg)
		if err != nil {
			// Never fall back to an unthreaded send; a reply that
			// opens a new conversation silently breaks the feature.
			if markErr := d.Store.MarkError(ctx, msg.ID, "parent thread data missing"); markErr != nil {
				d.Log.Error("failed to record error state",
					zap.Int64("message_id", msg.ID),
					zap.Error(markErr),
				)
			}
			metrics.OutreachFailures.Inc()
			d.Log.Error("followup missing parent thread data",
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
			return
		}
		replyTo = thread
	}

	// ----------------------------
	// Send with bounded retry
	// ----------------------------
	providerID, err := d.sendWithRetry(ctx, msg, replyTo)
	if err != nil {

		if dbErr := d.Store.MarkFailed(ctx, msg.ID, err.Error()); dbErr != nil {
			d.Log.Error("failed to record failure",
				zap.Int64("message_id", msg.ID),
				zap.Error(dbErr),
			)
		}

		metrics.OutreachFailures.Inc()
		d.Log.Error("outreach send failed",
			zap.Int64("message_id", msg.ID),
			zap.String("to", msg.Recipient),
			zap.Error(err),
		)
		return
	}

	// ----------------------------
	// Record delivery
	// ----------------------------
	sentAt := d.now()

	threadKey := providerID
	threadReferences := providerID
	if replyTo != nil {
		// Followups stay on the parent's thread and extend the
		// References chain with their own id.
		threadKey = replyTo.Key
		threadReferences = replyTo.References + " " + providerID
	}

	if err := d.Store.MarkSent(ctx, msg.ID, sentAt, threadKey, threadReferences); err != nil {
		d.Log.Error("failed to record delivery",
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	metrics.OutreachSent.Inc()
	d.Log.Info("outreach sent",
		zap.Int64("message_id", msg.ID),
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.Recipient),
		zap.String("provider_message_id", providerID),
	)

	if err := d.Publisher.PublishSent(ctx, notify.SentEvent{
		MessageID:         msg.ID,
		LeadID:            msg.LeadID,
		ProviderMessageID: providerID,
	}); err != nil {
		d.Log.Warn("sent event publish failed",
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}

	// ----------------------------
	// Plan the followup (initials only, synchronously so planning
	// failures surface in the same cycle)
	// ----------------------------
	if msg.Kind == models.KindInitial {
		sent := *msg
		sent.LifecycleState = models.StateSent
		sent.SentAt = &sentAt

		planned, err := d.Planner.Plan(ctx, &sent)
		if err != nil {
			d.Log.Error("followup planning failed",
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
		} else if planned != nil {
			metrics.FollowupsPlanned.Inc()
		}
	}
}

// parentThread loads the thread identifiers a followup must reply on.
// Both the key and the references chain are required.
func (d *Dispatcher) parentThread(ctx context.Context, msg *models.Message) (*email.Thread, error) {

	if msg.ParentID == nil {
		return nil, errors.New("followup has no parent id")
	}

	parent, err := d.Store.GetMessage(ctx, *msg.ParentID)
	if err != nil {
		return nil, err
	}

	if parent.ThreadKey == nil || *parent.ThreadKey == "" {
		return nil, errors.New("parent thread key missing")
	}
	if parent.ThreadReferences == nil || *parent.ThreadReferences == "" {
		return nil, errors.New("parent thread references missing")
	}

	return &email.Thread{
		Key:        *parent.ThreadKey,
		References: *parent.ThreadReferences,
	}, nil
}

// sendWithRetry attempts delivery, retrying only transient failures on
// a constant interval up to the configured attempt bound. Permanent
// failures abort immediately.
func (d *Dispatcher) sendWithRetry(ctx context.Context, msg *models.Message, replyTo *email.Thread) (string, error) {

	out := email.Outgoing{
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		ReplyTo:   replyTo,
	}

	var providerID string

	operation := func() error {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		id, err := d.Sender.Send(ctx, out)
		if err != nil {
			if errors.Is(err, email.ErrPermanent) {
				return backoff.Permanent(err)
			}
			return err
		}

		providerID = id
		return nil
	}

	attempts := d.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.RetryDelay), uint64(attempts-1))

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	return providerID, nil
}
