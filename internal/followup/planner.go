package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"TalentReach/internal/db"
	"TalentReach/internal/models"
	"TalentReach/internal/template"
)

// Store is the slice of the message store the planner needs.
type Store interface {
	FollowupExists(ctx context.Context, parentID int64) (bool, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetLead(ctx context.Context, id int64) (*models.Lead, error)
	GetTemplate(ctx context.Context, name string) (*models.Template, error)
}

// Planner creates the followup message for a successfully sent initial
// outreach. Planning is idempotent: replaying the same sent event never
// produces a second followup.
type Planner struct {
	Store        Store
	TemplateName string
	OffsetDays   int // business days after the parent's send
	SenderName   string
	Log          *zap.Logger
}

// Plan computes and persists the followup for the given parent, or
// returns (nil, nil) when there is nothing to do: the parent is not a
// sent initial message, or its followup already exists.
//
// The followup inherits the parent's approval; thread headers are
// resolved at send time, not here, since the parent's thread data may
// not yet be durably recorded.
func (p *Planner) Plan(ctx context.Context, parent *models.Message) (*models.Message, error) {

	if parent.Kind != models.KindInitial || parent.SentAt == nil {
		return nil, nil
	}

	exists, err := p.Store.FollowupExists(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("followup existence check: %w", err)
	}
	if exists {
		return nil, nil
	}

	tmpl, err := p.Store.GetTemplate(ctx, p.TemplateName)
	if err != nil {
		return nil, fmt.Errorf("followup template %q: %w", p.TemplateName, err)
	}

	lead, err := p.Store.GetLead(ctx, parent.LeadID)
	if err != nil {
		return nil, fmt.Errorf("lead %d: %w", parent.LeadID, err)
	}

	rendered := template.Render(*tmpl, template.LeadVars(*lead, p.SenderName))

	parentID := parent.ID
	msg := &models.Message{
		LeadID:         parent.LeadID,
		ParentID:       &parentID,
		Kind:           models.KindFollowup,
		Recipient:      parent.Recipient,
		Subject:        rendered.Subject,
		Body:           rendered.Body,
		TemplateName:   p.TemplateName,
		ApprovalState:  models.ApprovalApproved,
		LifecycleState: models.StateScheduled,
		ScheduledAt:    AddBusinessDays(*parent.SentAt, p.OffsetDays),
	}

	if err := p.Store.CreateMessage(ctx, msg); err != nil {
		// A concurrent cycle planned it first; same outcome as the
		// existence check above.
		if errors.Is(err, db.ErrDuplicate) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist followup: %w", err)
	}

	p.Log.Info("followup planned",
		zap.Int64("parent_id", parent.ID),
		zap.Int64("followup_id", msg.ID),
		zap.Time("scheduled_at", msg.ScheduledAt),
	)

	return msg, nil
}

// AddBusinessDays advances t by n weekdays, skipping Saturdays and
// Sundays. No holiday calendar. The time of day is preserved.
func AddBusinessDays(t time.Time, n int) time.Time {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		t = t.AddDate(0, 0, 1)
		for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
	}
	return t
}
