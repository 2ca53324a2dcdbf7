package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"TalentReach/internal/models"
	"TalentReach/internal/template"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClaimConflict means another dispatch cycle already claimed the
	// message. Not a failure; callers skip silently.
	ErrClaimConflict = errors.New("message already claimed")

	// ErrDuplicate means a message violating a uniqueness rule (one
	// initial per lead, one followup per parent) already exists.
	ErrDuplicate = errors.New("duplicate message")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

const messageColumns = `id, lead_id, parent_id, kind, recipient, subject, body, template_name,
		approval_state, lifecycle_state, scheduled_at, sent_at,
		thread_key, thread_references, error_detail, created_at, updated_at`

// CreateMessage inserts a new outreach message. Partial unique indexes
// enforce one initial per lead and one followup per parent; a conflict
// surfaces as ErrDuplicate so the caller can treat re-creation as a no-op.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO outreach_messages
		 (lead_id, parent_id, kind, recipient, subject, body, template_name,
		  approval_state, lifecycle_state, scheduled_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
		 ON CONFLICT DO NOTHING
		 RETURNING id`,
		msg.LeadID,
		msg.ParentID,
		msg.Kind,
		msg.Recipient,
		msg.Subject,
		msg.Body,
		msg.TemplateName,
		msg.ApprovalState,
		models.StateScheduled,
		msg.ScheduledAt,
	).Scan(&msg.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// SelectDue returns scheduled, approved messages whose send time has
// passed, oldest first, bounded to limit. Sending-window filtering is
// the dispatcher's concern; this is the raw eligibility query.
func (s *Store) SelectDue(ctx context.Context, now time.Time, limit int) ([]models.Message, error) {

	rows, err := s.Pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM outreach_messages
		 WHERE lifecycle_state=$1
		   AND approval_state=$2
		   AND scheduled_at<=$3
		 ORDER BY scheduled_at ASC
		 LIMIT $4`,
		models.StateScheduled,
		models.ApprovalApproved,
		now,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Claim transitions a message to sending, but only if it is still
// scheduled. Zero affected rows means another cycle won the race.
// This conditional write is the engine's only concurrency control.
func (s *Store) Claim(ctx context.Context, id int64) error {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE outreach_messages
		 SET lifecycle_state=$1,
		     updated_at=NOW()
		 WHERE id=$2
		   AND lifecycle_state=$3`,
		models.StateSending,
		id,
		models.StateScheduled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}
	return nil
}

// MarkSent records successful delivery: terminal sent state, delivery
// time, thread identifiers, error detail cleared.
func (s *Store) MarkSent(ctx context.Context, id int64, sentAt time.Time, threadKey, threadReferences string) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE outreach_messages
		 SET lifecycle_state=$1,
		     sent_at=$2,
		     thread_key=$3,
		     thread_references=$4,
		     error_detail='',
		     updated_at=NOW()
		 WHERE id=$5`,
		models.StateSent,
		sentAt,
		threadKey,
		threadReferences,
		id,
	)
	return err
}

// MarkFailed records a delivery failure (permanent error or exhausted
// retries).
func (s *Store) MarkFailed(ctx context.Context, id int64, detail string) error {
	return s.markTerminal(ctx, id, models.StateFailed, detail)
}

// MarkError records a precondition failure, e.g. a followup whose
// parent has no thread data. Distinct from failed: it signals a
// planning/ordering bug rather than a delivery problem.
func (s *Store) MarkError(ctx context.Context, id int64, detail string) error {
	return s.markTerminal(ctx, id, models.StateError, detail)
}

func (s *Store) markTerminal(ctx context.Context, id int64, state models.LifecycleState, detail string) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE outreach_messages
		 SET lifecycle_state=$1,
		     error_detail=$2,
		     updated_at=NOW()
		 WHERE id=$3`,
		state,
		detail,
		id,
	)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, error) {

	row := s.Pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		 FROM outreach_messages
		 WHERE id=$1`,
		id,
	)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// FollowupExists reports whether a followup referencing the given
// parent already exists, in any state. Backs idempotent planning.
func (s *Store) FollowupExists(ctx context.Context, parentID int64) (bool, error) {

	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM outreach_messages
		   WHERE parent_id=$1 AND kind=$2
		 )`,
		parentID,
		models.KindFollowup,
	).Scan(&exists)

	return exists, err
}

// SetApprovalState records the approval decision. Only messages still
// in the scheduled state can change; a rejection after claiming has no
// effect, matching the cancellation model.
func (s *Store) SetApprovalState(ctx context.Context, id int64, state models.ApprovalState) error {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE outreach_messages
		 SET approval_state=$1,
		     updated_at=NOW()
		 WHERE id=$2
		   AND lifecycle_state=$3`,
		state,
		id,
		models.StateScheduled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueStaleSending re-arms messages stuck in sending since before
// the cutoff back to scheduled. Crash recovery, not a normal-path
// operation.
func (s *Store) RequeueStaleSending(ctx context.Context, olderThan time.Time) (int64, error) {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE outreach_messages
		 SET lifecycle_state=$1,
		     updated_at=NOW()
		 WHERE lifecycle_state=$2
		   AND updated_at<$3`,
		models.StateScheduled,
		models.StateSending,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListByLead(ctx context.Context, leadID int64) ([]models.Message, error) {
	return s.list(ctx,
		`SELECT `+messageColumns+`
		 FROM outreach_messages
		 WHERE lead_id=$1
		 ORDER BY created_at ASC`,
		leadID,
	)
}

func (s *Store) ListByState(ctx context.Context, state models.LifecycleState) ([]models.Message, error) {
	return s.list(ctx,
		`SELECT `+messageColumns+`
		 FROM outreach_messages
		 WHERE lifecycle_state=$1
		 ORDER BY scheduled_at ASC`,
		state,
	)
}

func (s *Store) ListByThread(ctx context.Context, threadKey string) ([]models.Message, error) {
	return s.list(ctx,
		`SELECT `+messageColumns+`
		 FROM outreach_messages
		 WHERE thread_key=$1
		 ORDER BY created_at ASC`,
		threadKey,
	)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetLead reads a lead produced by the scraping pipeline. Read-only
// from the delivery engine's perspective.
func (s *Store) GetLead(ctx context.Context, id int64) (*models.Lead, error) {

	var lead models.Lead
	err := s.Pool.QueryRow(ctx,
		`SELECT id, email, contact_name, company_name, role_title
		 FROM leads
		 WHERE id=$1`,
		id,
	).Scan(&lead.ID, &lead.Email, &lead.ContactName, &lead.CompanyName, &lead.RoleTitle)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetTemplate reads an externally administered template by name.
func (s *Store) GetTemplate(ctx context.Context, name string) (*models.Template, error) {

	var tmpl models.Template
	err := s.Pool.QueryRow(ctx,
		`SELECT name, subject, body
		 FROM templates
		 WHERE name=$1`,
		name,
	).Scan(&tmpl.Name, &tmpl.Subject, &tmpl.Body)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, template.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.LeadID,
		&msg.ParentID,
		&msg.Kind,
		&msg.Recipient,
		&msg.Subject,
		&msg.Body,
		&msg.TemplateName,
		&msg.ApprovalState,
		&msg.LifecycleState,
		&msg.ScheduledAt,
		&msg.SentAt,
		&msg.ThreadKey,
		&msg.ThreadReferences,
		&msg.ErrorDetail,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}
