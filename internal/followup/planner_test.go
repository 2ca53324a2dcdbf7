package followup

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"TalentReach/internal/db"
	"TalentReach/internal/models"
)

// fakeStore implements Store in memory.
type fakeStore struct {
	followups   map[int64]*models.Message
	createCalls int
	createErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{followups: make(map[int64]*models.Message)}
}

func (f *fakeStore) FollowupExists(ctx context.Context, parentID int64) (bool, error) {
	_, ok := f.followups[parentID]
	return ok, nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if msg.ParentID != nil {
		if _, ok := f.followups[*msg.ParentID]; ok {
			return db.ErrDuplicate
		}
		f.followups[*msg.ParentID] = msg
	}
	msg.ID = int64(100 + f.createCalls)
	return nil
}

func (f *fakeStore) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	return &models.Lead{
		ID:          id,
		Email:       "ada@acme.dev",
		ContactName: "Ada Lovelace",
		CompanyName: "Acme",
		RoleTitle:   "Founding Engineer",
	}, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, name string) (*models.Template, error) {
	return &models.Template{
		Name:    name,
		Subject: "Re: following up, {first_name}",
		Body:    "Hi {first_name}, just bumping this. {sender_name}",
	}, nil
}

func sentParent(sentAt time.Time) *models.Message {
	return &models.Message{
		ID:             1,
		LeadID:         42,
		Kind:           models.KindInitial,
		Recipient:      "ada@acme.dev",
		LifecycleState: models.StateSent,
		SentAt:         &sentAt,
	}
}

func newPlanner(store Store) *Planner {
	return &Planner{
		Store:        store,
		TemplateName: "followup_outreach",
		OffsetDays:   3,
		SenderName:   "Sam",
		Log:          zap.NewNop(),
	}
}

func TestPlanCreatesFollowup(t *testing.T) {
	store := newFakeStore()
	p := newPlanner(store)

	sentAt := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC) // Monday
	msg, err := p.Plan(context.Background(), sentParent(sentAt))
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a followup message")
	}

	if msg.Kind != models.KindFollowup {
		t.Errorf("expected followup kind, got %s", msg.Kind)
	}
	if msg.ParentID == nil || *msg.ParentID != 1 {
		t.Errorf("expected parent id 1, got %v", msg.ParentID)
	}
	if msg.ApprovalState != models.ApprovalApproved {
		t.Errorf("expected inherited approval, got %s", msg.ApprovalState)
	}
	if msg.Recipient != "ada@acme.dev" {
		t.Errorf("unexpected recipient %q", msg.Recipient)
	}
	want := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC) // Thursday
	if !msg.ScheduledAt.Equal(want) {
		t.Errorf("expected scheduled at %v, got %v", want, msg.ScheduledAt)
	}
	if msg.Subject != "Re: following up, Ada" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	store := newFakeStore()
	p := newPlanner(store)

	parent := sentParent(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	first, err := p.Plan(context.Background(), parent)
	if err != nil || first == nil {
		t.Fatalf("first plan: msg=%v err=%v", first, err)
	}

	second, err := p.Plan(context.Background(), parent)
	if err != nil {
		t.Fatalf("second plan failed: %v", err)
	}
	if second != nil {
		t.Error("expected second plan to be a no-op")
	}
	if store.createCalls != 1 {
		t.Errorf("expected exactly one create, got %d", store.createCalls)
	}
}

func TestPlanDuplicateRaceIsNoop(t *testing.T) {
	store := newFakeStore()
	store.createErr = db.ErrDuplicate
	p := newPlanner(store)

	msg, err := p.Plan(context.Background(), sentParent(time.Now()))
	if err != nil {
		t.Fatalf("expected duplicate create to be swallowed, got %v", err)
	}
	if msg != nil {
		t.Error("expected no message on duplicate create")
	}
}

func TestPlanSkipsNonInitialAndUnsent(t *testing.T) {
	store := newFakeStore()
	p := newPlanner(store)

	sentAt := time.Now()
	followupParent := sentParent(sentAt)
	followupParent.Kind = models.KindFollowup

	if msg, err := p.Plan(context.Background(), followupParent); msg != nil || err != nil {
		t.Errorf("expected no-op for followup parent, got msg=%v err=%v", msg, err)
	}

	unsent := sentParent(sentAt)
	unsent.SentAt = nil

	if msg, err := p.Plan(context.Background(), unsent); msg != nil || err != nil {
		t.Errorf("expected no-op for unsent parent, got msg=%v err=%v", msg, err)
	}
	if store.createCalls != 0 {
		t.Errorf("expected no creates, got %d", store.createCalls)
	}
}

func TestAddBusinessDaysSkipsWeekend(t *testing.T) {
	friday := time.Date(2026, 8, 21, 15, 30, 0, 0, time.UTC)
	if friday.Weekday() != time.Friday {
		t.Fatal("fixture is not a Friday")
	}

	got := AddBusinessDays(friday, 3)

	want := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC) // Wednesday
	if !got.Equal(want) {
		t.Errorf("Friday+3 business days: expected %v, got %v", want, got)
	}
	if got.Weekday() != time.Wednesday {
		t.Errorf("expected Wednesday, got %v", got.Weekday())
	}
}

func TestAddBusinessDaysFromSaturday(t *testing.T) {
	saturday := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC)

	got := AddBusinessDays(saturday, 1)

	if got.Weekday() != time.Monday {
		t.Errorf("expected Monday, got %v (%v)", got.Weekday(), got)
	}
}

func TestAddBusinessDaysMinimumOne(t *testing.T) {
	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	got := AddBusinessDays(monday, 0)

	if !got.After(monday) {
		t.Errorf("expected offset clamped to at least one day, got %v", got)
	}
}
