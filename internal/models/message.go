package models

import "time"

type MessageKind string

const (
	KindInitial  MessageKind = "initial"
	KindFollowup MessageKind = "followup"
)

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

type LifecycleState string

const (
	StateScheduled LifecycleState = "scheduled"
	StateSending   LifecycleState = "sending"
	StateSent      LifecycleState = "sent"
	StateFailed    LifecycleState = "failed"
	StateError     LifecycleState = "error"
)

// Message is the unit of delivery. An initial message has no parent;
// a followup references exactly one parent and is sent as a reply on
// the parent's thread.
type Message struct {
	ID       int64       `json:"id"`
	LeadID   int64       `json:"lead_id"`
	ParentID *int64      `json:"parent_id,omitempty"`
	Kind     MessageKind `json:"kind"`

	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	TemplateName string `json:"template_name"`

	ApprovalState  ApprovalState  `json:"approval_state"`
	LifecycleState LifecycleState `json:"lifecycle_state"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`

	// ThreadKey is the provider message id of the first message in the
	// conversation; set when an initial message is sent, copied onto
	// followups at send time.
	ThreadKey        *string `json:"thread_key,omitempty"`
	ThreadReferences *string `json:"thread_references,omitempty"`

	ErrorDetail string `json:"error_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lead is the record produced by the scraping pipeline. The delivery
// engine only reads it.
type Lead struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	ContactName string `json:"contact_name"`
	CompanyName string `json:"company_name"`
	RoleTitle   string `json:"role_title"`
}

// Template is administered externally and referenced by name.
type Template struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
