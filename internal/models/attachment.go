package models

import "time"

// Attachment records an uploaded blob. Deleting the owning resource
// cascade-deletes the remote object best-effort, outside any transaction.
type Attachment struct {
	ID           string    `db:"id" json:"id"`
	PublicID     string    `db:"public_id" json:"public_id"`
	SecureURL    string    `db:"secure_url" json:"secure_url"`
	OriginalName string    `db:"original_name" json:"original_name"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	Size         int64     `db:"size" json:"size"`
	OwnerType    *string   `db:"owner_type" json:"owner_type,omitempty"`
	OwnerID      *string   `db:"owner_id" json:"owner_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TimelineEvent is an upcoming item on a user's timeline, such as an
// assignment deadline.
type TimelineEvent struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	Description   *string   `db:"description" json:"description,omitempty"`
	EventDate     time.Time `db:"event_date" json:"date"`
	EventType     string    `db:"event_type" json:"event_type"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceType *string   `db:"reference_type" json:"reference_type,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditLog records a security-relevant action.
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"-"`
	IPAddress  string    `db:"ip_address" json:"-"`
	UserAgent  string    `db:"user_agent" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Audit actions recorded by the auth and admin flows.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRegister       = "REGISTER"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionDeactivate     = "DEACTIVATE"
	AuditActionApprove        = "APPROVE"
)
